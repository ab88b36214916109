package main

import (
	"fmt"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/tqbf/patchup/pkg/builder"
	"github.com/tqbf/patchup/pkg/patchlist"
	"github.com/tqbf/patchup/pkg/xdelta"
)

func buildCmd() *cli.Command {
	return &cli.Command{
		Name:      "build",
		Usage:     "build a patch archive turning <oldDir> into <newDir>",
		ArgsUsage: "<oldDir> <newDir> <patch.zip>",
		Flags: append(treeFlags(),
			&cli.StringFlag{
				Name:    "tool",
				Value:   xdelta.DefaultPath,
				EnvVars: []string{"PATCHMK_TOOL"},
				Usage:   "delta tool executable",
			},
			&cli.StringFlag{
				Name:  "staging",
				Value: builder.DefaultStagingDir,
				Usage: "staging directory, recreated on every build",
			},
			&cli.StringFlag{
				Name:  "publish",
				Usage: "record the archive in this patch list file",
			},
			&cli.IntFlag{
				Name:  "patch-version",
				Usage: "version to publish the archive as (default: next)",
			},
		),
		Action: buildAction,
	}
}

func buildAction(c *cli.Context) error {
	if c.NArg() != 3 {
		return fmt.Errorf(
			"usage: patchmk build <oldDir> <newDir> <patch.zip>",
		)
	}
	oldDir := c.Args().Get(0)
	newDir := c.Args().Get(1)
	output := c.Args().Get(2)

	b, err := newBuilder(c)
	if err != nil {
		return err
	}

	res, err := b.Build(c.Context, oldDir, newDir, output)
	if err != nil {
		return err
	}
	fmt.Println(res.Summary())
	fmt.Printf("Wrote %s (%s)\n", output, humanize.Bytes(uint64(res.Size)))

	if list := c.String("publish"); list != "" {
		return publish(c, list, output)
	}
	return nil
}

func publish(c *cli.Context, list, output string) error {
	v := c.Int("patch-version")
	if v <= 0 {
		ix, err := patchlist.Load(list)
		switch {
		case err == nil:
			if hi, err := ix.Highest(); err == nil {
				v = hi
			}
		case !isNotExist(err):
			return fmt.Errorf("load patch list: %w", err)
		}
		v++
	}

	entry := patchlist.Entry{
		Version: v,
		Archive: filepath.Base(output),
	}
	ix, err := patchlist.Publish(list, entry)
	if err != nil {
		return err
	}
	fmt.Printf("Published %s in %s (%d entries)\n",
		entry, list, ix.Len(),
	)
	return nil
}
