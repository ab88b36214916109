package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/patchup/pkg/builder"
	"github.com/tqbf/patchup/pkg/snapshot"
	"github.com/tqbf/patchup/pkg/xdelta"
)

const appVersion = "0.1.0"

func main() {
	app := &cli.App{
		Name:  "patchmk",
		Usage: "build incremental patches between two versions of a tree",
		Before: func(c *cli.Context) error {
			configureLogging(c.Bool("verbose"))
			return nil
		},
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "verbose output",
			},
		},
		Commands: []*cli.Command{
			buildCmd(),
			diffCmd(),
			{
				Name:  "version",
				Usage: "print version",
				Action: func(c *cli.Context) error {
					fmt.Println(appVersion)
					return nil
				},
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func treeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "exclude",
			Usage: "exclude pattern (repeatable)",
		},
		&cli.StringFlag{
			Name:  "compare",
			Value: string(snapshot.CompareModTime),
			Usage: "change detection: mtime or content",
		},
	}
}

func configureLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	))
}

func newBuilder(c *cli.Context) (*builder.Builder, error) {
	cmp, err := snapshot.ParseCompare(c.String("compare"))
	if err != nil {
		return nil, err
	}
	return &builder.Builder{
		Tool:       xdelta.New(c.String("tool")),
		StagingDir: c.String("staging"),
		Excludes:   c.StringSlice("exclude"),
		Compare:    cmp,
	}, nil
}
