package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/patchup/pkg/patcherr"
	"github.com/tqbf/patchup/pkg/updater"
)

func checkCmd() *cli.Command {
	return &cli.Command{
		Name:  "check",
		Usage: "report whether updates are available",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "json",
				Usage: "JSON output",
			},
		},
		Action: checkAction,
	}
}

type checkJSON struct {
	Local   int           `json:"local"`
	Latest  int           `json:"latest"`
	Pending []pendingJSON `json:"pending"`
}

type pendingJSON struct {
	Version int    `json:"version"`
	Archive string `json:"archive"`
}

func checkAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	sess, err := newSession(cfg, nil)
	if err != nil {
		return err
	}

	res, err := sess.Check(c.Context)
	if err != nil {
		return fmt.Errorf("%s", patcherr.UserMessage(err))
	}

	if c.Bool("json") {
		return printCheckJSON(res)
	}

	fmt.Printf("Local version: %d\n", res.Local)
	fmt.Printf("Latest version: %d\n", res.Latest)
	if res.UpToDate() {
		fmt.Println("Up to date.")
		return nil
	}
	fmt.Printf("%d update(s) available:\n", len(res.Pending))
	for _, e := range res.Pending {
		fmt.Printf("  %d %s\n", e.Version, e.Archive)
	}
	return nil
}

func printCheckJSON(res *updater.CheckResult) error {
	out := checkJSON{
		Local:   res.Local,
		Latest:  res.Latest,
		Pending: []pendingJSON{},
	}
	for _, e := range res.Pending {
		out.Pending = append(out.Pending, pendingJSON{
			Version: e.Version,
			Archive: e.Archive,
		})
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
