package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func updateCmd() *cli.Command {
	return &cli.Command{
		Name:  "update",
		Usage: "download and apply every pending patch",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "start",
				Usage: "start the configured program afterwards",
			},
		},
		Action: updateAction,
	}
}

func updateAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	p := &progressPrinter{}
	sess, err := newSession(cfg, p.event)
	if err != nil {
		return err
	}

	if err := sess.Update(c.Context); err != nil {
		// the failure was already printed by the observer
		return fmt.Errorf("update failed")
	}

	if c.Bool("start") {
		if _, err := newLauncher(cfg).Start(); err != nil {
			return err
		}
	}
	return nil
}
