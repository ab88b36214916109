package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

func startCmd() *cli.Command {
	return &cli.Command{
		Name:  "start",
		Usage: "start the configured program",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			cmd, err := newLauncher(cfg).Start()
			if err != nil {
				return err
			}
			fmt.Printf("Started %s (pid %d)\n",
				cfg.Exe, cmd.Process.Pid,
			)
			return nil
		},
	}
}
