package main

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/patchup/pkg/notify"
	"github.com/tqbf/patchup/pkg/patcherr"
	"github.com/tqbf/patchup/pkg/xdelta"
)

func doctorCmd() *cli.Command {
	return &cli.Command{
		Name:   "doctor",
		Usage:  "verify configuration, delta tool and patch server",
		Action: doctorAction,
	}
}

func doctorAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		fmt.Printf("  Config: FAIL (%v)\n", err)
		return fmt.Errorf("config check failed")
	}
	fmt.Printf("Config: %s\n", cfg.Path)
	fmt.Printf("  Patch list: %s%s\n", cfg.PatchURI, cfg.PatchList)
	fmt.Printf("  Install dir: %s\n", cfg.InstallDir)

	bin, err := xdelta.New(cfg.Tool).Check()
	if err != nil {
		fmt.Printf("  Tool: FAIL (%v)\n", err)
		return fmt.Errorf("tool check failed")
	}
	fmt.Printf("  Tool: ok (%s)\n", bin)

	sess, err := newSession(cfg, nil)
	if err != nil {
		return err
	}
	t := time.Now()
	res, err := sess.Inspect(c.Context)
	if err != nil {
		fmt.Printf("  Server: FAIL (%s)\n", patcherr.UserMessage(err))
		return fmt.Errorf("server check failed")
	}
	fmt.Printf(
		"  Server: ok (latest %d, local %d, %dms)\n",
		res.Latest, res.Local, time.Since(t).Milliseconds(),
	)

	if cfg.NotifyURI != "" {
		sub, err := notify.Subscribe(c.Context, cfg.NotifyURI)
		if err != nil {
			fmt.Printf("  Notify: FAIL (%v)\n", err)
			return fmt.Errorf("notify check failed")
		}
		sub.Close()
		fmt.Printf("  Notify: ok\n")
	}

	if l := newLauncher(cfg); l.Enabled() {
		fmt.Printf("  Exe: %s %s\n", cfg.Exe, cfg.Arguments)
	}

	fmt.Println("\nAll checks passed.")
	return nil
}
