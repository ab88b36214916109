package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/tqbf/patchup/pkg/config"
	"github.com/tqbf/patchup/pkg/launcher"
	"github.com/tqbf/patchup/pkg/remote"
	"github.com/tqbf/patchup/pkg/updater"
	"github.com/tqbf/patchup/pkg/version"
	"github.com/tqbf/patchup/pkg/xdelta"
)

const appVersion = "0.1.0"

func main() {
	app := &cli.App{
		Name:  "patchup",
		Usage: "keep an installation up to date with published patches",
		Before: func(c *cli.Context) error {
			configureLogging(c.Bool("verbose"))
			return nil
		},
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   config.NameFor(os.Args[0]),
				EnvVars: []string{"PATCHUP_CONFIG"},
				Usage:   "configuration file",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "verbose output",
			},
		},
		Commands: []*cli.Command{
			checkCmd(),
			updateCmd(),
			watchCmd(),
			startCmd(),
			doctorCmd(),
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

func configureLogging(verbose bool) {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	))
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	slog.Debug("config",
		"path", cfg.Path,
		"patch_uri", cfg.PatchURI,
		"install_dir", cfg.InstallDir,
	)
	return cfg, nil
}

func newSession(
	cfg *config.Config,
	observer func(updater.Event),
) (*updater.Session, error) {
	rate, err := cfg.RateLimit()
	if err != nil {
		return nil, err
	}
	client := remote.New(cfg.Timeout, rate)

	versionFile := cfg.VersionFile
	if versionFile == "" {
		versionFile = filepath.Join(
			cfg.InstallDir, version.DefaultFileName,
		)
	}
	return updater.NewSession(updater.Options{
		PatchURI:   cfg.PatchURI,
		ListName:   cfg.PatchList,
		Root:       cfg.InstallDir,
		StagingDir: cfg.StagingDir,
		Store:      version.NewStore(versionFile),
		Client:     client,
		Tool:       xdelta.New(cfg.Tool),
		Observer:   observer,
	})
}

func newLauncher(cfg *config.Config) *launcher.Launcher {
	return &launcher.Launcher{
		Root:      cfg.InstallDir,
		Exe:       cfg.Exe,
		Arguments: cfg.Arguments,
	}
}

// progressPrinter renders session events as terminal lines, redrawing
// progress in place.
type progressPrinter struct {
	inline bool
	last   time.Time
}

func (p *progressPrinter) event(ev updater.Event) {
	switch ev.State {
	case updater.Downloading:
		if ev.Total == 0 && ev.Done == 0 {
			p.line("Downloading %s (version %d)", ev.Archive, ev.Version)
			return
		}
		if !p.due(ev.Done == ev.Total) {
			return
		}
		if ev.Total > 0 {
			p.redraw("  %d%% (%s of %s)",
				ev.Done*100/ev.Total,
				humanize.Bytes(uint64(ev.Done)),
				humanize.Bytes(uint64(ev.Total)),
			)
		} else {
			p.redraw("  %s", humanize.Bytes(uint64(ev.Done)))
		}
	case updater.Verifying:
		p.line("Verifying version %d", ev.Version)
	case updater.Applying:
		if ev.Total == 0 {
			p.line("Applying version %d", ev.Version)
			return
		}
		if p.due(ev.Done == ev.Total) {
			p.redraw("  %d/%d files", ev.Done, ev.Total)
		}
	case updater.UpToDate, updater.UpdatesAvailable, updater.Complete:
		p.line("%s", capitalize(ev.Message))
	case updater.Failed:
		p.line("%s", ev.Message)
	}
}

func (p *progressPrinter) due(final bool) bool {
	now := time.Now()
	if final || now.Sub(p.last) >= 100*time.Millisecond {
		p.last = now
		return true
	}
	return false
}

func (p *progressPrinter) redraw(format string, args ...any) {
	fmt.Printf("\r\033[K"+format, args...)
	p.inline = true
}

func (p *progressPrinter) line(format string, args ...any) {
	if p.inline {
		fmt.Println()
		p.inline = false
	}
	fmt.Printf(format+"\n", args...)
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
