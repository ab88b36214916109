package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/patchup/pkg/notify"
	"github.com/tqbf/patchup/pkg/updater"
)

func watchCmd() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "stay running and apply patches as they are published",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "interval",
				Value: 5 * time.Minute,
				Usage: "poll interval, also the retry delay",
			},
		},
		Action: watchAction,
	}
}

func watchAction(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	p := &progressPrinter{}
	sess, err := newSession(cfg, p.event)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(
		c.Context, os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	interval := c.Duration("interval")
	for {
		if err := sess.Update(ctx); err != nil {
			slog.Debug("update", "err", err)
		}

		var waitErr error
		if cfg.NotifyURI != "" {
			waitErr = waitPublished(ctx, cfg.NotifyURI, sess)
		} else {
			waitErr = sleep(ctx, interval)
		}
		if ctx.Err() != nil {
			return nil
		}
		if waitErr != nil {
			slog.Warn("waiting for updates",
				"err", waitErr,
				"retry", interval,
			)
			if sleep(ctx, interval) != nil {
				return nil
			}
		}
	}
}

// waitPublished blocks until the server announces a version beyond the
// session's last known one.
func waitPublished(
	ctx context.Context, uri string, sess *updater.Session,
) error {
	sub, err := notify.Subscribe(ctx, uri)
	if err != nil {
		return err
	}
	defer sub.Close()

	known := sess.Local()
	if pending := sess.Pending(); len(pending) > 0 {
		known = pending[len(pending)-1].Version
	}
	for {
		m, err := sub.Next(ctx)
		if err != nil {
			return err
		}
		slog.Debug("notification",
			"type", m.Type,
			"version", m.Version,
		)
		if m.Version > known {
			return nil
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
