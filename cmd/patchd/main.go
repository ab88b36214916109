package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/tqbf/patchup/pkg/patchserver"
)

const appVersion = "0.1.0"

func main() {
	app := &cli.App{
		Name:  "patchd",
		Usage: "serve a patch directory and announce new versions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "dir",
				Value:   ".",
				EnvVars: []string{"PATCHD_DIR"},
				Usage:   "patch directory",
			},
			&cli.StringFlag{
				Name:    "list",
				Value:   "patchlist.txt",
				EnvVars: []string{"PATCHD_LIST"},
				Usage:   "patch list file name inside --dir",
			},
			&cli.StringFlag{
				Name:    "listen",
				Value:   ":8080",
				EnvVars: []string{"PATCHD_LISTEN"},
				Usage:   "listen address",
			},
			&cli.StringSliceFlag{
				Name:    "origin",
				EnvVars: []string{"PATCHD_ORIGINS"},
				Usage:   "extra browser origin host allowed on /events (repeatable, glob)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				EnvVars: []string{"PATCHD_VERBOSE"},
				Usage:   "debug logging",
			},
		},
		Action: serve,
		Commands: []*cli.Command{
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

func configureLogging(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}),
	)
	slog.SetDefault(logger)
	return logger
}

func serve(c *cli.Context) error {
	logger := configureLogging(c.Bool("verbose"))

	dir := c.String("dir")
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return fmt.Errorf("patch directory %s does not exist", dir)
	}

	srv := patchserver.New(dir, c.String("list"), logger)
	srv.Origins = c.StringSlice("origin")
	if err := srv.Reload(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load patch list: %w", err)
	}

	ctx, stop := signal.NotifyContext(
		c.Context, os.Interrupt, syscall.SIGTERM,
	)
	defer stop()

	go func() {
		if err := srv.Watch(ctx); err != nil {
			logger.Error("watch", "err", err)
		}
	}()

	hs := &http.Server{
		Addr:              c.String("listen"),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", hs.Addr,
			"dir", dir,
			"latest", srv.Latest().Version,
		)
		errc <- hs.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(), 5*time.Second,
	)
	defer cancel()
	logger.Info("shutting down")
	return hs.Shutdown(shutdownCtx)
}
