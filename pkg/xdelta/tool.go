// Package xdelta runs the external binary delta tool. The delta format is
// the tool's business; only the invocation contract is relied on here:
// exit status 0 means success, anything else is a failure explained on
// stderr.
package xdelta

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/tqbf/patchup/pkg/patcherr"
)

const DefaultPath = "xdelta3"

type Tool struct {
	// Path is a file path or a name looked up in PATH.
	Path   string
	Logger *slog.Logger
}

func New(path string) Tool {
	if path == "" {
		path = DefaultPath
	}
	return Tool{Path: path}
}

func (t Tool) logger() *slog.Logger {
	if t.Logger != nil {
		return t.Logger
	}
	return slog.Default()
}

func (t Tool) path() string {
	if t.Path == "" {
		return DefaultPath
	}
	return t.Path
}

// Check resolves the executable without running it.
func (t Tool) Check() (string, error) {
	bin, err := exec.LookPath(t.path())
	if err != nil {
		return "", patcherr.Wrap(
			err, patcherr.KindToolMissing, "find delta tool",
		).WithPath(t.path())
	}
	return bin, nil
}

// Encode writes a delta turning oldFile into newFile.
func (t Tool) Encode(
	ctx context.Context, oldFile, newFile, out string,
) error {
	return t.run(ctx, "encode",
		"-v", "-A", "-e", "-0", "-f", "-s",
		oldFile, newFile, out,
	)
}

// Decode applies delta to oldFile and writes the result to out.
func (t Tool) Decode(
	ctx context.Context, oldFile, delta, out string,
) error {
	return t.run(ctx, "decode",
		"-v", "-d", "-f", "-s",
		oldFile, delta, out,
	)
}

func (t Tool) run(
	ctx context.Context, op string, args ...string,
) error {
	bin, err := t.Check()
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	t.logger().Debug("delta tool",
		"op", op,
		"args", args,
		"elapsed", time.Since(start),
		"err", err,
	)
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return patcherr.Wrap(
			fmt.Errorf("exit status %d", exitErr.ExitCode()),
			patcherr.KindToolExecutionFailed, op,
		).WithDetail(stderr.String())
	}
	return patcherr.Wrap(
		err, patcherr.KindToolExecutionFailed, op,
	).WithDetail(stderr.String())
}
