// Package launcher starts the installed program once it is up to date.
package launcher

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/tqbf/patchup/pkg/patcherr"
)

type Launcher struct {
	// Root is the install directory; a relative Exe is resolved against
	// it and the program runs with it as working directory.
	Root string
	Exe  string
	// Arguments is split on whitespace.
	Arguments string
	Logger    *slog.Logger
}

func (l *Launcher) Enabled() bool {
	return strings.TrimSpace(l.Exe) != ""
}

func (l *Launcher) path() string {
	exe := filepath.FromSlash(strings.TrimSpace(l.Exe))
	if filepath.IsAbs(exe) || l.Root == "" {
		return exe
	}
	return filepath.Join(l.Root, exe)
}

// Start runs the program without waiting for it. The returned command
// may be waited on.
func (l *Launcher) Start() (*exec.Cmd, error) {
	if !l.Enabled() {
		return nil, patcherr.New(
			patcherr.KindConfigInvalid, "start",
			"no exe configured",
		)
	}
	exe := l.path()
	info, err := os.Stat(exe)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("file not found: %s", exe)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", exe, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", exe)
	}

	cmd := exec.Command(exe, strings.Fields(l.Arguments)...)
	cmd.Dir = l.Root
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf(
			"failed to start %q: %w", exe, err,
		)
	}

	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("started",
		"exe", exe,
		"pid", cmd.Process.Pid,
	)
	return cmd, nil
}
