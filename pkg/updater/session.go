// Package updater drives a client installation from its local version
// to the newest published one, one patch at a time.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tqbf/patchup/pkg/applier"
	"github.com/tqbf/patchup/pkg/archive"
	"github.com/tqbf/patchup/pkg/patcherr"
	"github.com/tqbf/patchup/pkg/patchlist"
	"github.com/tqbf/patchup/pkg/remote"
	"github.com/tqbf/patchup/pkg/version"
	"github.com/tqbf/patchup/pkg/xdelta"
)

const (
	DefaultStagingName = "tmp_patch"
	downloadSuffix     = ".download"
	partialMessage     = "patch partially applied; re-run to continue"
)

type Options struct {
	// PatchURI is the directory holding the patch list and archives.
	PatchURI   string
	ListName   string
	Root       string
	StagingDir string
	Store      *version.Store
	Client     *remote.Client
	Tool       xdelta.Tool
	// Observer runs on the goroutine calling Check or Update.
	Observer func(Event)
	Logger   *slog.Logger
}

type Session struct {
	ID string

	opts    Options
	listURI string
	applier *applier.Applier
	logger  *slog.Logger

	// run serializes Check and Update.
	run sync.Mutex

	mu      sync.Mutex
	state   State
	index   *patchlist.Index
	local   int
	backlog []patchlist.Entry
}

func NewSession(opts Options) (*Session, error) {
	if opts.PatchURI == "" || opts.ListName == "" {
		return nil, patcherr.New(
			patcherr.KindConfigInvalid, "new session",
			"patch uri and patch list are required",
		)
	}
	listURI, err := remote.Resolve(opts.PatchURI, opts.ListName)
	if err != nil {
		return nil, patcherr.Wrap(
			err, patcherr.KindConfigInvalid, "new session",
		)
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	if opts.StagingDir == "" {
		opts.StagingDir = filepath.Join(opts.Root, DefaultStagingName)
	}
	if opts.Store == nil {
		opts.Store = version.NewStore(
			filepath.Join(opts.Root, version.DefaultFileName),
		)
	}
	if opts.Client == nil {
		opts.Client = remote.New(0, 0)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	id := uuid.NewString()
	logger = logger.With("session", id)
	tool := opts.Tool
	if tool.Logger == nil {
		tool.Logger = logger
	}
	return &Session{
		ID:      id,
		opts:    opts,
		listURI: listURI,
		applier: &applier.Applier{
			Root:   opts.Root,
			Tool:   tool,
			Logger: logger,
		},
		logger: logger,
	}, nil
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Local returns the installed version as of the last check or applied
// patch.
func (s *Session) Local() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// Pending returns the patches the last check found, oldest first.
func (s *Session) Pending() []patchlist.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]patchlist.Entry(nil), s.backlog...)
}

func (s *Session) emit(ev Event) {
	s.mu.Lock()
	s.state = ev.State
	s.mu.Unlock()

	ev.Session = s.ID
	if s.opts.Observer != nil {
		s.opts.Observer(ev)
	}
}

func (s *Session) Check(ctx context.Context) (*CheckResult, error) {
	s.run.Lock()
	defer s.run.Unlock()
	return s.check(ctx)
}

func (s *Session) check(ctx context.Context) (*CheckResult, error) {
	s.emit(Event{State: CheckingForUpdates})

	ix, err := patchlist.Fetch(ctx, s.opts.Client, s.listURI)
	if err != nil {
		return nil, s.failCheck(err)
	}
	latest, err := ix.Highest()
	if err != nil {
		return nil, s.failCheck(err)
	}
	local, err := s.opts.Store.Read()
	if err != nil {
		return nil, s.failCheck(
			patcherr.Wrap(err, patcherr.KindUnexpected, "read version"),
		)
	}

	res := &CheckResult{
		Local:   local,
		Latest:  latest,
		Pending: ix.Backlog(local),
	}
	s.mu.Lock()
	s.index = ix
	s.local = local
	s.backlog = res.Pending
	s.mu.Unlock()

	s.logger.Info("checked for updates",
		"local", local,
		"latest", latest,
		"pending", len(res.Pending),
	)
	if res.UpToDate() {
		s.emit(Event{
			State:   UpToDate,
			Version: local,
			Message: "up to date",
		})
	} else {
		s.emit(Event{
			State:   UpdatesAvailable,
			Version: latest,
			Total:   int64(len(res.Pending)),
			Message: fmt.Sprintf(
				"%d update(s) available", len(res.Pending),
			),
		})
	}
	return res, nil
}

// Inspect fetches the patch list and compares it with the local version
// without creating a missing version marker, emitting events or changing
// the session state.
func (s *Session) Inspect(ctx context.Context) (*CheckResult, error) {
	ix, err := patchlist.Fetch(ctx, s.opts.Client, s.listURI)
	if err != nil {
		return nil, err
	}
	latest, err := ix.Highest()
	if err != nil {
		return nil, err
	}
	local, _, err := s.opts.Store.Peek()
	if err != nil {
		return nil, patcherr.Wrap(
			err, patcherr.KindUnexpected, "read version",
		)
	}
	return &CheckResult{
		Local:   local,
		Latest:  latest,
		Pending: ix.Backlog(local),
	}, nil
}

// Update applies every pending patch in ascending version order. It
// checks first when no check has found pending patches yet. The context
// is honored between patches; a patch already being applied runs to the
// end.
func (s *Session) Update(ctx context.Context) error {
	s.run.Lock()
	defer s.run.Unlock()

	s.mu.Lock()
	checked := s.state == UpdatesAvailable && len(s.backlog) > 0
	s.mu.Unlock()
	if !checked {
		res, err := s.check(ctx)
		if err != nil {
			return err
		}
		if res.UpToDate() {
			return nil
		}
	}

	start := time.Now()
	applied := 0
	for _, e := range s.Pending() {
		if err := ctx.Err(); err != nil {
			return s.fail(
				patcherr.Wrap(err, patcherr.KindUnexpected, "update"),
				e.Version, e.Archive,
			)
		}
		if err := s.updateOne(ctx, e); err != nil {
			return s.fail(err, e.Version, e.Archive)
		}
		applied++
	}

	s.mu.Lock()
	current := s.local
	s.backlog = nil
	s.mu.Unlock()

	s.logger.Info("update complete",
		"version", current,
		"count", applied,
		"elapsed", time.Since(start),
	)
	s.emit(Event{
		State:   Complete,
		Version: current,
		Message: fmt.Sprintf("updated to version %d", current),
	})
	return nil
}

func (s *Session) updateOne(
	ctx context.Context, e patchlist.Entry,
) error {
	staging := s.opts.StagingDir
	download := staging + downloadSuffix
	defer s.cleanup()

	s.emit(Event{
		State:   Downloading,
		Version: e.Version,
		Archive: e.Archive,
	})
	if err := os.RemoveAll(staging); err != nil {
		return patcherr.Wrap(
			err, patcherr.KindUnexpected, "clear staging",
		)
	}
	uri, err := remote.Resolve(s.opts.PatchURI, e.Archive)
	if err != nil {
		return patcherr.Wrap(
			err, patcherr.KindArchiveDownloadFailed, "download",
		)
	}
	if err := os.MkdirAll(filepath.Dir(download), 0755); err != nil {
		return patcherr.Wrap(
			err, patcherr.KindUnexpected, "download",
		)
	}
	size, err := s.opts.Client.Download(ctx, uri, download,
		func(done, total int64) {
			s.emit(Event{
				State:   Downloading,
				Version: e.Version,
				Archive: e.Archive,
				Done:    done,
				Total:   total,
			})
		},
	)
	if err != nil {
		return patcherr.Wrap(
			err, patcherr.KindArchiveDownloadFailed, "download",
		).WithPath(e.Archive)
	}
	files, err := archive.Extract(download, staging)
	if err != nil {
		return patcherr.Wrap(
			err, patcherr.KindArchiveDownloadFailed, "extract",
		).WithPath(e.Archive)
	}
	if err := os.Remove(download); err != nil {
		s.logger.Warn("remove download failed",
			"path", download, "err", err,
		)
	}
	s.logger.Debug("patch fetched",
		"version", e.Version,
		"bytes", size,
		"count", files,
	)

	s.emit(Event{
		State:   Verifying,
		Version: e.Version,
		Archive: e.Archive,
	})
	if err := s.applier.AssertApplicable(staging); err != nil {
		return err
	}

	s.emit(Event{
		State:   Applying,
		Version: e.Version,
		Archive: e.Archive,
	})
	err = s.applier.Apply(ctx, staging, func(done, total int) {
		s.emit(Event{
			State:   Applying,
			Version: e.Version,
			Archive: e.Archive,
			Done:    int64(done),
			Total:   int64(total),
		})
	})
	if err != nil {
		return err
	}

	if err := s.opts.Store.Write(e.Version); err != nil {
		return patcherr.Wrap(
			err, patcherr.KindUnexpected, "write version",
		)
	}
	s.mu.Lock()
	s.local = e.Version
	s.backlog = s.index.Backlog(e.Version)
	s.mu.Unlock()

	s.logger.Info("patch applied",
		"version", e.Version,
		"archive", e.Archive,
	)
	return nil
}

func (s *Session) cleanup() {
	staging := s.opts.StagingDir
	if err := os.RemoveAll(staging); err != nil {
		s.logger.Warn("remove staging failed",
			"dir", staging, "err", err,
		)
	}
	err := os.Remove(staging + downloadSuffix)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("remove download failed", "err", err)
	}
}

// failCheck forgets what earlier checks found so a session that cannot
// reach the server stops reporting pending patches.
func (s *Session) failCheck(err error) error {
	s.mu.Lock()
	s.index = nil
	s.backlog = nil
	s.mu.Unlock()
	return s.fail(err, 0, "")
}

// fail reports err to the observer and puts the session back into a
// state a retry can start from.
func (s *Session) fail(err error, ver int, archiveName string) error {
	msg := patcherr.UserMessage(err)
	var ae *applier.ApplyError
	if errors.As(err, &ae) && ae.Partial() {
		msg += "; " + partialMessage
	}
	s.logger.Error("update failed",
		"version", ver,
		"kind", patcherr.KindOf(err),
		"err", err,
	)
	s.emit(Event{
		State:   Failed,
		Version: ver,
		Archive: archiveName,
		Message: msg,
		Err:     err,
	})

	s.mu.Lock()
	next := Idle
	if s.index != nil && len(s.backlog) > 0 {
		next = UpdatesAvailable
	}
	s.state = next
	s.mu.Unlock()
	return err
}
