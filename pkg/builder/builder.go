// Package builder produces patch archives from two snapshots of a file
// tree.
package builder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tqbf/patchup/pkg/archive"
	"github.com/tqbf/patchup/pkg/manifest"
	"github.com/tqbf/patchup/pkg/patcherr"
	"github.com/tqbf/patchup/pkg/paths"
	"github.com/tqbf/patchup/pkg/snapshot"
	"github.com/tqbf/patchup/pkg/xdelta"
)

const DefaultStagingDir = "tmp_patch"

type Builder struct {
	Tool xdelta.Tool
	// StagingDir is destroyed and recreated by every build, and removed
	// again when the build ends.
	StagingDir string
	Excludes   []string
	Compare    snapshot.Compare
	Logger     *slog.Logger
}

type Result struct {
	Added   []string
	Removed []string
	Changed []string
	Archive string
	Size    int64
}

func (r *Result) Counts() (added, removed, changed int) {
	return len(r.Added), len(r.Removed), len(r.Changed)
}

func (r *Result) Summary() string {
	return fmt.Sprintf(
		"Added: %d\nRemoved: %d\nChanged: %d",
		len(r.Added), len(r.Removed), len(r.Changed),
	)
}

func (b *Builder) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}

func (b *Builder) stagingDir() string {
	if b.StagingDir == "" {
		return DefaultStagingDir
	}
	return b.StagingDir
}

// Plan walks both trees and classifies their paths without staging
// anything.
func (b *Builder) Plan(
	ctx context.Context,
	oldRoot, newRoot string,
) (snapshot.Changes, error) {
	if err := validateRoots(oldRoot, newRoot); err != nil {
		return snapshot.Changes{}, err
	}

	opts := snapshot.Options{
		Excludes: b.Excludes,
		Compare:  b.Compare,
	}
	oldSnap, err := snapshot.Walk(ctx, oldRoot, opts)
	if err != nil {
		return snapshot.Changes{}, fmt.Errorf("walk old: %w", err)
	}
	newSnap, err := snapshot.Walk(ctx, newRoot, opts)
	if err != nil {
		return snapshot.Changes{}, fmt.Errorf("walk new: %w", err)
	}
	b.logger().Debug("snapshots",
		"old", len(oldSnap),
		"new", len(newSnap),
		"compare", b.Compare,
	)
	return snapshot.Classify(oldSnap, newSnap, b.Compare), nil
}

func (b *Builder) Build(
	ctx context.Context,
	oldRoot, newRoot, output string,
) (*Result, error) {
	start := time.Now()
	if output == "" {
		return nil, patcherr.New(
			patcherr.KindConfigInvalid, "build",
			"please enter patch file name",
		)
	}
	if err := validateRoots(oldRoot, newRoot); err != nil {
		return nil, err
	}
	staging := b.stagingDir()
	if err := checkStaging(staging, oldRoot, newRoot); err != nil {
		return nil, err
	}
	if _, err := b.Tool.Check(); err != nil {
		return nil, err
	}

	changes, err := b.Plan(ctx, oldRoot, newRoot)
	if err != nil {
		return nil, err
	}
	m := &manifest.Manifest{
		Added:   changes.Added,
		Removed: changes.Removed,
		Changed: changes.Changed,
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if err := os.RemoveAll(staging); err != nil {
		return nil, fmt.Errorf("clear staging: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(staging); rmErr != nil {
			b.logger().Warn("remove staging failed",
				"dir", staging, "err", rmErr,
			)
		}
	}()
	filesDir := filepath.Join(staging, manifest.FilesDir)
	if err := os.MkdirAll(filesDir, 0755); err != nil {
		return nil, fmt.Errorf("create staging: %w", err)
	}

	err = manifest.WriteFile(
		filepath.Join(staging, manifest.FileName), m,
	)
	if err != nil {
		return nil, err
	}

	if err := b.stageAdded(newRoot, filesDir, m.Added); err != nil {
		return nil, err
	}
	err = b.stageDeltas(ctx, oldRoot, newRoot, filesDir, m.Changed)
	if err != nil {
		return nil, err
	}

	count, err := archive.Create(output, staging)
	if err != nil {
		return nil, fmt.Errorf("package %s: %w", output, err)
	}
	info, err := os.Stat(output)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", output, err)
	}

	b.logger().Info("patch built",
		"archive", output,
		"entries", count,
		"added", len(m.Added),
		"removed", len(m.Removed),
		"changed", len(m.Changed),
		"elapsed", time.Since(start),
	)
	return &Result{
		Added:   m.Added,
		Removed: m.Removed,
		Changed: m.Changed,
		Archive: output,
		Size:    info.Size(),
	}, nil
}

func (b *Builder) stageAdded(
	newRoot, filesDir string, added []string,
) error {
	for _, rel := range added {
		src, err := paths.Resolve(newRoot, rel)
		if err != nil {
			return err
		}
		dst, err := paths.Resolve(filesDir, rel)
		if err != nil {
			return err
		}
		if err := copyFile(src, dst); err != nil {
			return fmt.Errorf("stage %s: %w", rel, err)
		}
	}
	return nil
}

func (b *Builder) stageDeltas(
	ctx context.Context,
	oldRoot, newRoot, filesDir string,
	changed []string,
) error {
	for _, rel := range changed {
		oldFile, err := paths.Resolve(oldRoot, rel)
		if err != nil {
			return err
		}
		newFile, err := paths.Resolve(newRoot, rel)
		if err != nil {
			return err
		}
		out, err := paths.Resolve(filesDir, rel+manifest.DeltaExt)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return fmt.Errorf("stage %s: %w", rel, err)
		}
		if err := b.Tool.Encode(ctx, oldFile, newFile, out); err != nil {
			return fmt.Errorf(
				"failed to create patch for %q: %w", rel, err,
			)
		}
	}
	return nil
}

func validateRoots(oldRoot, newRoot string) error {
	if oldRoot == "" || newRoot == "" {
		return patcherr.New(
			patcherr.KindConfigInvalid, "build",
			"please enter a path for both the new and the old version",
		)
	}
	for _, r := range []struct{ name, dir string }{
		{"old", oldRoot},
		{"new", newRoot},
	} {
		info, err := os.Stat(r.dir)
		if err != nil || !info.IsDir() {
			return patcherr.New(
				patcherr.KindConfigInvalid, "build",
				"%s version directory doesn't exist", r.name,
			).WithPath(r.dir)
		}
	}
	return nil
}

func checkStaging(staging string, roots ...string) error {
	abs, err := filepath.Abs(staging)
	if err != nil {
		return err
	}
	for _, r := range roots {
		rootAbs, err := filepath.Abs(r)
		if err != nil {
			return err
		}
		if paths.IsWithinDir(rootAbs, abs) || paths.IsWithinDir(abs, rootAbs) {
			return patcherr.New(
				patcherr.KindConfigInvalid, "build",
				"staging dir overlaps %s", r,
			).WithPath(staging)
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}
	out, err := os.OpenFile(
		dst,
		os.O_CREATE|os.O_WRONLY|os.O_TRUNC,
		info.Mode().Perm(),
	)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}
