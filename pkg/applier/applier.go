// Package applier applies an extracted patch directory to an installation
// root.
package applier

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/tqbf/patchup/pkg/manifest"
	"github.com/tqbf/patchup/pkg/patcherr"
	"github.com/tqbf/patchup/pkg/paths"
	"github.com/tqbf/patchup/pkg/xdelta"
)

// PatchedExt names the temporary output written next to a changed file
// before it replaces the original.
const PatchedExt = ".patched"

type Applier struct {
	Root   string
	Tool   xdelta.Tool
	Logger *slog.Logger
}

// ApplyError reports a failure after Done of Total files were already
// written. Files applied before the failure stay applied.
type ApplyError struct {
	Path  string
	Done  int
	Total int
	Err   error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf(
		"apply %s (%d/%d done): %v",
		e.Path, e.Done, e.Total, e.Err,
	)
}

func (e *ApplyError) Unwrap() error {
	return e.Err
}

// Partial reports whether some files were written before the failure.
func (e *ApplyError) Partial() bool {
	return e.Done > 0
}

func (a *Applier) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

func (a *Applier) Load(patchDir string) (*manifest.Manifest, error) {
	m, err := manifest.ReadFile(
		filepath.Join(patchDir, manifest.FileName),
	)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// AssertApplicable checks that the patch in patchDir can be applied to
// the root without touching either.
func (a *Applier) AssertApplicable(patchDir string) error {
	if _, err := a.Tool.Check(); err != nil {
		return err
	}
	m, err := a.Load(patchDir)
	if err != nil {
		return err
	}

	for _, rel := range m.Changed {
		target, err := paths.Resolve(a.Root, rel)
		if err != nil {
			return patcherr.Wrap(
				err, patcherr.KindManifestInvalid, "verify",
			).WithPath(rel)
		}
		info, err := os.Stat(target)
		if err != nil || !info.Mode().IsRegular() {
			return patcherr.New(
				patcherr.KindTargetMissing, "verify",
				"file to be patched not found",
			).WithPath(rel)
		}
	}

	payload := filepath.Join(patchDir, manifest.FilesDir)
	check := func(rel string) error {
		p := filepath.Join(payload, filepath.FromSlash(rel))
		if _, err := os.Stat(p); err != nil {
			return patcherr.New(
				patcherr.KindManifestInvalid, "verify",
				"payload missing from patch",
			).WithPath(rel)
		}
		return nil
	}
	for _, rel := range m.Added {
		if err := check(rel); err != nil {
			return err
		}
	}
	for _, rel := range m.Changed {
		if err := check(rel + manifest.DeltaExt); err != nil {
			return err
		}
	}
	return nil
}

// Apply applies added, then removed, then changed files. progress, if
// set, is called after each file. Cancelling ctx does not interrupt a
// patch once Apply has started.
func (a *Applier) Apply(
	ctx context.Context,
	patchDir string,
	progress func(done, total int),
) error {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()
	m, err := a.Load(patchDir)
	if err != nil {
		return err
	}
	payload := filepath.Join(patchDir, manifest.FilesDir)
	for _, line := range m.Unknown {
		a.logger().Warn("ignoring manifest line", "line", line)
	}

	total := m.Total()
	done := 0
	step := func(rel string, err error) error {
		if err != nil {
			return &ApplyError{
				Path:  rel,
				Done:  done,
				Total: total,
				Err:   err,
			}
		}
		done++
		if progress != nil {
			progress(done, total)
		}
		return nil
	}

	for _, rel := range m.Added {
		if err := step(rel, a.add(payload, rel)); err != nil {
			return err
		}
	}
	for _, rel := range m.Removed {
		if err := step(rel, a.remove(rel)); err != nil {
			return err
		}
	}
	for _, rel := range m.Changed {
		if err := step(rel, a.patch(ctx, payload, rel)); err != nil {
			return err
		}
	}

	a.logger().Info("patch applied",
		"root", a.Root,
		"added", len(m.Added),
		"removed", len(m.Removed),
		"changed", len(m.Changed),
		"elapsed", time.Since(start),
	)
	return nil
}

func (a *Applier) add(payload, rel string) error {
	src, err := paths.Resolve(payload, rel)
	if err != nil {
		return err
	}
	dst, err := paths.Resolve(a.Root, rel)
	if err != nil {
		return err
	}
	if err := copyFile(src, dst); err != nil {
		return patcherr.Wrap(
			err, patcherr.KindUnexpected, "add",
		).WithPath(rel)
	}
	a.logger().Debug("added", "path", rel)
	return nil
}

func (a *Applier) remove(rel string) error {
	target, err := paths.Resolve(a.Root, rel)
	if err != nil {
		return err
	}
	err = os.Remove(target)
	if errors.Is(err, fs.ErrNotExist) {
		a.logger().Debug("already removed", "path", rel)
		return nil
	}
	if err != nil {
		return patcherr.Wrap(
			err, patcherr.KindUnexpected, "remove",
		).WithPath(rel)
	}
	a.logger().Debug("removed", "path", rel)
	return nil
}

func (a *Applier) patch(
	ctx context.Context, payload, rel string,
) error {
	target, err := paths.Resolve(a.Root, rel)
	if err != nil {
		return err
	}
	delta, err := paths.Resolve(payload, rel+manifest.DeltaExt)
	if err != nil {
		return err
	}
	info, err := os.Stat(target)
	if err != nil {
		return patcherr.New(
			patcherr.KindTargetMissing, "patch",
			"file to be patched not found",
		).WithPath(rel)
	}

	tmp := target + PatchedExt
	if err := a.Tool.Decode(ctx, target, delta, tmp); err != nil {
		os.Remove(tmp)
		var pe *patcherr.Error
		if errors.As(err, &pe) && pe.Path == "" {
			pe.WithPath(rel)
		}
		return err
	}
	if err := os.Chmod(tmp, info.Mode().Perm()); err != nil {
		os.Remove(tmp)
		return patcherr.Wrap(
			err, patcherr.KindUnexpected, "patch",
		).WithPath(rel)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return patcherr.Wrap(
			err, patcherr.KindUnexpected, "patch",
		).WithPath(rel)
	}
	a.logger().Debug("patched", "path", rel)
	return nil
}

func copyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("mkdir parent: %w", err)
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
