package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/tqbf/patchup/pkg/paths"
)

type Options struct {
	Excludes []string
	Compare  Compare
	// Workers bounds concurrent hashing. Zero means NumCPU.
	Workers int
}

func Walk(
	ctx context.Context,
	root string,
	opts Options,
) (Snapshot, error) {
	matcher := paths.NewExcludeMatcher(opts.Excludes)

	snap := make(Snapshot)
	err := filepath.WalkDir(
		root,
		func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(root, p)
			if err != nil {
				return err
			}
			rel = filepath.ToSlash(rel)
			if rel == "." {
				return nil
			}
			if matcher.Match(rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if d.IsDir() || !d.Type().IsRegular() {
				return nil
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			snap[rel] = Entry{
				Path:    rel,
				Size:    info.Size(),
				Mode:    int(info.Mode().Perm()),
				ModTime: info.ModTime(),
			}
			return nil
		},
	)
	if err != nil {
		return nil, err
	}

	if opts.Compare == CompareContent {
		if err := hashAll(ctx, root, snap, opts.Workers); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

type hashResult struct {
	path string
	hash string
}

func hashAll(
	ctx context.Context,
	root string,
	snap Snapshot,
	workers int,
) error {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	jobs := make(chan string)
	results := make(chan hashResult, len(snap))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(jobs)
		for rel := range snap {
			select {
			case jobs <- rel:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	for range workers {
		g.Go(func() error {
			buf := make([]byte, 1<<20)
			for rel := range jobs {
				abs := filepath.Join(root, filepath.FromSlash(rel))
				h, err := hashFile(abs, buf)
				if err != nil {
					return err
				}
				results <- hashResult{rel, h}
			}
			return nil
		})
	}

	err := g.Wait()
	close(results)
	if err != nil {
		return err
	}
	for r := range results {
		e := snap[r.path]
		e.Hash = r.hash
		snap[r.path] = e
	}
	return nil
}

func hashFile(absPath string, buf []byte) (string, error) {
	f, err := os.Open(absPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
