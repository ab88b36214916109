package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio"
)

// fixedTime keeps archives of identical trees byte-for-byte identical
// (1980-01-01, the zip epoch).
var fixedTime = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Create zips every regular file under srcDir into dst, keyed by its
// slash path relative to srcDir. dst only appears, or replaces an older
// archive, once it is complete.
func Create(dst, srcDir string) (count int, err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("create archive dir: %w", err)
	}

	pf, err := renameio.TempFile(dir, dst)
	if err != nil {
		return 0, fmt.Errorf("create archive: %w", err)
	}
	defer pf.Cleanup()

	zw := zip.NewWriter(pf)
	count, err = addTree(zw, srcDir)
	if err != nil {
		zw.Close()
		return 0, err
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("finish archive: %w", err)
	}
	if err := pf.CloseAtomicallyReplace(); err != nil {
		return 0, fmt.Errorf("replace archive: %w", err)
	}
	return count, nil
}

func addTree(zw *zip.Writer, srcDir string) (int, error) {
	count := 0
	err := filepath.WalkDir(
		srcDir,
		func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			rel, err := filepath.Rel(srcDir, p)
			if err != nil {
				return err
			}
			if rel == "." {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				hdr := &zip.FileHeader{
					Name:     rel + "/",
					Modified: fixedTime,
				}
				hdr.SetMode(fs.ModeDir | 0755)
				_, err := zw.CreateHeader(hdr)
				return err
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if err := addFile(zw, p, rel); err != nil {
				return err
			}
			count++
			return nil
		},
	)
	return count, err
}

func addFile(zw *zip.Writer, absPath, rel string) error {
	f, err := os.Open(absPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", rel, err)
	}

	hdr := &zip.FileHeader{
		Name:     rel,
		Method:   zip.Deflate,
		Modified: fixedTime,
	}
	hdr.SetMode(info.Mode().Perm())
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("write header %s: %w", rel, err)
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("write body %s: %w", rel, err)
	}
	return nil
}
