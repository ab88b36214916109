package archive

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/tqbf/patchup/pkg/paths"
)

func Extract(src, dstDir string) (int, error) {
	zr, err := zip.OpenReader(src)
	if errors.Is(err, zip.ErrInsecurePath) && zr != nil {
		// entries are checked one by one below
		err = nil
	}
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer zr.Close()

	if err := os.MkdirAll(dstDir, 0755); err != nil {
		return 0, fmt.Errorf("create dir: %w", err)
	}

	count := 0
	for _, zf := range zr.File {
		isDir := strings.HasSuffix(zf.Name, "/") ||
			strings.HasSuffix(zf.Name, `\`) ||
			zf.FileInfo().IsDir()
		name := paths.Normalize(zf.Name)
		if name == "." {
			continue
		}
		target, err := paths.Resolve(dstDir, name)
		if err != nil {
			return count, fmt.Errorf(
				"bad archive entry %q: %w", zf.Name, err,
			)
		}

		if isDir {
			if err := os.MkdirAll(target, 0755); err != nil {
				return count, fmt.Errorf(
					"mkdir %s: %w", name, err,
				)
			}
			continue
		}
		if zf.Mode().Type() != 0 {
			continue
		}
		if err := extractFile(zf, target); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

func extractFile(zf *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("mkdir parent: %w", err)
	}

	rc, err := zf.Open()
	if err != nil {
		return fmt.Errorf("open entry %s: %w", zf.Name, err)
	}
	defer rc.Close()

	mode := zf.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	f, err := os.OpenFile(
		target,
		os.O_CREATE|os.O_WRONLY|os.O_TRUNC,
		mode,
	)
	if err != nil {
		return fmt.Errorf("create %s: %w", zf.Name, err)
	}

	_, copyErr := io.Copy(f, rc)
	closeErr := f.Close()
	if copyErr != nil {
		return fmt.Errorf("write %s: %w", zf.Name, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close %s: %w", zf.Name, closeErr)
	}
	return nil
}
