// Package paths handles the relative, slash-separated paths stored in
// patch manifests and their mapping onto an install directory.
package paths

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

func ValidateRelPath(p string) error {
	if p == "" {
		return fmt.Errorf("empty path")
	}
	if strings.ContainsRune(p, 0) {
		return fmt.Errorf("path contains null byte")
	}
	if strings.ContainsAny(p, "\r\n") {
		return fmt.Errorf("path contains line break: %q", p)
	}
	if path.IsAbs(p) || filepath.IsAbs(p) || hasDrive(p) {
		return fmt.Errorf("absolute path not allowed: %s", p)
	}
	cleaned := path.Clean(p)
	if cleaned == "." {
		return fmt.Errorf("path resolves to current directory")
	}
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf(
			"path escapes base directory: %s", p,
		)
	}
	return nil
}

// Normalize converts a path read from a manifest into the canonical
// slash form. Manifests written on Windows use backslashes.
func Normalize(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	return CleanRelPath(p)
}

func CleanRelPath(p string) string {
	p = path.Clean(p)
	p = strings.TrimPrefix(p, "./")
	return p
}

// Resolve maps a manifest path onto root, refusing anything that would
// land outside of it.
func Resolve(root, rel string) (string, error) {
	if err := ValidateRelPath(rel); err != nil {
		return "", err
	}
	full := filepath.Join(root, filepath.FromSlash(rel))
	if !IsWithinDir(root, full) {
		return "", fmt.Errorf("path escapes dir: %s", rel)
	}
	return full, nil
}

func IsWithinDir(dir, full string) bool {
	rel, err := filepath.Rel(dir, full)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	return rel != ".." &&
		!strings.HasPrefix(rel, "../") &&
		!filepath.IsAbs(rel)
}

func hasDrive(p string) bool {
	return len(p) >= 2 && p[1] == ':' &&
		(p[0] >= 'a' && p[0] <= 'z' || p[0] >= 'A' && p[0] <= 'Z')
}
