package snapshot

import (
	"fmt"
	"time"
)

type Entry struct {
	Path    string
	Size    int64
	Mode    int
	ModTime time.Time
	// Hash is only filled in when walking with CompareContent.
	Hash string
}

// Snapshot maps slash-separated paths relative to the walked root to
// their metadata.
type Snapshot map[string]Entry

type Compare string

const (
	// CompareModTime flags a file as changed when its modification time
	// differs. Touched but identical files are reported as changed.
	CompareModTime Compare = "mtime"
	// CompareContent flags a file as changed when its size or SHA-256
	// differs.
	CompareContent Compare = "content"
)

func ParseCompare(s string) (Compare, error) {
	switch Compare(s) {
	case "", CompareModTime:
		return CompareModTime, nil
	case CompareContent:
		return CompareContent, nil
	}
	return "", fmt.Errorf(
		"unknown compare mode %q (want mtime or content)", s,
	)
}
