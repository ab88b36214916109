package patchlist

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/renameio"
)

func Load(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Parse(f)
}

// Publish records e in the patch list at path, creating the file when it
// does not exist yet. The file is replaced atomically so a server reading
// it never sees a partial list.
func Publish(path string, e Entry) (*Index, error) {
	ix, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		ix, err = &Index{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load patch list: %w", err)
	}
	ix.Add(e)

	var buf bytes.Buffer
	if err := Format(&buf, ix.entries); err != nil {
		return nil, err
	}
	if err := renameio.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("write patch list: %w", err)
	}
	return ix, nil
}
