// Package version persists the number of the last patch applied to an
// install.
package version

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

const DefaultFileName = "version"

type Store struct {
	FS   afero.Fs
	Path string
}

func NewStore(path string) *Store {
	return &Store{FS: afero.NewOsFs(), Path: path}
}

// Read returns the local version. A missing marker is initialized to 0.
func (s *Store) Read() (int, error) {
	v, exists, err := s.Peek()
	if err != nil || exists {
		return v, err
	}
	if err := s.Write(0); err != nil {
		return 0, err
	}
	return 0, nil
}

// Peek is Read without creating a missing marker.
func (s *Store) Peek() (v int, exists bool, err error) {
	data, err := afero.ReadFile(s.FS, s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("read version: %w", err)
	}
	v, err = parse(s.Path, data)
	return v, err == nil, err
}

func parse(path string, data []byte) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf(
			"version file %s is corrupt: %w", path, err,
		)
	}
	if v < 0 {
		return 0, fmt.Errorf(
			"version file %s holds negative version %d",
			path, v,
		)
	}
	return v, nil
}

func (s *Store) Write(v int) (err error) {
	if v < 0 {
		return fmt.Errorf("negative version %d", v)
	}
	dir := filepath.Dir(s.Path)
	if err := s.FS.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create version dir: %w", err)
	}

	f, err := afero.TempFile(
		s.FS, dir, "."+filepath.Base(s.Path)+"-*",
	)
	if err != nil {
		return fmt.Errorf("create version temp: %w", err)
	}
	tmp := f.Name()
	defer func() {
		if err != nil {
			s.FS.Remove(tmp)
		}
	}()

	_, werr := f.WriteString(strconv.Itoa(v))
	if werr == nil {
		werr = f.Sync()
	}
	cerr := f.Close()
	if werr != nil {
		return fmt.Errorf("write version: %w", werr)
	}
	if cerr != nil {
		return fmt.Errorf("close version: %w", cerr)
	}

	if err := s.FS.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("replace version: %w", err)
	}
	return nil
}
