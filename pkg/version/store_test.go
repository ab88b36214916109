package version

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memStore(t *testing.T) *Store {
	t.Helper()
	return &Store{
		FS:   afero.NewMemMapFs(),
		Path: "/install/version",
	}
}

func TestReadInitializesMissing(t *testing.T) {
	s := memStore(t)

	v, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, 0, v)

	data, err := afero.ReadFile(s.FS, s.Path)
	require.NoError(t, err)
	assert.Equal(t, "0", string(data))
}

func TestPeekLeavesMissing(t *testing.T) {
	s := memStore(t)

	v, exists, err := s.Peek()
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, 0, v)

	ok, err := afero.Exists(s.FS, s.Path)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Write(3))
	v, exists, err = s.Peek()
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, 3, v)
}

func TestWriteThenRead(t *testing.T) {
	s := memStore(t)
	require.NoError(t, s.Write(7))
	require.NoError(t, s.Write(12))

	v, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, 12, v)

	entries, err := afero.ReadDir(s.FS, "/install")
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")
}

func TestReadTrimsWhitespace(t *testing.T) {
	s := memStore(t)
	require.NoError(t, afero.WriteFile(s.FS, s.Path, []byte(" 42\r\n"), 0644))

	v, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestReadCorrupt(t *testing.T) {
	s := memStore(t)
	require.NoError(t, afero.WriteFile(s.FS, s.Path, []byte("abc"), 0644))
	_, err := s.Read()
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(s.FS, s.Path, []byte("-3"), 0644))
	_, err = s.Read()
	assert.Error(t, err)
}

func TestWriteRejectsNegative(t *testing.T) {
	assert.Error(t, memStore(t).Write(-1))
}

func TestOsStore(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, s.Write(3))
	v, err := s.Read()
	require.NoError(t, err)
	assert.Equal(t, 3, v)
}
