package archive

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tqbf/patchup/internal/testutil"
)

func TestCreateExtract(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"changes.txt":             "+c.txt\n*a.txt\n",
		"files/c.txt":             "new",
		"files/a.txt.patch":       "delta",
		"files/deep/nested/x.bin": "bytes",
	}
	testutil.MakeTree(t, src, files)

	dst := filepath.Join(t.TempDir(), "out", "patch1.zip")
	n, err := Create(dst, src)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	out := t.TempDir()
	n, err = Extract(dst, out)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Equal(t, files, testutil.ReadTree(t, out))
}

func TestCreateOverwrites(t *testing.T) {
	src := t.TempDir()
	testutil.MakeTree(t, src, map[string]string{"changes.txt": "+a\n"})

	dst := filepath.Join(t.TempDir(), "patch.zip")
	require.NoError(t, os.WriteFile(dst, []byte("stale"), 0644))

	_, err := Create(dst, src)
	require.NoError(t, err)

	zr, err := zip.OpenReader(dst)
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 1)
	assert.Equal(t, "changes.txt", zr.File[0].Name)
}

func TestCreateFailureKeepsOldArchive(t *testing.T) {
	dst := filepath.Join(t.TempDir(), "patch.zip")
	require.NoError(t, os.WriteFile(dst, []byte("previous"), 0644))

	_, err := Create(dst, filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}

func TestCreateDeterministic(t *testing.T) {
	src := t.TempDir()
	testutil.MakeTree(t, src, map[string]string{
		"changes.txt": "+a\n", "files/a": "1",
	})
	dir := t.TempDir()
	a, b := filepath.Join(dir, "a.zip"), filepath.Join(dir, "b.zip")
	_, err := Create(a, src)
	require.NoError(t, err)
	_, err = Create(b, src)
	require.NoError(t, err)

	da, _ := os.ReadFile(a)
	db, _ := os.ReadFile(b)
	assert.Equal(t, da, db)
}

func writeZip(t *testing.T, names ...string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "evil.zip")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, n := range names {
		w, err := zw.Create(n)
		require.NoError(t, err)
		w.Write([]byte("x"))
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestExtractRejectsTraversal(t *testing.T) {
	for _, name := range []string{"../escape.txt", "a/../../escape.txt", "/abs.txt"} {
		src := writeZip(t, name)
		_, err := Extract(src, t.TempDir())
		assert.Error(t, err, "entry %q", name)
	}
}

func TestExtractBackslashNames(t *testing.T) {
	src := writeZip(t, `files\data\items.txt`)
	out := t.TempDir()
	_, err := Extract(src, out)
	require.NoError(t, err)
	assert.Equal(t,
		map[string]string{"files/data/items.txt": "x"},
		testutil.ReadTree(t, out),
	)
}
