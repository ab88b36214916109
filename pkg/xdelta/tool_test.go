package xdelta

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tqbf/patchup/internal/testutil"
	"github.com/tqbf/patchup/pkg/patcherr"
)

func TestCheckMissing(t *testing.T) {
	tool := New(filepath.Join(t.TempDir(), "no-such-tool"))
	_, err := tool.Check()
	require.Error(t, err)
	assert.True(t, patcherr.Is(err, patcherr.KindToolMissing))
}

func TestNewDefault(t *testing.T) {
	assert.Equal(t, DefaultPath, New("").Path)
}

func TestEncodeDecode(t *testing.T) {
	tool := New(testutil.FakeTool(t))
	dir := t.TempDir()
	testutil.MakeTree(t, dir, map[string]string{
		"old.txt": "v1",
		"new.txt": "v2",
	})
	ctx := context.Background()
	delta := filepath.Join(dir, "new.txt.patch")
	out := filepath.Join(dir, "out.txt")

	require.NoError(t, tool.Encode(ctx,
		filepath.Join(dir, "old.txt"),
		filepath.Join(dir, "new.txt"),
		delta,
	))
	require.NoError(t, tool.Decode(ctx,
		filepath.Join(dir, "old.txt"), delta, out,
	))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestRunFailureCapturesStderr(t *testing.T) {
	tool := New(testutil.FailingTool(t))
	dir := t.TempDir()

	err := tool.Decode(context.Background(),
		filepath.Join(dir, "a"),
		filepath.Join(dir, "b"),
		filepath.Join(dir, "c"),
	)
	require.Error(t, err)
	assert.True(t, patcherr.Is(err, patcherr.KindToolExecutionFailed))
	assert.Contains(t, err.Error(), "checksum mismatch")
	assert.Contains(t, err.Error(), "exit status 3")
}
