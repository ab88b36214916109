package applier

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tqbf/patchup/internal/testutil"
	"github.com/tqbf/patchup/pkg/patcherr"
	"github.com/tqbf/patchup/pkg/xdelta"
)

func newApplier(t *testing.T, tool string) (*Applier, string) {
	t.Helper()
	root := t.TempDir()
	return &Applier{Root: root, Tool: xdelta.New(tool)}, root
}

func TestApplyAddsFile(t *testing.T) {
	a, root := newApplier(t, testutil.FakeTool(t))
	patch := t.TempDir()
	testutil.MakeTree(t, patch, map[string]string{
		"changes.txt":     "+dir/x.txt\n",
		"files/dir/x.txt": "hello",
	})

	var calls [][2]int
	err := a.Apply(context.Background(), patch,
		func(done, total int) {
			calls = append(calls, [2]int{done, total})
		},
	)
	require.NoError(t, err)
	assert.Equal(t,
		map[string]string{"dir/x.txt": "hello"},
		testutil.ReadTree(t, root),
	)
	assert.Equal(t, [][2]int{{1, 1}}, calls)
}

func TestApplyAddOverwrites(t *testing.T) {
	a, root := newApplier(t, testutil.FakeTool(t))
	testutil.MakeTree(t, root, map[string]string{"x.txt": "stale"})
	patch := t.TempDir()
	testutil.MakeTree(t, patch, map[string]string{
		"changes.txt": "+x.txt\n",
		"files/x.txt": "fresh",
	})

	require.NoError(t, a.Apply(context.Background(), patch, nil))
	assert.Equal(t,
		map[string]string{"x.txt": "fresh"},
		testutil.ReadTree(t, root),
	)
}

func TestApplyRemoveIsIdempotent(t *testing.T) {
	a, root := newApplier(t, testutil.FakeTool(t))
	testutil.MakeTree(t, root, map[string]string{
		"old.bin":  "x",
		"keep.txt": "k",
	})
	patch := t.TempDir()
	testutil.MakeTree(t, patch, map[string]string{
		"changes.txt": "-old.bin\n",
	})

	require.NoError(t, a.Apply(context.Background(), patch, nil))
	require.NoError(t, a.Apply(context.Background(), patch, nil))
	assert.Equal(t,
		map[string]string{"keep.txt": "k"},
		testutil.ReadTree(t, root),
	)
}

func TestApplyOrderAndChanged(t *testing.T) {
	a, root := newApplier(t, testutil.FakeTool(t))
	testutil.MakeTree(t, root, map[string]string{
		"a.txt": "v1",
		"b.txt": "same",
		"d.txt": "doomed",
	})
	patch := t.TempDir()
	testutil.MakeTree(t, patch, map[string]string{
		"changes.txt":       "+c.txt\n-d.txt\n*a.txt\n",
		"files/c.txt":       "new",
		"files/a.txt.patch": "v2",
	})

	require.NoError(t, a.AssertApplicable(patch))
	var last [2]int
	require.NoError(t, a.Apply(context.Background(), patch,
		func(done, total int) { last = [2]int{done, total} },
	))
	assert.Equal(t, map[string]string{
		"a.txt": "v2",
		"b.txt": "same",
		"c.txt": "new",
	}, testutil.ReadTree(t, root))
	assert.Equal(t, [2]int{3, 3}, last)
}

func TestAssertApplicableTargetMissing(t *testing.T) {
	a, root := newApplier(t, testutil.FakeTool(t))
	testutil.MakeTree(t, root, map[string]string{"a.txt": "v1"})
	patch := t.TempDir()
	testutil.MakeTree(t, patch, map[string]string{
		"changes.txt":              "+n.txt\n*a.txt\n*lib/gone.dll\n",
		"files/n.txt":              "n",
		"files/a.txt.patch":        "v2",
		"files/lib/gone.dll.patch": "x",
	})

	err := a.AssertApplicable(patch)
	require.Error(t, err)
	assert.True(t, patcherr.Is(err, patcherr.KindTargetMissing))
	assert.Contains(t, err.Error(), "lib/gone.dll")
	assert.Equal(t,
		map[string]string{"a.txt": "v1"},
		testutil.ReadTree(t, root),
	)
}

func TestAssertApplicableToolMissing(t *testing.T) {
	a, _ := newApplier(t, filepath.Join(t.TempDir(), "absent"))
	patch := t.TempDir()
	testutil.MakeTree(t, patch, map[string]string{
		"changes.txt": "+x.txt\n",
		"files/x.txt": "x",
	})

	err := a.AssertApplicable(patch)
	assert.True(t, patcherr.Is(err, patcherr.KindToolMissing))
}

func TestAssertApplicableMissingPayload(t *testing.T) {
	a, _ := newApplier(t, testutil.FakeTool(t))
	patch := t.TempDir()
	testutil.MakeTree(t, patch, map[string]string{
		"changes.txt": "+x.txt\n",
	})

	err := a.AssertApplicable(patch)
	assert.True(t, patcherr.Is(err, patcherr.KindManifestInvalid))
}

func TestAssertApplicablePayloadCollision(t *testing.T) {
	a, root := newApplier(t, testutil.FakeTool(t))
	testutil.MakeTree(t, root, map[string]string{"a.txt": "v1"})
	patch := t.TempDir()
	testutil.MakeTree(t, patch, map[string]string{
		"changes.txt":       "+a.txt.patch\n*a.txt\n",
		"files/a.txt.patch": "v2",
	})

	err := a.AssertApplicable(patch)
	assert.True(t, patcherr.Is(err, patcherr.KindManifestInvalid))
}

func TestApplyRejectsEscapingPaths(t *testing.T) {
	a, _ := newApplier(t, testutil.FakeTool(t))
	patch := t.TempDir()
	testutil.MakeTree(t, patch, map[string]string{
		"changes.txt": "+../evil.txt\n",
	})

	err := a.Apply(context.Background(), patch, nil)
	assert.True(t, patcherr.Is(err, patcherr.KindManifestInvalid))
	assert.NoFileExists(t, filepath.Join(filepath.Dir(a.Root), "evil.txt"))
}

func TestApplyToolFailureKeepsOriginal(t *testing.T) {
	a, root := newApplier(t, testutil.FailingTool(t))
	testutil.MakeTree(t, root, map[string]string{
		"a.txt": "v1",
	})
	patch := t.TempDir()
	testutil.MakeTree(t, patch, map[string]string{
		"changes.txt":       "+c.txt\n*a.txt\n",
		"files/c.txt":       "new",
		"files/a.txt.patch": "v2",
	})

	err := a.Apply(context.Background(), patch, nil)
	require.Error(t, err)

	var ae *ApplyError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, "a.txt", ae.Path)
	assert.Equal(t, 1, ae.Done)
	assert.Equal(t, 2, ae.Total)
	assert.True(t, ae.Partial())
	assert.True(t, patcherr.Is(err, patcherr.KindToolExecutionFailed))
	assert.Contains(t, err.Error(), "checksum mismatch")

	assert.Equal(t, map[string]string{
		"a.txt": "v1",
		"c.txt": "new",
	}, testutil.ReadTree(t, root))
	_, statErr := os.Stat(filepath.Join(root, "a.txt"+PatchedExt))
	assert.True(t, os.IsNotExist(statErr))
}

func TestApplyFinishesAfterCancel(t *testing.T) {
	a, root := newApplier(t, testutil.SlowTool(t))
	testutil.MakeTree(t, root, map[string]string{
		"a.txt": "v1",
		"b.txt": "v1",
	})
	patch := t.TempDir()
	testutil.MakeTree(t, patch, map[string]string{
		"changes.txt":       "*a.txt\n*b.txt\n",
		"files/a.txt.patch": "v2",
		"files/b.txt.patch": "v2",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	timer := time.AfterFunc(100*time.Millisecond, cancel)
	defer timer.Stop()

	require.NoError(t, a.Apply(ctx, patch, nil))
	assert.Error(t, ctx.Err())
	assert.Equal(t, map[string]string{
		"a.txt": "v2",
		"b.txt": "v2",
	}, testutil.ReadTree(t, root))
}

func TestApplyKeepsFileMode(t *testing.T) {
	a, root := newApplier(t, testutil.FakeTool(t))
	testutil.MakeTree(t, root, map[string]string{"run.sh": "v1"})
	require.NoError(t, os.Chmod(filepath.Join(root, "run.sh"), 0755))
	patch := t.TempDir()
	testutil.MakeTree(t, patch, map[string]string{
		"changes.txt":        "*run.sh\n",
		"files/run.sh.patch": "v2",
	})

	require.NoError(t, a.Apply(context.Background(), patch, nil))
	info, err := os.Stat(filepath.Join(root, "run.sh"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0755), info.Mode().Perm())
}

func TestApplyUnknownLinesIgnored(t *testing.T) {
	a, root := newApplier(t, testutil.FakeTool(t))
	patch := t.TempDir()
	testutil.MakeTree(t, patch, map[string]string{
		"changes.txt": "?weird\n+x.txt\n",
		"files/x.txt": "x",
	})

	require.NoError(t, a.Apply(context.Background(), patch, nil))
	assert.Equal(t,
		map[string]string{"x.txt": "x"},
		testutil.ReadTree(t, root),
	)
}
