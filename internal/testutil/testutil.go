// Package testutil holds helpers shared by package tests: directory
// trees and a stand-in for the external delta tool.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func MakeTree(
	t *testing.T,
	dir string,
	files map[string]string,
) {
	t.Helper()
	for path, content := range files {
		full := filepath.Join(dir, filepath.FromSlash(path))
		require.NoError(t,
			os.MkdirAll(filepath.Dir(full), 0755),
		)
		require.NoError(t,
			os.WriteFile(full, []byte(content), 0644),
		)
	}
}

// ReadTree returns every regular file under dir keyed by slash path.
func ReadTree(t *testing.T, dir string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		out[filepath.ToSlash(rel)] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

// Touch sets the modification time of every listed file to ts.
func Touch(t *testing.T, dir string, ts time.Time, files ...string) {
	t.Helper()
	for _, f := range files {
		full := filepath.Join(dir, filepath.FromSlash(f))
		require.NoError(t, os.Chtimes(full, ts, ts))
	}
}

// The fake tool ignores flags and copies its second positional file
// argument to the third. For encode that stores the new file as the
// "delta"; for decode it writes the "delta" as the patched output. That
// is enough to check the plumbing around the real tool.
const fakeToolScript = `#!/bin/sh
while [ $# -gt 3 ]; do shift; done
cp "$2" "$3"
`

const slowToolScript = `#!/bin/sh
sleep 0.5
while [ $# -gt 3 ]; do shift; done
cp "$2" "$3"
`

const failingToolScript = `#!/bin/sh
echo "fake delta: checksum mismatch" >&2
exit 3
`

func FakeTool(t *testing.T) string {
	t.Helper()
	return writeScript(t, "fakedelta", fakeToolScript)
}

// SlowTool behaves like FakeTool after sleeping half a second.
func SlowTool(t *testing.T) string {
	t.Helper()
	return writeScript(t, "slowdelta", slowToolScript)
}

func FailingTool(t *testing.T) string {
	t.Helper()
	return writeScript(t, "faildelta", failingToolScript)
}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake delta tool needs a POSIX shell")
	}
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0755))
	return p
}
