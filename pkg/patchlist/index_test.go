package patchlist

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tqbf/patchup/pkg/patcherr"
	"github.com/tqbf/patchup/pkg/remote"
)

func parse(t *testing.T, s string) *Index {
	t.Helper()
	ix, err := Parse(strings.NewReader(s))
	require.NoError(t, err)
	return ix
}

func versions(entries []Entry) []int {
	var out []int
	for _, e := range entries {
		out = append(out, e.Version)
	}
	return out
}

func TestParseLastWriteWins(t *testing.T) {
	ix := parse(t, "1 a.zip\n1 b.zip\n")
	require.Equal(t, 1, ix.Len())
	e, ok := ix.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, "b.zip", e.Archive)
}

func TestParseWhitespace(t *testing.T) {
	ix := parse(t, "  3\tpatch3.zip  \r\n\n# comment\n10   patch 10.zip\n")
	assert.Equal(t, []Entry{
		{Version: 3, Archive: "patch3.zip"},
		{Version: 10, Archive: "patch 10.zip"},
	}, ix.Entries())
}

func TestParseMalformed(t *testing.T) {
	cases := []string{
		"1a.zip\n",
		"x a.zip\n",
		"-1 a.zip\n",
		"1 a.zip\n2\n",
		"1.5 a.zip\n",
	}
	for _, c := range cases {
		_, err := Parse(strings.NewReader(c))
		require.Error(t, err, "input %q", c)
		assert.True(t,
			patcherr.Is(err, patcherr.KindIndexMalformed),
			"input %q: %v", c, err,
		)
	}
}

func TestHighest(t *testing.T) {
	ix := parse(t, "5 e.zip\n1 a.zip\n3 c.zip\n")
	v, err := ix.Highest()
	require.NoError(t, err)
	assert.Equal(t, 5, v)

	_, err = (&Index{}).Highest()
	assert.True(t, patcherr.Is(err, patcherr.KindIndexEmpty))
}

func TestBacklog(t *testing.T) {
	ix := parse(t, "5 e.zip\n1 a.zip\n3 c.zip\n2 b.zip\n")
	assert.Equal(t, []int{3, 5}, versions(ix.Backlog(2)))
	assert.Equal(t, []int{1, 2, 3, 5}, versions(ix.Backlog(0)))
	assert.Empty(t, ix.Backlog(5))
	assert.Empty(t, ix.Backlog(9))
}

func TestFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(
		func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/patchlist.txt":
				w.Write([]byte("1 p1.zip\n2 p2.zip\n"))
			case "/broken.txt":
				w.Write([]byte("garbage\n"))
			default:
				http.NotFound(w, r)
			}
		},
	))
	defer srv.Close()

	c := remote.New(5*time.Second, 0)
	ctx := context.Background()

	ix, err := Fetch(ctx, c, srv.URL+"/patchlist.txt")
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Len())

	_, err = Fetch(ctx, c, srv.URL+"/missing.txt")
	assert.True(t, patcherr.Is(err, patcherr.KindIndexFetchFailed))

	_, err = Fetch(ctx, c, srv.URL+"/broken.txt")
	assert.True(t, patcherr.Is(err, patcherr.KindIndexMalformed))
}

func TestPublish(t *testing.T) {
	p := filepath.Join(t.TempDir(), "patchlist.txt")

	_, err := Publish(p, Entry{Version: 2, Archive: "p2.zip"})
	require.NoError(t, err)
	_, err = Publish(p, Entry{Version: 1, Archive: "p1.zip"})
	require.NoError(t, err)
	ix, err := Publish(p, Entry{Version: 2, Archive: "p2b.zip"})
	require.NoError(t, err)
	assert.Equal(t, 2, ix.Len())

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "1 p1.zip\n2 p2b.zip\n", string(data))
}
