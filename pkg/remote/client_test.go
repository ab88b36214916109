package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/patches/list.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("1 p1.zip\n"))
	})
	mux.HandleFunc("/patches/big.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(100<<10))
		w.Write([]byte(strings.Repeat("x", 100<<10)))
	})
	mux.HandleFunc("/patches/stream.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 8<<10)))
		w.(http.Flusher).Flush()
		w.Write([]byte(strings.Repeat("y", 8<<10)))
	})
	mux.HandleFunc("/patches/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestResolve(t *testing.T) {
	u, err := Resolve("http://example.com/patches/", "p1.zip")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/patches/p1.zip", u)

	u, err = Resolve("http://example.com/patches/", "patch 2.zip")
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/patches/patch%202.zip", u)
}

func TestGet(t *testing.T) {
	srv := testServer(t)
	c := New(5*time.Second, 0)

	data, err := c.Get(context.Background(), srv.URL+"/patches/list.txt")
	require.NoError(t, err)
	assert.Equal(t, "1 p1.zip\n", string(data))
}

func TestGetStatusError(t *testing.T) {
	srv := testServer(t)
	c := New(5*time.Second, 0)

	_, err := c.Get(context.Background(), srv.URL+"/patches/nope")
	require.Error(t, err)

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
}

func TestGetTimeout(t *testing.T) {
	srv := testServer(t)
	c := New(50*time.Millisecond, 0)

	_, err := c.Get(context.Background(), srv.URL+"/patches/slow")
	assert.Error(t, err)
}

func TestDownloadProgress(t *testing.T) {
	srv := testServer(t)
	c := New(5*time.Second, 0)
	dst := filepath.Join(t.TempDir(), "big.zip")

	var last, total int64
	n, err := c.Download(
		context.Background(), srv.URL+"/patches/big.zip", dst,
		func(done, tot int64) { last, total = done, tot },
	)
	require.NoError(t, err)
	assert.EqualValues(t, 100<<10, n)
	assert.Equal(t, n, last)
	assert.Equal(t, n, total)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, n, info.Size())
}

func TestDownloadProgressUnknownLength(t *testing.T) {
	srv := testServer(t)
	c := New(5*time.Second, 0)
	dst := filepath.Join(t.TempDir(), "stream.zip")

	var last int64
	total := int64(0)
	n, err := c.Download(
		context.Background(), srv.URL+"/patches/stream.zip", dst,
		func(done, tot int64) { last, total = done, tot },
	)
	require.NoError(t, err)
	assert.EqualValues(t, 16<<10, n)
	assert.Equal(t, n, last)
	assert.EqualValues(t, -1, total)
}

func TestDownloadThrottled(t *testing.T) {
	srv := testServer(t)
	c := New(5*time.Second, 64<<10)
	dst := filepath.Join(t.TempDir(), "big.zip")

	n, err := c.Download(
		context.Background(), srv.URL+"/patches/big.zip", dst, nil,
	)
	require.NoError(t, err)
	assert.EqualValues(t, 100<<10, n)
}

func TestDownloadFailureRemovesFile(t *testing.T) {
	srv := testServer(t)
	c := New(5*time.Second, 0)
	dst := filepath.Join(t.TempDir(), "missing.zip")

	_, err := c.Download(
		context.Background(), srv.URL+"/patches/missing.zip", dst, nil,
	)
	require.Error(t, err)
	_, statErr := os.Stat(dst)
	assert.True(t, os.IsNotExist(statErr))
}
