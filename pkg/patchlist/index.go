package patchlist

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/tqbf/patchup/pkg/patcherr"
	"github.com/tqbf/patchup/pkg/remote"
)

type Entry struct {
	Version int
	Archive string
}

func (e Entry) String() string {
	return fmt.Sprintf("[%d, %s]", e.Version, e.Archive)
}

// Index holds at most one entry per version, kept in ascending version
// order.
type Index struct {
	entries []Entry
}

func (ix *Index) Len() int {
	return len(ix.entries)
}

func (ix *Index) Entries() []Entry {
	out := make([]Entry, len(ix.entries))
	copy(out, ix.entries)
	return out
}

// Add inserts e, replacing any existing entry for the same version.
func (ix *Index) Add(e Entry) {
	i := sort.Search(len(ix.entries), func(i int) bool {
		return ix.entries[i].Version >= e.Version
	})
	if i < len(ix.entries) && ix.entries[i].Version == e.Version {
		ix.entries[i] = e
		return
	}
	ix.entries = append(ix.entries, Entry{})
	copy(ix.entries[i+1:], ix.entries[i:])
	ix.entries[i] = e
}

func (ix *Index) Lookup(version int) (Entry, bool) {
	for _, e := range ix.entries {
		if e.Version == version {
			return e, true
		}
	}
	return Entry{}, false
}

func (ix *Index) Highest() (int, error) {
	if len(ix.entries) == 0 {
		return 0, patcherr.New(
			patcherr.KindIndexEmpty, "highest version",
			"patch list has no entries",
		)
	}
	return ix.entries[len(ix.entries)-1].Version, nil
}

// Backlog returns the entries newer than local, oldest first. Each patch
// assumes the tree left by its predecessor, so callers must apply them
// in this order.
func (ix *Index) Backlog(local int) []Entry {
	i := sort.Search(len(ix.entries), func(i int) bool {
		return ix.entries[i].Version > local
	})
	out := make([]Entry, len(ix.entries)-i)
	copy(out, ix.entries[i:])
	return out
}

func Parse(r io.Reader) (*Index, error) {
	ix := &Index{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := parseLine(line)
		if err != nil {
			return nil, patcherr.New(
				patcherr.KindIndexMalformed, "parse patch list",
				"line %d: %v", lineNo, err,
			)
		}
		ix.Add(e)
	}
	if err := scanner.Err(); err != nil {
		return nil, patcherr.Wrap(
			err, patcherr.KindIndexMalformed, "parse patch list",
		)
	}
	return ix, nil
}

func parseLine(line string) (Entry, error) {
	i := strings.IndexAny(line, " \t")
	if i < 0 {
		return Entry{}, fmt.Errorf(
			"want \"<version> <archive>\", got %q", line,
		)
	}
	v, err := strconv.Atoi(strings.TrimSpace(line[:i]))
	if err != nil {
		return Entry{}, fmt.Errorf("bad version: %w", err)
	}
	if v < 0 {
		return Entry{}, fmt.Errorf("negative version %d", v)
	}
	name := strings.TrimSpace(line[i+1:])
	if name == "" {
		return Entry{}, fmt.Errorf("missing archive name")
	}
	return Entry{Version: v, Archive: name}, nil
}

func Fetch(
	ctx context.Context,
	client *remote.Client,
	uri string,
) (*Index, error) {
	data, err := client.Get(ctx, uri)
	if err != nil {
		return nil, patcherr.Wrap(
			err, patcherr.KindIndexFetchFailed, "fetch patch list",
		)
	}
	return Parse(bytes.NewReader(data))
}

func Format(w io.Writer, entries []Entry) error {
	bw := bufio.NewWriter(w)
	for _, e := range entries {
		if _, err := fmt.Fprintf(bw, "%d %s\n", e.Version, e.Archive); err != nil {
			return err
		}
	}
	return bw.Flush()
}
