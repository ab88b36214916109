package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/tqbf/patchup/pkg/builder"
	"github.com/tqbf/patchup/pkg/notify"
	"github.com/tqbf/patchup/pkg/patchlist"
	"github.com/tqbf/patchup/pkg/patchserver"
	"github.com/tqbf/patchup/pkg/remote"
	"github.com/tqbf/patchup/pkg/snapshot"
	"github.com/tqbf/patchup/pkg/updater"
	"github.com/tqbf/patchup/pkg/version"
	"github.com/tqbf/patchup/pkg/xdelta"
)

const listName = "patchlist.txt"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithTimeout(
		context.Background(), 2*time.Minute,
	)
	defer cancel()

	work, err := os.MkdirTemp("", "patchup-sim-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(work)

	toolPath, err := findTool(work)
	if err != nil {
		return err
	}
	tool := xdelta.New(toolPath)

	versions := []string{
		filepath.Join(work, "v0"),
		filepath.Join(work, "v1"),
		filepath.Join(work, "v2"),
	}
	patchDir := filepath.Join(work, "patches")
	installDir := filepath.Join(work, "install")

	fmt.Println("=== Building version trees ===")
	for i, dir := range versions {
		if err := writeTree(dir, treeFor(i)); err != nil {
			return err
		}
		fmt.Printf("v%d: %d files\n", i, countFiles(dir))
	}
	if err := writeTree(installDir, treeFor(0)); err != nil {
		return err
	}
	fmt.Printf("Install: %s\n\n", installDir)

	fmt.Println("=== Building patches ===")
	if err := os.MkdirAll(patchDir, 0755); err != nil {
		return err
	}
	b := &builder.Builder{
		Tool:       tool,
		StagingDir: filepath.Join(work, "tmp_patch"),
		Excludes:   []string{"*.log"},
		Compare:    snapshot.CompareContent,
	}
	for i := 1; i < len(versions); i++ {
		name := fmt.Sprintf("patch%d.zip", i)
		res, err := b.Build(ctx,
			versions[i-1], versions[i],
			filepath.Join(patchDir, name),
		)
		if err != nil {
			return fmt.Errorf("build %s: %w", name, err)
		}
		fmt.Printf("%s (%s)\n", name, humanize.Bytes(uint64(res.Size)))
		fmt.Println(indent(res.Summary()))

		_, err = patchlist.Publish(
			filepath.Join(patchDir, listName),
			patchlist.Entry{Version: i, Archive: name},
		)
		if err != nil {
			return err
		}
	}

	fmt.Println("\n=== Starting patch server ===")
	srv := patchserver.New(patchDir, listName, nil)
	if err := srv.Reload(); err != nil {
		return err
	}
	hs := httptest.NewServer(srv.Handler())
	defer hs.Close()
	fmt.Printf("Serving %s at %s\n", patchDir, hs.URL)

	sub, err := notify.Subscribe(ctx, hs.URL+patchserver.EventsPath)
	if err != nil {
		return err
	}
	defer sub.Close()
	hello, err := sub.Next(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Notification: %s version=%d\n\n", hello.Type, hello.Version)

	fmt.Println("=== Updating installation ===")
	sess, err := updater.NewSession(updater.Options{
		PatchURI: hs.URL + "/",
		ListName: listName,
		Root:     installDir,
		Store: version.NewStore(
			filepath.Join(installDir, version.DefaultFileName),
		),
		Client:   remote.New(30*time.Second, 0),
		Tool:     tool,
		Observer: printEvent,
	})
	if err != nil {
		return err
	}
	res, err := sess.Check(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("local=%d latest=%d pending=%d\n",
		res.Local, res.Latest, len(res.Pending),
	)
	if err := sess.Update(ctx); err != nil {
		return err
	}

	fmt.Println("\n=== Verifying installation ===")
	if err := compareTrees(ctx, versions[2], installDir); err != nil {
		return err
	}
	fmt.Println("  Install matches v2.")

	fmt.Println("\n=== Second update (should be no-op) ===")
	if err := sess.Update(ctx); err != nil {
		return err
	}

	fmt.Println("\n=== Server metrics ===")
	if err := printMetrics(hs.URL + "/metrics"); err != nil {
		return err
	}

	fmt.Println("\nDone.")
	return nil
}

// findTool returns the real delta tool when installed, otherwise a
// stand-in that stores whole files as "deltas".
func findTool(work string) (string, error) {
	if p, err := exec.LookPath(xdelta.DefaultPath); err == nil {
		fmt.Printf("Delta tool: %s\n\n", p)
		return p, nil
	}
	p := filepath.Join(work, "copydelta")
	script := "#!/bin/sh\nwhile [ $# -gt 3 ]; do shift; done\ncp \"$2\" \"$3\"\n"
	if err := os.WriteFile(p, []byte(script), 0755); err != nil {
		return "", err
	}
	fmt.Printf(
		"Delta tool: %s not found, using copying stand-in\n\n",
		xdelta.DefaultPath,
	)
	return p, nil
}

func printEvent(ev updater.Event) {
	switch ev.State {
	case updater.Downloading:
		if ev.Total > 0 && ev.Done == ev.Total {
			fmt.Printf("  v%d downloaded %s (%s)\n",
				ev.Version, ev.Archive,
				humanize.Bytes(uint64(ev.Total)),
			)
		}
	case updater.Verifying:
		fmt.Printf("  v%d verified\n", ev.Version)
	case updater.Applying:
		if ev.Total > 0 && ev.Done == ev.Total {
			fmt.Printf("  v%d applied %d files\n", ev.Version, ev.Total)
		}
	case updater.UpToDate, updater.UpdatesAvailable,
		updater.Complete, updater.Failed:
		fmt.Printf("  [%s] %s\n", ev.State, ev.Message)
	}
}

func compareTrees(ctx context.Context, want, got string) error {
	opts := snapshot.Options{
		Compare:  snapshot.CompareContent,
		Excludes: []string{"*.log", version.DefaultFileName},
	}
	a, err := snapshot.Walk(ctx, want, opts)
	if err != nil {
		return err
	}
	b, err := snapshot.Walk(ctx, got, opts)
	if err != nil {
		return err
	}
	c := snapshot.Classify(a, b, snapshot.CompareContent)
	if !c.Empty() {
		return fmt.Errorf(
			"install differs: added=%v removed=%v changed=%v",
			c.Added, c.Removed, c.Changed,
		)
	}
	return nil
}

func printMetrics(url string) error {
	resp, err := http.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	sc := bufio.NewScanner(io.LimitReader(resp.Body, 1<<20))
	for sc.Scan() {
		if strings.HasPrefix(sc.Text(), "patchd_") {
			fmt.Printf("  %s\n", sc.Text())
		}
	}
	return sc.Err()
}

type fileSpec struct {
	mode    os.FileMode
	content string
}

func treeFor(v int) map[string]fileSpec {
	files := map[string]fileSpec{
		"game.sh":            {0755, "#!/bin/sh\necho starting v0\n"},
		"README.txt":         {0644, "Space Game\n\nRun game.sh to play.\n"},
		"data/items.txt":     {0644, itemList(10)},
		"data/maps/town.map": {0644, mapData("town", 24)},
		"data/maps/cave.map": {0644, mapData("cave", 16)},
		"lang/en.txt":        {0644, "hello=Hello\nbye=Goodbye\n"},
		"lang/de.txt":        {0644, "hello=Hallo\nbye=Tschuess\n"},
		"logs/client.log":    {0644, "local log, never patched\n"},
	}
	if v >= 1 {
		files["game.sh"] = fileSpec{0755, "#!/bin/sh\necho starting v1\n"}
		files["data/items.txt"] = fileSpec{0644, itemList(14)}
		files["data/maps/forest.map"] = fileSpec{0644, mapData("forest", 32)}
		files["lang/fr.txt"] = fileSpec{0644, "hello=Bonjour\nbye=Au revoir\n"}
		delete(files, "lang/de.txt")
	}
	if v >= 2 {
		files["game.sh"] = fileSpec{0755, "#!/bin/sh\necho starting v2\n"}
		files["data/maps/cave.map"] = fileSpec{0644, mapData("cave", 20)}
		files["lang/de.txt"] = fileSpec{0644, "hello=Guten Tag\nbye=Tschuess\n"}
		delete(files, "data/maps/town.map")
	}
	return files
}

func itemList(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d\titem_%03d\t%d\n", i, i, i*25)
	}
	return b.String()
}

func mapData(name string, size int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "map %s %dx%d\n", name, size, size)
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if (x*7+y*3+len(name))%5 == 0 {
				b.WriteByte('#')
			} else {
				b.WriteByte('.')
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func writeTree(dir string, files map[string]fileSpec) error {
	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		spec := files[name]
		full := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			return err
		}
		err := os.WriteFile(full, []byte(spec.content), spec.mode)
		if err != nil {
			return err
		}
	}
	return nil
}

func countFiles(dir string) int {
	n := 0
	filepath.WalkDir(dir, func(p string, d os.DirEntry, err error) error {
		if err == nil && d.Type().IsRegular() {
			n++
		}
		return nil
	})
	return n
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
