package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/pmezard/go-difflib/difflib"
	"github.com/urfave/cli/v2"
)

func diffCmd() *cli.Command {
	return &cli.Command{
		Name:      "diff",
		Usage:     "show what a patch between two trees would contain",
		ArgsUsage: "<oldDir> <newDir>",
		Flags: append(treeFlags(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "JSON output",
			},
			&cli.BoolFlag{
				Name:  "unified",
				Usage: "print a unified diff of changed text files",
			},
		),
		Action: diffAction,
	}
}

type diffJSON struct {
	Added   []string    `json:"added"`
	Removed []string    `json:"removed"`
	Changed []string    `json:"changed"`
	Summary diffSummary `json:"summary"`
}

type diffSummary struct {
	AddedCount   int   `json:"added_count"`
	AddedBytes   int64 `json:"added_bytes"`
	RemovedCount int   `json:"removed_count"`
	ChangedCount int   `json:"changed_count"`
}

func diffAction(c *cli.Context) error {
	if c.NArg() != 2 {
		return fmt.Errorf("usage: patchmk diff <oldDir> <newDir>")
	}
	oldDir := c.Args().Get(0)
	newDir := c.Args().Get(1)

	b, err := newBuilder(c)
	if err != nil {
		return err
	}
	changes, err := b.Plan(c.Context, oldDir, newDir)
	if err != nil {
		return err
	}

	var addedBytes int64
	for _, p := range changes.Added {
		if info, err := os.Stat(filepath.Join(newDir, p)); err == nil {
			addedBytes += info.Size()
		}
	}

	if c.Bool("json") {
		out := diffJSON{
			Added:   nonNil(changes.Added),
			Removed: nonNil(changes.Removed),
			Changed: nonNil(changes.Changed),
			Summary: diffSummary{
				AddedCount:   len(changes.Added),
				AddedBytes:   addedBytes,
				RemovedCount: len(changes.Removed),
				ChangedCount: len(changes.Changed),
			},
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	if changes.Empty() {
		fmt.Println("No changes.")
		return nil
	}

	var sb strings.Builder
	for _, p := range changes.Added {
		fmt.Fprintf(&sb, "  + %s\n", p)
	}
	for _, p := range changes.Removed {
		fmt.Fprintf(&sb, "  - %s\n", p)
	}
	for _, p := range changes.Changed {
		fmt.Fprintf(&sb, "  * %s\n", p)
	}
	fmt.Print(sb.String())
	fmt.Printf(
		"%d added (%s), %d removed, %d changed\n",
		len(changes.Added), humanize.Bytes(uint64(addedBytes)),
		len(changes.Removed), len(changes.Changed),
	)

	if c.Bool("unified") {
		for _, p := range changes.Changed {
			if err := printUnified(oldDir, newDir, p); err != nil {
				return err
			}
		}
	}
	return nil
}

const maxUnifiedSize = 1 << 20

func printUnified(oldDir, newDir, rel string) error {
	a, err := readText(filepath.Join(oldDir, rel))
	if err != nil {
		return err
	}
	b, err := readText(filepath.Join(newDir, rel))
	if err != nil {
		return err
	}
	if a == nil || b == nil {
		fmt.Printf("Binary or large file %s differs\n", rel)
		return nil
	}

	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: "a/" + rel,
		ToFile:   "b/" + rel,
		Context:  3,
	})
	if err != nil {
		return fmt.Errorf("diff %s: %w", rel, err)
	}
	fmt.Print(text)
	return nil
}

// readText returns nil data for files too large or not valid UTF-8.
func readText(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxUnifiedSize {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !utf8.Valid(data) {
		return nil, nil
	}
	return data, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
