package snapshot

import "sort"

type Changes struct {
	Added   []string
	Removed []string
	Changed []string
}

func (c Changes) Empty() bool {
	return len(c.Added) == 0 &&
		len(c.Removed) == 0 &&
		len(c.Changed) == 0
}

// Classify sorts every path of both snapshots into exactly one of added,
// removed or changed, or leaves it out when unchanged.
func Classify(
	oldSnap, newSnap Snapshot,
	cmp Compare,
) Changes {
	var c Changes

	for p, ne := range newSnap {
		oe, exists := oldSnap[p]
		switch {
		case !exists:
			c.Added = append(c.Added, p)
		case differs(oe, ne, cmp):
			c.Changed = append(c.Changed, p)
		}
	}
	for p := range oldSnap {
		if _, exists := newSnap[p]; !exists {
			c.Removed = append(c.Removed, p)
		}
	}

	sort.Strings(c.Added)
	sort.Strings(c.Removed)
	sort.Strings(c.Changed)
	return c
}

func differs(oe, ne Entry, cmp Compare) bool {
	if cmp == CompareContent {
		return oe.Size != ne.Size || oe.Hash != ne.Hash
	}
	return !oe.ModTime.Equal(ne.ModTime)
}
