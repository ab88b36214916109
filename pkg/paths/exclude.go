package paths

import (
	"path/filepath"
	"strings"
)

type pattern struct {
	raw        string
	anchored   bool
	doublestar bool
}

// ExcludeMatcher decides which snapshot entries are left out of a patch.
// Patterns without a slash match any path component; patterns with a
// slash match the whole relative path; "**" spans directories.
type ExcludeMatcher struct {
	patterns []pattern
}

func NewExcludeMatcher(patterns []string) *ExcludeMatcher {
	m := &ExcludeMatcher{}
	for _, p := range patterns {
		p = strings.TrimSuffix(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		m.patterns = append(m.patterns, pattern{
			raw:        p,
			anchored:   strings.Contains(p, "/"),
			doublestar: strings.Contains(p, "**"),
		})
	}
	return m
}

func (m *ExcludeMatcher) Empty() bool {
	return m == nil || len(m.patterns) == 0
}

func (m *ExcludeMatcher) Match(relPath string) bool {
	if m == nil {
		return false
	}
	for _, pat := range m.patterns {
		if pat.match(relPath) {
			return true
		}
	}
	return false
}

func (p pattern) match(relPath string) bool {
	if p.doublestar {
		return matchDoublestar(p.raw, relPath)
	}
	if p.anchored {
		matched, _ := filepath.Match(p.raw, relPath)
		return matched
	}
	for _, part := range strings.Split(relPath, "/") {
		if matched, _ := filepath.Match(p.raw, part); matched {
			return true
		}
	}
	return false
}

func matchDoublestar(pat, relPath string) bool {
	prefix, suffix, ok := strings.Cut(pat, "**")
	if !ok || strings.Contains(suffix, "**") {
		return false
	}
	prefix = strings.TrimSuffix(prefix, "/")
	suffix = strings.TrimPrefix(suffix, "/")

	switch {
	case prefix == "" && suffix == "":
		return true
	case prefix == "":
		return matchTail(suffix, relPath)
	case suffix == "":
		return relPath == prefix ||
			strings.HasPrefix(relPath, prefix+"/")
	}
	rest, ok := strings.CutPrefix(relPath, prefix+"/")
	if !ok {
		return false
	}
	return matchTail(suffix, rest)
}

func matchTail(suffix, relPath string) bool {
	parts := strings.Split(relPath, "/")
	for i := range parts {
		tail := strings.Join(parts[i:], "/")
		if matched, _ := filepath.Match(suffix, tail); matched {
			return true
		}
	}
	return false
}
