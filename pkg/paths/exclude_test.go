package paths

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExcludeBareName(t *testing.T) {
	m := NewExcludeMatcher([]string{"logs"})
	assert.True(t, m.Match("logs"))
	assert.True(t, m.Match("client/logs"))
	assert.True(t, m.Match("logs/today.log"))
	assert.False(t, m.Match("logs.txt"))
}

func TestExcludeTrailingSlash(t *testing.T) {
	m := NewExcludeMatcher([]string{"screenshots/"})
	assert.True(t, m.Match("screenshots"))
	assert.True(t, m.Match("screenshots/001.png"))
}

func TestExcludeWildcardExtension(t *testing.T) {
	m := NewExcludeMatcher([]string{"*.log"})
	assert.True(t, m.Match("client.log"))
	assert.True(t, m.Match("deep/nested/crash.log"))
	assert.False(t, m.Match("client.exe"))
	assert.False(t, m.Match("client.logx"))
}

func TestExcludeQuestionMark(t *testing.T) {
	m := NewExcludeMatcher([]string{"?.tmp"})
	assert.True(t, m.Match("a.tmp"))
	assert.True(t, m.Match("cache/x.tmp"))
	assert.False(t, m.Match("ab.tmp"))
}

func TestExcludeDoublestar(t *testing.T) {
	m := NewExcludeMatcher([]string{"**/*.bak"})
	assert.True(t, m.Match("items.bak"))
	assert.True(t, m.Match("data/db/items.bak"))
	assert.False(t, m.Match("data/items.txt"))

	m = NewExcludeMatcher([]string{"data/**/*.pdb"})
	assert.True(t, m.Match("data/x/y/client.pdb"))
	assert.True(t, m.Match("data/client.pdb"))
	assert.False(t, m.Match("bin/client.pdb"))

	m = NewExcludeMatcher([]string{"user/**"})
	assert.True(t, m.Match("user/settings.ini"))
	assert.True(t, m.Match("user"))
	assert.False(t, m.Match("users/a"))

	m = NewExcludeMatcher([]string{"**"})
	assert.True(t, m.Match("a/b/c"))
}

func TestExcludePathPattern(t *testing.T) {
	m := NewExcludeMatcher([]string{"doc/*.html"})
	assert.True(t, m.Match("doc/index.html"))
	assert.False(t, m.Match("doc/sub/page.html"))
	assert.False(t, m.Match("other/index.html"))
}

func TestExcludeEmpty(t *testing.T) {
	m := NewExcludeMatcher([]string{"", "  "})
	assert.True(t, m.Empty())
	assert.False(t, m.Match("anything"))

	var nilMatcher *ExcludeMatcher
	assert.False(t, nilMatcher.Match("a"))
}
