package patcherr

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	err := New(KindTargetMissing, "verify", "file missing").
		WithPath("a/b.txt")
	wrapped := fmt.Errorf("apply v3: %w", err)

	assert.Equal(t, KindTargetMissing, KindOf(wrapped))
	assert.Equal(t, KindUnexpected, KindOf(io.EOF))
	assert.Equal(t, KindUnexpected, KindOf(nil))
}

func TestIsWalksNestedKinds(t *testing.T) {
	inner := Wrap(io.ErrUnexpectedEOF, KindIndexFetchFailed, "fetch")
	outer := Wrap(inner, KindUnexpected, "check")

	assert.True(t, Is(outer, KindIndexFetchFailed))
	assert.True(t, Is(outer, KindUnexpected))
	assert.False(t, Is(outer, KindToolMissing))
	assert.True(t, errors.Is(outer, io.ErrUnexpectedEOF))
	assert.False(t, Is(nil, KindUnexpected))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, KindUnexpected, "op"))
}

func TestErrorString(t *testing.T) {
	err := Wrap(errors.New("exit status 1"),
		KindToolExecutionFailed, "decode").
		WithPath("bin/game.dat").
		WithDetail("xdelta3: checksum mismatch\n")

	assert.Equal(t,
		`decode "bin/game.dat": exit status 1 (xdelta3: checksum mismatch)`,
		err.Error(),
	)
	assert.Equal(t, "tool_missing", (&Error{Kind: KindToolMissing}).Error())
}

func TestUserMessage(t *testing.T) {
	err := New(KindIndexEmpty, "highest", "patch list is empty")
	assert.Equal(t,
		"Failed to check for updates: highest: patch list is empty",
		UserMessage(err),
	)
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, "Error: boom", UserMessage(errors.New("boom")))
}
