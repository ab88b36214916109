// Package patcherr tags errors raised while building, fetching and
// applying patches with a Kind, so the update session can decide what to
// tell the user without string matching.
package patcherr

import (
	"errors"
	"fmt"
	"strings"
)

type Kind string

const (
	KindConfigInvalid         Kind = "config_invalid"
	KindToolMissing           Kind = "tool_missing"
	KindIndexFetchFailed      Kind = "index_fetch_failed"
	KindIndexEmpty            Kind = "index_empty"
	KindIndexMalformed        Kind = "index_malformed"
	KindArchiveDownloadFailed Kind = "archive_download_failed"
	KindTargetMissing         Kind = "target_missing"
	KindToolExecutionFailed   Kind = "tool_execution_failed"
	KindManifestInvalid       Kind = "manifest_invalid"
	KindUnexpected            Kind = "unexpected"
)

type Error struct {
	Kind Kind
	Op   string
	Path string
	// Detail carries captured tool output.
	Detail string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
	}
	if e.Path != "" {
		if b.Len() > 0 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, "%q", e.Path)
	}
	if e.Err != nil {
		if b.Len() > 0 {
			b.WriteString(": ")
		}
		b.WriteString(e.Err.Error())
	}
	if e.Detail != "" {
		fmt.Fprintf(&b, " (%s)", e.Detail)
	}
	if b.Len() == 0 {
		return string(e.Kind)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Err:  fmt.Errorf(format, args...),
	}
}

func Wrap(err error, kind Kind, op string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) WithPath(p string) *Error {
	e.Path = p
	return e
}

func (e *Error) WithDetail(d string) *Error {
	e.Detail = strings.TrimSpace(d)
	return e
}

// KindOf returns the kind of the outermost tagged error in err's chain,
// or KindUnexpected when nothing in the chain is tagged.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnexpected
}

func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	var pe *Error
	for errors.As(err, &pe) {
		if pe.Kind == kind {
			return true
		}
		err = pe.Err
		if err == nil {
			return false
		}
	}
	return false
}

func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch KindOf(err) {
	case KindConfigInvalid:
		return "Invalid configuration: " + err.Error()
	case KindToolMissing:
		return "Patch tool not found: " + err.Error()
	case KindIndexFetchFailed, KindIndexEmpty, KindIndexMalformed:
		return "Failed to check for updates: " + err.Error()
	case KindArchiveDownloadFailed:
		return "Failed to download patch: " + err.Error()
	case KindTargetMissing:
		return "File to be patched not found: " + err.Error()
	case KindToolExecutionFailed:
		return "Patch tool failed: " + err.Error()
	case KindManifestInvalid:
		return "Invalid patch: " + err.Error()
	default:
		return "Error: " + err.Error()
	}
}
