// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package errs classifies the local, recoverable failures of the artifact pipeline.
//
// Every failure carries a Kind so batch callers (the run loop, rotation) can count
// and report failures by category while continuing past them.
package errs

import (
	"errors"
	"strings"
)

// Kind categorizes a pipeline failure.
type Kind string

const (
	// InputUnreadable means the source was missing or could not be read.
	InputUnreadable Kind = "input_unreadable"

	// ToolSpawnFailed means the external executable could not be started.
	ToolSpawnFailed Kind = "tool_spawn_failed"

	// ToolExitedNonZero means the external executable ran but reported failure.
	ToolExitedNonZero Kind = "tool_exited_nonzero"

	// OutputMissing means the tool exited cleanly but produced no destination file.
	OutputMissing Kind = "output_missing"

	// CipherFailure means the cipher rejected the data (wrong key, truncation, corruption).
	CipherFailure Kind = "cipher_failure"

	// PatternMismatch means a filename could not be attributed to an owner.
	PatternMismatch Kind = "pattern_mismatch"
)

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.Path != "" {
		b.WriteString(" (")
		b.WriteString(e.Path)
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same kind, so that
// errors.Is(err, &errs.Error{Kind: errs.CipherFailure}) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && t.Op == "" && t.Path == "" && t.Err == nil
}

// E builds a classified error.
func E(kind Kind, op, path string, cause error) error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}

// KindOf returns the kind of the first classified error in err's chain, or "".
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
