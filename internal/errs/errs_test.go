// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package errs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := errors.New("exit status 2")
	err := fmt.Errorf("compress alice: %w", E(ToolExitedNonZero, "gzip", "/tmp/a.tar", base))

	if got := KindOf(err); got != ToolExitedNonZero {
		t.Fatalf("KindOf = %q, want %q", got, ToolExitedNonZero)
	}
	if !Is(err, ToolExitedNonZero) {
		t.Error("Is should match wrapped kind")
	}
	if Is(err, CipherFailure) {
		t.Error("Is should not match a different kind")
	}
	if !errors.Is(err, base) {
		t.Error("cause should stay reachable through Unwrap")
	}
	if !errors.Is(err, &Error{Kind: ToolExitedNonZero}) {
		t.Error("errors.Is should match a bare kind target")
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
	if Is(nil, InputUnreadable) {
		t.Error("nil error must not match any kind")
	}
}

func TestErrorMessage(t *testing.T) {
	err := E(OutputMissing, "7z", "/out/x.7z", nil)
	msg := err.Error()
	for _, want := range []string{"7z", "output_missing", "/out/x.7z"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}
