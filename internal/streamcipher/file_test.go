// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package streamcipher

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/tomtom215/xbackup/internal/errs"
)

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "alice.tar")
	enc := filepath.Join(dir, "alice.tar.xbk.aes")
	dec := filepath.Join(dir, "restored.tar")

	data := randomBytes(t, 300*1024)
	if err := os.WriteFile(src, data, 0o600); err != nil {
		t.Fatal(err)
	}

	if err := EncryptFile(src, enc, "pw", Options{ChunkSize: 64 * 1024}); err != nil {
		t.Fatalf("EncryptFile: %v", err)
	}
	if err := DecryptFile(enc, dec, "pw", 64*1024); err != nil {
		t.Fatalf("DecryptFile: %v", err)
	}

	got, err := os.ReadFile(dec)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, data) {
		t.Fatal("file round trip mismatch")
	}
}

func TestDecryptFileFailureLeavesNoOutput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	src := filepath.Join(dir, "in")
	enc := filepath.Join(dir, "in.aes")
	dec := filepath.Join(dir, "out")

	if err := os.WriteFile(src, randomBytes(t, 4096), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := EncryptFile(src, enc, "pw", Options{Format: FormatAEAD, ChunkSize: 512}); err != nil {
		t.Fatal(err)
	}

	err := DecryptFile(enc, dec, "not-pw", 512)
	if !errs.Is(err, errs.CipherFailure) {
		t.Fatalf("err = %v, want cipher failure", err)
	}
	if _, statErr := os.Stat(dec); !os.IsNotExist(statErr) {
		t.Errorf("output should not exist after failure, stat err = %v", statErr)
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".partial" {
			t.Errorf("temporary file %s left behind", e.Name())
		}
	}
}

func TestEncryptFileMissingSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	dst := filepath.Join(dir, "out.aes")
	err := EncryptFile(filepath.Join(dir, "missing"), dst, "pw", Options{})
	if !errs.Is(err, errs.InputUnreadable) {
		t.Fatalf("err = %v, want input unreadable", err)
	}
	if _, statErr := os.Stat(dst); !os.IsNotExist(statErr) {
		t.Error("destination must not be created")
	}
}
