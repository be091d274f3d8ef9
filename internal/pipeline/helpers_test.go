// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package pipeline

import (
	"bytes"
	"crypto/rand"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/tomtom215/xbackup/internal/logging"
)

// writeTestFile creates a file of compressible pseudo-archive content.
func writeTestFile(t *testing.T, dir, name string, size int) (string, []byte) {
	t.Helper()

	data := make([]byte, size)
	if _, err := rand.Read(data[:size/2]); err != nil {
		t.Fatalf("rand: %v", err)
	}
	copy(data[size/2:], bytes.Repeat([]byte("xbackup "), size/16+1))

	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path, data
}

func assertFileEquals(t *testing.T, path string, want []byte) {
	t.Helper()

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("%s: content mismatch (%d bytes, want %d)", filepath.Base(path), len(got), len(want))
	}
}

func assertNotExist(t *testing.T, path string) {
	t.Helper()

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("%s should not exist (stat err = %v)", path, err)
	}
}

func requireBinary(t *testing.T, names ...string) {
	t.Helper()

	for _, name := range names {
		if _, err := exec.LookPath(name); err != nil {
			t.Skipf("%s not installed", name)
		}
	}
}

func newTestRegistry(native bool) *Registry {
	return NewRegistry(Options{Native: native, ChunkSize: 4096}, logging.Nop())
}
