// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package preflight

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/shirou/gopsutil/v4/disk"
)

func fakeChecker(free uint64, present ...string) *Checker {
	have := make(map[string]bool)
	for _, p := range present {
		have[p] = true
	}
	return &Checker{
		LookPath: func(file string) (string, error) {
			if have[file] {
				return "/usr/bin/" + file, nil
			}
			return "", exec.ErrNotFound
		},
		DiskUsage: func(_ context.Context, path string) (*disk.UsageStat, error) {
			return &disk.UsageStat{Path: path, Free: free, Total: free * 2}, nil
		},
	}
}

func TestRun_AllPass(t *testing.T) {
	c := fakeChecker(10<<30, "gpg", "xz")
	r := c.Run(context.Background(), Options{
		WorkDir:         filepath.Join(t.TempDir(), "work"),
		SourceRoot:      t.TempDir(),
		MinFreeBytes:    1 << 30,
		Binaries:        []string{"gpg", "xz"},
		NeedsPassphrase: true,
		HasPassphrase:   true,
	})
	if err := r.Err(); err != nil {
		t.Fatalf("Err() = %v", err)
	}
	if len(r.Results) != 6 {
		t.Errorf("got %d results, want 6", len(r.Results))
	}
}

func TestRun_ReportsEveryFailure(t *testing.T) {
	c := fakeChecker(1<<20, "gpg")
	r := c.Run(context.Background(), Options{
		WorkDir:         t.TempDir(),
		SourceRoot:      filepath.Join(t.TempDir(), "missing"),
		MinFreeBytes:    1 << 30,
		Binaries:        []string{"gpg", "7z"},
		NeedsPassphrase: true,
	})

	failed := r.Failed()
	names := make([]string, len(failed))
	for i, f := range failed {
		names[i] = f.Name
	}
	want := []string{"source_root", "free_space", "binary 7z", "passphrase"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("failed checks = %v, want %v", names, want)
	}

	err := r.Err()
	if !errors.Is(err, ErrFailed) {
		t.Fatalf("Err() = %v, want ErrFailed", err)
	}
	if !strings.Contains(err.Error(), "1.0 MiB free of 1.0 GiB required") {
		t.Errorf("free space detail missing: %v", err)
	}
}

func TestRun_WorkDirNotWritable(t *testing.T) {
	parent := t.TempDir()
	file := filepath.Join(parent, "file")
	c := fakeChecker(10 << 30)
	if err := writeFile(file); err != nil {
		t.Fatal(err)
	}

	r := c.Run(context.Background(), Options{WorkDir: filepath.Join(file, "sub")})
	if len(r.Failed()) != 1 || r.Failed()[0].Name != "work_dir" {
		t.Errorf("Failed() = %+v, want work_dir", r.Failed())
	}
}

func TestRun_RealHost(t *testing.T) {
	r := Run(context.Background(), Options{WorkDir: t.TempDir(), MinFreeBytes: 1})
	if err := r.Err(); err != nil {
		t.Errorf("Run() on a temp dir = %v", err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := map[uint64]string{
		0:       "0 B",
		1023:    "1023 B",
		1024:    "1.0 KiB",
		1536:    "1.5 KiB",
		1 << 30: "1.0 GiB",
	}
	for in, want := range tests {
		if got := formatBytes(in); got != want {
			t.Errorf("formatBytes(%d) = %q, want %q", in, got, want)
		}
	}
}

func writeFile(path string) error {
	return os.WriteFile(path, []byte("x"), 0o600)
}
