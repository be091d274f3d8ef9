// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package users

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/tomtom215/xbackup/internal/errs"
)

func setupRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{"carol", "alice", "bob", ".cache", "lost+found"} {
		if err := os.Mkdir(filepath.Join(root, d), 0o750); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(root, "alice"), filepath.Join(root, "alias")); err != nil {
		t.Fatal(err)
	}
	return root
}

func names(us []User) []string {
	out := make([]string, len(us))
	for i, u := range us {
		out[i] = u.Name
	}
	return out
}

func TestDiscover(t *testing.T) {
	root := setupRoot(t)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{
			name:   "all visible directories sorted",
			filter: Filter{},
			want:   []string{"alice", "bob", "carol", "lost+found"},
		},
		{
			name:   "exclude",
			filter: Filter{Exclude: []string{"lost+found", "bob"}},
			want:   []string{"alice", "carol"},
		},
		{
			name:   "include",
			filter: Filter{Include: []string{"carol", "alice", "nobody"}},
			want:   []string{"alice", "carol"},
		},
		{
			name:   "include and exclude",
			filter: Filter{Include: []string{"alice", "bob"}, Exclude: []string{"bob"}},
			want:   []string{"alice"},
		},
		{
			name:   "hidden",
			filter: Filter{IncludeHidden: true, Exclude: []string{"lost+found"}},
			want:   []string{".cache", "alice", "bob", "carol"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Discover(root, tt.filter)
			if err != nil {
				t.Fatalf("Discover() error = %v", err)
			}
			if !reflect.DeepEqual(names(got), tt.want) {
				t.Errorf("Discover() = %v, want %v", names(got), tt.want)
			}
		})
	}
}

func TestDiscover_Paths(t *testing.T) {
	root := setupRoot(t)
	got, err := Discover(root, Filter{Include: []string{"bob"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Path != filepath.Join(root, "bob") {
		t.Errorf("Discover() = %v", got)
	}
}

func TestDiscover_MissingRoot(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "absent"), Filter{})
	if !errs.Is(err, errs.InputUnreadable) {
		t.Errorf("Discover() error = %v, want InputUnreadable", err)
	}
}

func TestMissing(t *testing.T) {
	found := []User{{Name: "alice"}, {Name: "bob"}}
	got := Missing(found, []string{"alice", "zed", "bob", "amy"})
	if !reflect.DeepEqual(got, []string{"zed", "amy"}) {
		t.Errorf("Missing() = %v", got)
	}
	if Missing(found, nil) != nil {
		t.Error("Missing() with no include list should be nil")
	}
}
