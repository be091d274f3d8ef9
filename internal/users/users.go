// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package users discovers the per-user directories a run backs up.
package users

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tomtom215/xbackup/internal/errs"
)

// User is one directory directly under the source root.
type User struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// Filter narrows discovery.
type Filter struct {
	// Include limits discovery to these names when non-empty.
	Include []string

	// Exclude drops these names.
	Exclude []string

	// IncludeHidden keeps dot-directories.
	IncludeHidden bool
}

// Discover lists the user directories under root, sorted by name. Symlinks
// and plain files are not users.
func Discover(root string, f Filter) ([]User, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errs.E(errs.InputUnreadable, "discover users", root, err)
	}

	include := toSet(f.Include)
	exclude := toSet(f.Exclude)

	users := make([]User, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() {
			continue
		}
		if !f.IncludeHidden && strings.HasPrefix(name, ".") {
			continue
		}
		if len(include) > 0 && !include[name] {
			continue
		}
		if exclude[name] {
			continue
		}
		users = append(users, User{Name: name, Path: filepath.Join(root, name)})
	}

	sort.Slice(users, func(i, j int) bool { return users[i].Name < users[j].Name })
	return users, nil
}

// Missing returns the Include names that Discover did not find, so a typo in
// the include list is reported rather than silently backing up nobody.
func Missing(found []User, include []string) []string {
	have := make(map[string]bool, len(found))
	for _, u := range found {
		have[u.Name] = true
	}
	var missing []string
	for _, name := range include {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	return missing
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}

// String implements fmt.Stringer.
func (u User) String() string {
	return fmt.Sprintf("%s (%s)", u.Name, u.Path)
}
