// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package archive

import (
	"time"
)

// ManifestName is the tar entry holding the manifest.
const ManifestName = "xbackup-manifest.json"

// ManifestVersion is bumped when the manifest layout changes.
const ManifestVersion = 1

// EntryType classifies an archived path.
type EntryType string

const (
	TypeFile    EntryType = "file"
	TypeDir     EntryType = "dir"
	TypeSymlink EntryType = "symlink"
)

// Entry describes one archived path.
type Entry struct {
	Path    string    `json:"path"`
	Type    EntryType `json:"type"`
	Size    int64     `json:"size,omitempty"`
	Mode    uint32    `json:"mode"`
	ModTime time.Time `json:"mod_time"`
	SHA256  string    `json:"sha256,omitempty"`
	Link    string    `json:"link,omitempty"`
}

// Manifest is written as the final tar entry.
type Manifest struct {
	Version   int       `json:"version"`
	Root      string    `json:"root"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
	Files     int       `json:"files"`
	Dirs      int       `json:"dirs"`
	Symlinks  int       `json:"symlinks"`
	Bytes     int64     `json:"bytes"`
	Entries   []Entry   `json:"entries"`
	Skipped   []Skipped `json:"skipped,omitempty"`
}

// Skipped records a path left out of the archive.
type Skipped struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

func (m *Manifest) add(e Entry) {
	m.Entries = append(m.Entries, e)
	switch e.Type {
	case TypeFile:
		m.Files++
		m.Bytes += e.Size
	case TypeDir:
		m.Dirs++
	case TypeSymlink:
		m.Symlinks++
	}
}

func (m *Manifest) skip(path, reason string) {
	m.Skipped = append(m.Skipped, Skipped{Path: path, Reason: reason})
}

// checksums maps archived paths to their recorded SHA-256.
func (m *Manifest) checksums() map[string]string {
	sums := make(map[string]string, m.Files)
	for i := range m.Entries {
		if m.Entries[i].Type == TypeFile {
			sums[m.Entries[i].Path] = m.Entries[i].SHA256
		}
	}
	return sums
}
