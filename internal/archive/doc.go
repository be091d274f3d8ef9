// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

/*
Package archive builds and extracts the plain tar archive that feeds the
compression and encryption pipeline.

Archive Structure:

	alice.2026-10-18_020000.tar
	├── alice/                    (the user directory, paths relative to its parent)
	│   ├── .profile
	│   ├── docs/report.odt
	│   └── link -> docs          (symlinks stored as links, never followed)
	└── xbackup-manifest.json     (entry list with SHA-256 per regular file)

The manifest is always the last entry. Sockets, devices and FIFOs are not
archived and are listed in Manifest.Skipped, as are files that could not be
read (a home directory commonly holds a few of those).

Extraction rejects entries that would land outside the target directory,
refuses symlinks pointing outside it, bounds per-file and total sizes, and can
verify every regular file against the manifest checksums.
*/
package archive
