// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

//go:build !unix

package backup

// acquireLock is a no-op where flock is unavailable.
func acquireLock(string) (func(), error) {
	return func() {}, nil
}
