// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package backup orchestrates a full xbackup run and the matching restore.
//
// # Overview
//
// A run backs up every user directory under source.root, one user at a time:
//
//	preflight -> discover users -> for each user:
//	    archive (tar + manifest) -> compress/encrypt -> upload -> cleanup -> notify
//	-> rotation -> run summary
//
// A failure for one user is recorded in the RunReport and the run moves on
// to the next user. Only problems that affect every user (failed preflight,
// unreadable source root, a second run holding the lock) abort the run.
//
// # Architecture
//
//	Runner     - Owns the pipeline, storage backend, notifier and rotation engine
//	RunReport  - Per-user outcomes plus the rotation summary, printable as JSON
//	Restore    - Download, reverse the pipeline, optionally extract the archive
//
// # Artifacts
//
// Each archive is named "<user>.<YYYY-MM-DD_HHMMSS>.tar" and then run through
// the pipeline, which records the applied methods in the final name:
//
//	alice.2026-03-01_020000.tar.xbk.zstd.aes
//
// The artifact is uploaded as storage.prefix + name, which is also the
// prefix rotation lists.
//
// # Concurrency
//
// A Runner is not safe for concurrent Run calls. Separate processes are kept
// apart by an advisory lock file in the work dir.
package backup
