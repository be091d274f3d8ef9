// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package main is the entry point for the xbackup command.
//
// xbackup archives every user directory under a source root, compresses and
// encrypts each archive, uploads it to local or S3 storage and rotates old
// artifacts so only the newest few per user remain.
//
// # Commands
//
//	xbackup run                       # Back up every user, then rotate
//	xbackup rotate [--dry-run]        # Rotate the storage prefix only
//	xbackup list                      # List stored artifacts by owner
//	xbackup restore <key> <target>    # Download and reverse one artifact
//	xbackup preflight                 # Check tools, space and secrets
//	xbackup encrypt|decrypt <src> <dst>
//	xbackup name encode|decode
//	xbackup verify <archive.tar>
//	xbackup config show|validate
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest priority wins):
//   - Command-line flags (--log-level, --log-format)
//   - Environment variables (XBACKUP_ prefix, "__" separates levels)
//   - Config file (--config, $XBACKUP_CONFIG or ./xbackup.yaml)
//   - Built-in defaults
//
// # Exit Codes
//
//	0 - Success
//	1 - The command failed or at least one user failed
//	2 - The run aborted (preflight, lock, discovery, cancellation)
//
// # Signal Handling
//
// SIGINT and SIGTERM cancel the current command. A run stops after the user in
// progress, removes its temporary files and still sends the final notification.
//
// # Example Usage
//
//	export XBACKUP_ENCRYPTION__METHOD=aes
//	export XBACKUP_ENCRYPTION__PASSPHRASE_FILE=/etc/xbackup/passphrase
//	export XBACKUP_STORAGE__TYPE=s3
//	export XBACKUP_STORAGE__S3__BUCKET=backups
//	xbackup run --json
package main

import (
	"errors"
	"fmt"
	"os"
)

// version is set at build time
var version = "dev"

func main() {
	err := newRootCmd().Execute()
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.code)
	}
	os.Exit(1)
}

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }
