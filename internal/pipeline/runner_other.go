// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

//go:build !unix

package pipeline

import "os/exec"

func configureProcess(*exec.Cmd) {}
