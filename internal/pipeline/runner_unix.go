// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

//go:build unix

package pipeline

import (
	"os/exec"
	"syscall"
)

// configureProcess starts the child in its own session so it has no controlling
// terminal. Tools that would otherwise prompt on /dev/tty fail instead of hanging.
func configureProcess(c *exec.Cmd) {
	c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
