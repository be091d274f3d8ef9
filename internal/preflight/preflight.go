// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package preflight checks the host before a run touches any user data.
//
// All checks run and are reported together, so one invocation shows every
// problem instead of the first.
package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/shirou/gopsutil/v4/disk"
)

// Options describes what the run needs.
type Options struct {
	// WorkDir must exist (it is created) and be writable.
	WorkDir string

	// SourceRoot must be a readable directory. Empty skips the check (restore).
	SourceRoot string

	// MinFreeBytes is the free space required on the WorkDir filesystem.
	MinFreeBytes uint64

	// Binaries are executables that must resolve on PATH or as given.
	Binaries []string

	// NeedsPassphrase and HasPassphrase check the encryption secret.
	NeedsPassphrase bool
	HasPassphrase   bool
}

// Result is the outcome of one check.
type Result struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Report collects every check result.
type Report struct {
	Results []Result `json:"results"`
}

// Failed lists the failing checks.
func (r *Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.OK {
			failed = append(failed, res)
		}
	}
	return failed
}

// Err returns nil when every check passed, otherwise one error naming each failure.
func (r *Report) Err() error {
	failed := r.Failed()
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, len(failed))
	for i, f := range failed {
		parts[i] = f.Name + ": " + f.Detail
	}
	return fmt.Errorf("%w: %s", ErrFailed, strings.Join(parts, "; "))
}

// ErrFailed wraps every preflight failure.
var ErrFailed = errors.New("preflight failed")

// Checker runs the checks. The zero value uses the real host.
type Checker struct {
	LookPath  func(file string) (string, error)
	DiskUsage func(ctx context.Context, path string) (*disk.UsageStat, error)
}

func (c *Checker) lookPath(file string) (string, error) {
	if c.LookPath != nil {
		return c.LookPath(file)
	}
	return exec.LookPath(file)
}

func (c *Checker) diskUsage(ctx context.Context, path string) (*disk.UsageStat, error) {
	if c.DiskUsage != nil {
		return c.DiskUsage(ctx, path)
	}
	return disk.UsageWithContext(ctx, path)
}

// Run executes every check.
func (c *Checker) Run(ctx context.Context, opts Options) *Report {
	r := &Report{}
	r.Results = append(r.Results, checkWorkDir(opts.WorkDir))
	if opts.SourceRoot != "" {
		r.Results = append(r.Results, checkSourceRoot(opts.SourceRoot))
	}
	if opts.MinFreeBytes > 0 {
		r.Results = append(r.Results, c.checkFreeSpace(ctx, opts.WorkDir, opts.MinFreeBytes))
	}
	for _, bin := range opts.Binaries {
		r.Results = append(r.Results, c.checkBinary(bin))
	}
	if opts.NeedsPassphrase {
		res := Result{Name: "passphrase", OK: opts.HasPassphrase}
		if !res.OK {
			res.Detail = "encryption is enabled but no passphrase is configured"
		}
		r.Results = append(r.Results, res)
	}
	return r
}

// Run executes every check against the real host.
func Run(ctx context.Context, opts Options) *Report {
	var c Checker
	return c.Run(ctx, opts)
}

func checkWorkDir(dir string) Result {
	res := Result{Name: "work_dir"}
	if dir == "" {
		res.Detail = "not configured"
		return res
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		res.Detail = err.Error()
		return res
	}
	probe, err := os.CreateTemp(dir, ".xbackup-probe-*")
	if err != nil {
		res.Detail = "not writable: " + err.Error()
		return res
	}
	name := probe.Name()
	probe.Close()   //nolint:errcheck // probe file
	os.Remove(name) //nolint:errcheck // probe file
	res.OK = true
	res.Detail = dir
	return res
}

func checkSourceRoot(root string) Result {
	res := Result{Name: "source_root"}
	entries, err := os.ReadDir(root)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	res.OK = true
	res.Detail = fmt.Sprintf("%s (%d entries)", root, len(entries))
	return res
}

func (c *Checker) checkFreeSpace(ctx context.Context, dir string, minFree uint64) Result {
	res := Result{Name: "free_space"}
	usage, err := c.diskUsage(ctx, dir)
	if err != nil {
		res.Detail = err.Error()
		return res
	}
	res.Detail = fmt.Sprintf("%s free of %s required on %s", formatBytes(usage.Free), formatBytes(minFree), usage.Path)
	res.OK = usage.Free >= minFree
	return res
}

func (c *Checker) checkBinary(bin string) Result {
	res := Result{Name: "binary " + bin}
	path, err := c.lookPath(bin)
	if err != nil {
		res.Detail = "not found"
		return res
	}
	res.OK = true
	res.Detail = path
	return res
}

// formatBytes renders a byte count with a binary unit.
func formatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
