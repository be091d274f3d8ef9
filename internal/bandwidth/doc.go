// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

/*
Package bandwidth throttles artifact transfers.

Backups usually run on hosts that keep serving traffic, so uploads to a shared
NAS or an S3 bucket can be capped with storage.bandwidth_limit (bytes per
second). Every upload of one backend shares a single token bucket, which
keeps the cap intact when the S3 uploader sends parts in parallel.

# Usage

	lim := bandwidth.NewLimiter(8 << 20) // 8 MiB/s
	_, err := io.Copy(dst, lim.Reader(ctx, src))

A nil *Limiter is valid and does not throttle, so callers never need to check
whether a limit is configured.
*/
package bandwidth
