// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

/*
Package metrics provides Prometheus metrics for backup runs.

xbackup runs once per invocation, so nothing is scraped over HTTP. Instead the
collectors are registered on a package-level Registry and written out at the end
of a run with WriteTextfile, in the format read by the node_exporter textfile
collector.

# Available Metrics

Run Metrics:
  - xbackup_backups_total: Per-user backup attempts (counter)
    Labels: status (success, failure)
  - xbackup_artifact_bytes: Size of the last uploaded artifact (gauge)
    Labels: user
  - xbackup_stage_duration_seconds: Time spent per stage (histogram)
    Labels: stage (archive, pipeline, upload, rotate, restore)
  - xbackup_last_run_timestamp_seconds: Unix time of the last finished run (gauge)
  - xbackup_last_success_timestamp_seconds: Unix time of the last run without failures (gauge)

Tool Metrics:
  - xbackup_tool_invocations_total: External and native codec invocations (counter)
    Labels: tool, result (ok, spawn_failed, exit_nonzero, output_missing, input_unreadable, error)

Rotation Metrics:
  - xbackup_rotation_deleted_total: Artifacts deleted by rotation (counter)
  - xbackup_rotation_failed_total: Delete requests that failed (counter)
  - xbackup_rotation_skipped_total: Listed files without an owner pattern (counter)

Notification Metrics:
  - xbackup_notifications_total: Notification deliveries (counter)
    Labels: notifier, result

# Usage

	metrics.RecordBackup(true)
	metrics.ObserveStage("upload", time.Since(start))
	if err := metrics.WriteTextfile("/var/lib/node_exporter/xbackup.prom"); err != nil {
		log.Warn().Err(err).Msg("Failed to write metrics")
	}

# Thread Safety

All collectors are safe for concurrent use.
*/
package metrics
