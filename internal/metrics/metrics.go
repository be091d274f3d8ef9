// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every xbackup collector. It is separate from the default
// registry so the textfile output contains no Go runtime series.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// Run Metrics
	BackupsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbackup_backups_total",
			Help: "Total number of per-user backup attempts",
		},
		[]string{"status"},
	)

	ArtifactBytes = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "xbackup_artifact_bytes",
			Help: "Size in bytes of the last artifact uploaded for a user",
		},
		[]string{"user"},
	)

	StageDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "xbackup_stage_duration_seconds",
			Help:    "Duration of backup stages in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600, 14400},
		},
		[]string{"stage"},
	)

	LastRunTimestamp = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "xbackup_last_run_timestamp_seconds",
			Help: "Unix timestamp of the last finished run",
		},
	)

	LastSuccessTimestamp = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "xbackup_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last run that finished without failures",
		},
	)

	// Tool Metrics
	ToolInvocations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbackup_tool_invocations_total",
			Help: "Total number of codec and tool invocations",
		},
		[]string{"tool", "result"},
	)

	// Rotation Metrics
	RotationDeleted = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "xbackup_rotation_deleted_total",
			Help: "Total number of artifacts deleted by rotation",
		},
	)

	RotationFailed = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "xbackup_rotation_failed_total",
			Help: "Total number of rotation delete requests that failed",
		},
	)

	RotationSkipped = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "xbackup_rotation_skipped_total",
			Help: "Total number of listed files ignored because no owner could be derived",
		},
	)

	// Notification Metrics
	NotificationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "xbackup_notifications_total",
			Help: "Total number of notification deliveries",
		},
		[]string{"notifier", "result"},
	)
)

// RecordBackup records the outcome of one user's backup
func RecordBackup(success bool) {
	if success {
		BackupsTotal.WithLabelValues("success").Inc()
	} else {
		BackupsTotal.WithLabelValues("failure").Inc()
	}
}

// RecordArtifact records the uploaded artifact size for a user
func RecordArtifact(user string, size int64) {
	ArtifactBytes.WithLabelValues(user).Set(float64(size))
}

// ObserveStage records how long a stage took
func ObserveStage(stage string, duration time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(duration.Seconds())
}

// RecordToolInvocation records one codec or tool call and its result label
func RecordToolInvocation(tool, result string) {
	ToolInvocations.WithLabelValues(tool, result).Inc()
}

// RecordRotation adds the counts of one rotation pass
func RecordRotation(deleted, failed, skipped int) {
	RotationDeleted.Add(float64(deleted))
	RotationFailed.Add(float64(failed))
	RotationSkipped.Add(float64(skipped))
}

// RecordNotification records a notification delivery attempt
func RecordNotification(notifier string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	NotificationsTotal.WithLabelValues(notifier, result).Inc()
}

// RecordRunFinished stamps the run timestamps. The success stamp only moves when
// the run had no failures.
func RecordRunFinished(at time.Time, failed bool) {
	LastRunTimestamp.Set(float64(at.Unix()))
	if !failed {
		LastSuccessTimestamp.Set(float64(at.Unix()))
	}
}

// WriteTextfile writes the registry to path atomically for the node_exporter
// textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
