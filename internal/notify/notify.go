// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package notify reports run outcomes to operators.
//
// Every run notifies through the log notifier. A JSON webhook is added when
// notify.webhook.url is set; it sits behind a circuit breaker so an
// unreachable endpoint costs one timeout per few events instead of one per
// user. Notification failures are logged and counted but never fail a run.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/xbackup/internal/config"
	"github.com/tomtom215/xbackup/internal/logging"
	"github.com/tomtom215/xbackup/internal/metrics"
)

// EventType names what happened.
type EventType string

const (
	BackupSucceeded   EventType = "backup.succeeded"
	BackupFailed      EventType = "backup.failed"
	RotationCompleted EventType = "rotation.completed"
	RotationFailed    EventType = "rotation.failed"
	RunCompleted      EventType = "run.completed"
)

// Event is the payload every notifier receives.
type Event struct {
	Type      EventType `json:"event"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
	Host      string    `json:"host,omitempty"`

	// Per-user fields
	User       string `json:"user,omitempty"`
	Key        string `json:"key,omitempty"`
	Size       int64  `json:"size,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`

	// Failure fields
	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`

	// Aggregate counts for rotation and run events, e.g. "succeeded", "failed", "deleted".
	Counts map[string]int `json:"counts,omitempty"`
}

// Failed reports whether the event describes a failure, including runs
// that finished with failed users.
func (e *Event) Failed() bool {
	switch e.Type {
	case BackupFailed, RotationFailed:
		return true
	case RunCompleted:
		return e.Error != "" || e.Counts["failed"] > 0
	default:
		return e.Error != ""
	}
}

// Notifier delivers events.
type Notifier interface {
	Name() string
	Notify(ctx context.Context, ev *Event) error
}

// Fanout delivers each event to every notifier and joins their errors.
type Fanout []Notifier

// Name implements Notifier.
func (f Fanout) Name() string { return "fanout" }

// Notify implements Notifier.
func (f Fanout) Notify(ctx context.Context, ev *Event) error {
	var errs []error
	for _, n := range f {
		err := n.Notify(ctx, ev)
		metrics.RecordNotification(n.Name(), err)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// New builds the notifiers selected by cfg. The log notifier is always present.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(cfg config.NotifyConfig, log zerolog.Logger) Notifier {
	notifiers := Fanout{NewLog(log)}
	if cfg.Webhook.URL != "" {
		notifiers = append(notifiers, NewWebhook(cfg.Webhook, log))
	}
	return notifiers
}

// Log writes events to the structured log.
type Log struct {
	log zerolog.Logger
}

// NewLog creates a log notifier.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewLog(log zerolog.Logger) *Log {
	return &Log{log: logging.WithComponent(log, "notify")}
}

// Name implements Notifier.
func (l *Log) Name() string { return "log" }

// Notify implements Notifier.
func (l *Log) Notify(_ context.Context, ev *Event) error {
	e := l.log.Info()
	if ev.Failed() {
		e = l.log.Error()
	}
	e = e.Str("event", string(ev.Type)).Str("run_id", ev.RunID)
	if ev.User != "" {
		e = e.Str("user", ev.User)
	}
	if ev.Key != "" {
		e = e.Str("key", ev.Key).Int64("size", ev.Size)
	}
	if ev.DurationMS > 0 {
		e = e.Int64("duration_ms", ev.DurationMS)
	}
	if ev.Error != "" {
		e = e.Str("error", ev.Error).Str("error_kind", ev.ErrorKind)
	}
	for k, v := range ev.Counts {
		e = e.Int(k, v)
	}
	e.Msg("Notification")
	return nil
}
