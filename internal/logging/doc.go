// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package logging builds the zerolog loggers used across xbackup.
//
// There is no global logger. main builds one with New and passes it to every
// component constructor; components derive child loggers with WithComponent and
// attach per-run fields through the context helpers.
//
// # Quick Start
//
//	log := logging.New(logging.Config{Level: "info", Format: "console"})
//	ctx = logging.WithRunID(ctx, logging.NewRunID())
//	logging.Ctx(ctx, log).Info().Msg("Run started")
//
// # Output Formats
//
// JSON (default):
//
//	{"level":"info","run_id":"6f1c...","user":"alice","time":"2026-01-15T10:30:00Z","message":"Artifact uploaded"}
//
// Console:
//
//	10:30:00 INF Artifact uploaded run_id=6f1c... user=alice
//
// # Secrets
//
// Passphrases never appear in log fields. Argument vectors that carry one are
// passed through RedactArgs before they are logged.
package logging
