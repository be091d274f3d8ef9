// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Context keys for logging.
type contextKey string

const (
	// runIDKey is the context key for the identifier of one xbackup invocation.
	runIDKey contextKey = "run_id"

	// userKey is the context key for the user currently being processed.
	userKey contextKey = "user"
)

// NewRunID creates a new unique run ID.
func NewRunID() string {
	return uuid.New().String()
}

// WithRunID returns a new context carrying the given run ID.
//
//	ctx = logging.WithRunID(ctx, logging.NewRunID())
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromContext retrieves the run ID from context.
// Returns empty string if not present.
func RunIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// WithUser returns a new context carrying the user being backed up.
func WithUser(ctx context.Context, user string) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext retrieves the user from context.
func UserFromContext(ctx context.Context) string {
	if user, ok := ctx.Value(userKey).(string); ok {
		return user
	}
	return ""
}

// Ctx returns base with the context values (run_id, user) added as fields.
//
//	logging.Ctx(ctx, r.log).Info().Msg("Archive created")
//	// Output: {"level":"info","run_id":"...","user":"alice","message":"Archive created"}
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func Ctx(ctx context.Context, base zerolog.Logger) *zerolog.Logger {
	logCtx := base.With()

	if runID := RunIDFromContext(ctx); runID != "" {
		logCtx = logCtx.Str("run_id", runID)
	}
	if user := UserFromContext(ctx); user != "" {
		logCtx = logCtx.Str("user", user)
	}

	logger := logCtx.Logger()
	return &logger
}
