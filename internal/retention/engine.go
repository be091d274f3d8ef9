// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package retention

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/xbackup/internal/logging"
	"github.com/tomtom215/xbackup/internal/metrics"
)

// Lister returns a recursive listing of the files under prefix.
type Lister interface {
	List(ctx context.Context, prefix string) ([]Record, error)
}

// Deleter removes one remote file.
type Deleter interface {
	Delete(ctx context.Context, path string) error
}

// Store is a remote location that can be rotated.
type Store interface {
	Lister
	Deleter
}

// Engine runs rotation passes against a Store.
type Engine struct {
	store  Store
	policy Policy
	log    zerolog.Logger
}

// NewEngine creates an engine.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewEngine(store Store, policy Policy, log zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		policy: policy,
		log:    logging.WithComponent(log, "retention"),
	}
}

// Failure is a delete request that did not succeed.
type Failure struct {
	Record Record `json:"record"`
	Error  string `json:"error"`
}

// Result summarizes a rotation pass.
type Result struct {
	DryRun       bool      `json:"dry_run"`
	Listed       int       `json:"listed"`
	Owners       int       `json:"owners"`
	Kept         int       `json:"kept"`
	Skipped      []Record  `json:"skipped"`
	Deleted      []Record  `json:"deleted"`
	Failed       []Failure `json:"failed"`
	DeletedBytes int64     `json:"deleted_bytes"`
	Plan         *Plan     `json:"-"`
}

// Rotate lists prefix, plans the rotation and deletes the surplus. Only a listing
// failure is returned as an error; delete failures are recorded in the result.
// With dryRun set nothing is deleted and Deleted lists what would be.
func (e *Engine) Rotate(ctx context.Context, prefix string, dryRun bool) (*Result, error) {
	log := logging.Ctx(ctx, e.log)

	records, err := e.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}

	plan := Evaluate(Group(records), e.policy)
	result := &Result{
		DryRun:  dryRun,
		Listed:  len(records),
		Owners:  len(plan.Owners),
		Kept:    plan.KeptCount(),
		Skipped: plan.Skipped,
		Plan:    plan,
	}

	for _, r := range plan.Skipped {
		log.Debug().Str("path", r.Path).Msg("Ignoring file without owner pattern")
	}

	if dryRun {
		result.Deleted = plan.Deletions()
		for _, r := range result.Deleted {
			result.DeletedBytes += r.Size
		}
		logRotationResults(log, result)
		return result, nil
	}

	e.deleteRecords(ctx, log, plan.Deletions(), result)
	metrics.RecordRotation(len(result.Deleted), len(result.Failed), len(result.Skipped))
	logRotationResults(log, result)
	return result, nil
}

// deleteRecords issues one delete per record, continuing past failures. A
// cancelled context stops further requests and marks the rest as failed.
func (e *Engine) deleteRecords(ctx context.Context, log *zerolog.Logger, toDelete []Record, result *Result) {
	for _, r := range toDelete {
		if err := ctx.Err(); err != nil {
			result.Failed = append(result.Failed, Failure{Record: r, Error: err.Error()})
			continue
		}
		if err := e.store.Delete(ctx, r.Path); err != nil {
			log.Warn().Err(err).Str("path", r.Path).Msg("Failed to delete artifact")
			result.Failed = append(result.Failed, Failure{Record: r, Error: err.Error()})
			continue
		}
		log.Info().Str("path", r.Path).Time("modified", r.ModTime).Msg("Deleted artifact")
		result.Deleted = append(result.Deleted, r)
		result.DeletedBytes += r.Size
	}
}

// logRotationResults logs the results of a rotation pass
func logRotationResults(log *zerolog.Logger, result *Result) {
	log.Info().
		Bool("dry_run", result.DryRun).
		Int("listed", result.Listed).
		Int("owners", result.Owners).
		Int("kept", result.Kept).
		Int("deleted_count", len(result.Deleted)).
		Int("failed_count", len(result.Failed)).
		Int("skipped_count", len(result.Skipped)).
		Float64("deleted_mb", float64(result.DeletedBytes)/(1024*1024)).
		Msg("Retention policy applied")
}
