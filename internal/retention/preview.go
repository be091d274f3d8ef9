// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package retention

import (
	"context"
	"fmt"
	"time"
)

// Preview shows what a rotation would do and why.
type Preview struct {
	WouldDelete      []*PreviewItem `json:"would_delete"`
	WouldKeep        []*PreviewItem `json:"would_keep"`
	Ignored          []*PreviewItem `json:"ignored"`
	DeletedCount     int            `json:"deleted_count"`
	KeptCount        int            `json:"kept_count"`
	TotalDeletedSize int64          `json:"total_deleted_size"`
	TotalKeptSize    int64          `json:"total_kept_size"`
}

// PreviewItem represents one artifact in a preview.
type PreviewItem struct {
	Path    string    `json:"path"`
	Owner   string    `json:"owner,omitempty"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
	Reasons []string  `json:"reasons"`
}

// createPreviewItem creates a preview item from a record
func createPreviewItem(r Record, owner string, reasons ...string) *PreviewItem {
	return &PreviewItem{
		Path:    r.Path,
		Owner:   owner,
		ModTime: r.ModTime,
		Size:    r.Size,
		Reasons: reasons,
	}
}

// buildPreview converts a plan into a preview with reasons
func buildPreview(plan *Plan, keepLatest int) *Preview {
	preview := &Preview{
		WouldDelete: make([]*PreviewItem, 0),
		WouldKeep:   make([]*PreviewItem, 0),
		Ignored:     make([]*PreviewItem, 0),
	}

	for _, op := range plan.Owners {
		for i, r := range op.Keep {
			reason := fmt.Sprintf("newest %d of %d for %s", i+1, len(op.Keep)+len(op.Delete), op.Owner)
			preview.WouldKeep = append(preview.WouldKeep, createPreviewItem(r, op.Owner, reason, fmt.Sprintf("within keep_latest=%d", keepLatest)))
			preview.TotalKeptSize += r.Size
		}
		for _, r := range op.Delete {
			reason := fmt.Sprintf("beyond keep_latest=%d for %s", keepLatest, op.Owner)
			preview.WouldDelete = append(preview.WouldDelete, createPreviewItem(r, op.Owner, reason))
			preview.TotalDeletedSize += r.Size
		}
	}

	for _, r := range plan.Skipped {
		preview.Ignored = append(preview.Ignored, createPreviewItem(r, "", "name does not match <owner>.YYYY-MM-DD"))
	}

	preview.KeptCount = len(preview.WouldKeep)
	preview.DeletedCount = len(preview.WouldDelete)
	return preview
}

// Preview lists prefix and reports what Rotate would keep, delete and ignore,
// without deleting anything.
func (e *Engine) Preview(ctx context.Context, prefix string) (*Preview, error) {
	records, err := e.store.List(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list %q: %w", prefix, err)
	}

	keep := e.policy.KeepLatest
	if keep < 1 {
		keep = DefaultKeepLatest
	}
	return buildPreview(Evaluate(Group(records), e.policy), keep), nil
}
