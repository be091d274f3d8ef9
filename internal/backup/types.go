// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package backup

import (
	"io"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/xbackup/internal/archive"
	"github.com/tomtom215/xbackup/internal/preflight"
	"github.com/tomtom215/xbackup/internal/retention"
)

// Status represents the outcome of one user's backup
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Stage names the step a user backup was in when it finished or failed.
type Stage string

const (
	StageArchive   Stage = "archive"
	StageTransform Stage = "transform"
	StageUpload    Stage = "upload"
	StageDone      Stage = "done"
)

// UserResult records one user's backup.
type UserResult struct {
	User   string `json:"user"`
	Status Status `json:"status"`
	Stage  Stage  `json:"stage"`

	// Key is the storage key of the uploaded artifact.
	Key string `json:"key,omitempty"`

	// Size is the artifact size; ArchiveBytes is the plain file content archived.
	Size         int64 `json:"size,omitempty"`
	ArchiveBytes int64 `json:"archive_bytes,omitempty"`
	Files        int   `json:"files,omitempty"`
	Skipped      int   `json:"skipped,omitempty"`

	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`

	Error     string `json:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// RunReport summarizes a complete run.
type RunReport struct {
	RunID      string    `json:"run_id"`
	Host       string    `json:"host,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	DurationMS int64     `json:"duration_ms"`

	Compression string `json:"compression"`
	Encryption  string `json:"encryption"`
	Storage     string `json:"storage"`
	Prefix      string `json:"prefix,omitempty"`

	Preflight *preflight.Report `json:"preflight,omitempty"`

	// MissingUsers are include entries with no matching directory.
	MissingUsers []string     `json:"missing_users,omitempty"`
	Users        []UserResult `json:"users"`
	Succeeded    int          `json:"succeeded"`
	Failed       int          `json:"failed"`

	Rotation      *retention.Result `json:"rotation,omitempty"`
	RotationError string            `json:"rotation_error,omitempty"`

	// Error is set when the run aborted before or between users.
	Error string `json:"error,omitempty"`
}

// OK is false when the run aborted or when any user or rotation deletion failed.
func (r *RunReport) OK() bool {
	if r.Rotation != nil && len(r.Rotation.Failed) > 0 {
		return false
	}
	return r.Error == "" && r.Failed == 0 && r.RotationError == ""
}

// WriteJSON writes the report as indented JSON.
func (r *RunReport) WriteJSON(w io.Writer) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

func (r *RunReport) add(res UserResult) {
	r.Users = append(r.Users, res)
	if res.Status == StatusSucceeded {
		r.Succeeded++
	} else {
		r.Failed++
	}
}

// RestoreOptions configures a restore.
type RestoreOptions struct {
	// Extract unpacks the archive into the target directory. Without it the
	// plain archive file is written to the target.
	Extract bool

	// Archive holds the extraction limits, used only with Extract.
	Archive archive.ExtractOptions
}

// RestoreResult contains the result of a restore operation
type RestoreResult struct {
	Key         string                 `json:"key"`
	Compression string                 `json:"compression"`
	Encryption  string                 `json:"encryption"`
	Target      string                 `json:"target"`
	ArchivePath string                 `json:"archive_path,omitempty"`
	Verified    bool                   `json:"verified"`
	Extracted   *archive.ExtractResult `json:"extracted,omitempty"`
	DurationMS  int64                  `json:"duration_ms"`
}
