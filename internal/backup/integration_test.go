// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

//go:build integration

package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tomtom215/xbackup/internal/archive"
	"github.com/tomtom215/xbackup/internal/logging"
	"github.com/tomtom215/xbackup/internal/testinfra"
)

// TestIntegration_S3RunAndRestore backs up to a real MinIO server, rotates
// with keep_latest=1 and restores what survived.
func TestIntegration_S3RunAndRestore(t *testing.T) {
	testinfra.SkipIfNoDocker(t)
	ctx := context.Background()

	minio, err := testinfra.NewMinIOContainer(ctx,
		testinfra.WithMinIOImage("minio/minio:RELEASE.2024-01-16T16-07-38Z"),
		testinfra.WithStartTimeout(2*time.Minute),
	)
	if err != nil {
		t.Fatalf("start minio: %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, minio)
	if err := minio.CreateBucket(ctx, "backups"); err != nil {
		t.Fatal(err)
	}

	hook := testinfra.NewWebhookServer(t)

	env := newTestEnv(t)
	env.cfg.Storage = minio.StorageConfig("backups")
	env.cfg.Storage.Prefix = "hosts/it"
	env.cfg.Retention.KeepLatest = 1
	env.cfg.Notify.Webhook.URL = hook.URL()

	run := func(at time.Time) *RunReport {
		t.Helper()
		r, err := NewRunner(ctx, env.cfg, Deps{Now: func() time.Time { return at }}, logging.Nop())
		if err != nil {
			t.Fatalf("NewRunner() error = %v", err)
		}
		report, err := r.Run(ctx)
		if err != nil || !report.OK() {
			t.Fatalf("Run() = %+v, %v", report, err)
		}
		return report
	}

	run(testNow.Add(-24 * time.Hour))
	// S3 LastModified has one-second resolution.
	time.Sleep(1100 * time.Millisecond)
	second := run(testNow)

	if second.Rotation == nil || len(second.Rotation.Deleted) != 2 {
		t.Fatalf("rotation = %+v, want the two older artifacts deleted", second.Rotation)
	}

	r, err := NewRunner(ctx, env.cfg, Deps{}, logging.Nop())
	if err != nil {
		t.Fatal(err)
	}
	records, err := r.Store().List(ctx, r.RotationPrefix())
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("bucket holds %d artifacts, want 2", len(records))
	}

	target := t.TempDir()
	key := userResult(t, second, "alice").Key
	if _, err := r.Restore(ctx, key, target, RestoreOptions{
		Extract: true,
		Archive: archive.ExtractOptions{Verify: true},
	}); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "alice", "notes.txt")); err != nil {
		t.Errorf("restored tree incomplete: %v", err)
	}

	// 2 users + rotation + run, twice
	if !hook.WaitForCaptures(8, 5*time.Second) {
		t.Errorf("webhook saw %v", hook.EventTypes())
	}
}
