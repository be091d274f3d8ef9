// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package testinfra provides test infrastructure for integration testing with containers.
//
// This package uses testcontainers-go to run a real MinIO server so the S3
// backend and a full backup run can be exercised against an S3 implementation
// instead of a hand-written fake. Everything here is behind the "integration"
// build tag:
//
//	go test -tags integration ./internal/...
//
// # MinIO Container
//
//	func TestS3Backup(t *testing.T) {
//	    testinfra.SkipIfNoDocker(t)
//	    ctx := context.Background()
//	    minio, err := testinfra.NewMinIOContainer(ctx)
//	    if err != nil {
//	        t.Fatal(err)
//	    }
//	    defer testinfra.CleanupContainer(t, ctx, minio)
//
//	    if err := minio.CreateBucket(ctx, "backups"); err != nil {
//	        t.Fatal(err)
//	    }
//	    cfg := minio.StorageConfig("backups")
//	    // ...
//	}
//
// # Webhook Capture
//
// WebhookServer records every notification POST so tests can assert on the
// events a run emitted.
//
// # CI Considerations
//
// These tests require Docker and network access for the first image pull.
// Tests are skipped gracefully if Docker is unavailable.
package testinfra
