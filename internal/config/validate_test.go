// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package config

import (
	"strings"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name: "combined 7z",
			mutate: func(c *Config) {
				c.Compression.Method = "7z"
				c.Encryption.Method = "7z"
			},
		},
		{
			name: "zstd then gpg",
			mutate: func(c *Config) {
				c.Encryption.Method = "gpg"
			},
		},
		{
			name: "zip encryption without zip compression",
			mutate: func(c *Config) {
				c.Compression.Method = "gzip"
				c.Encryption.Method = "zip"
			},
			wantErr: "requires compression",
		},
		{
			name:    "unknown compression",
			mutate:  func(c *Config) { c.Compression.Method = "brotli" },
			wantErr: "compression.method",
		},
		{
			name:    "aes used as compression",
			mutate:  func(c *Config) { c.Compression.Method = "aes" },
			wantErr: "compression.method",
		},
		{
			name:    "bad format",
			mutate:  func(c *Config) { c.Encryption.Format = "cbc" },
			wantErr: "encryption.format",
		},
		{
			name:    "bad chunk size",
			mutate:  func(c *Config) { c.Encryption.ChunkSize = 1000 },
			wantErr: "encryption.chunk_size",
		},
		{
			name:    "level out of range",
			mutate:  func(c *Config) { c.Compression.Level = 40 },
			wantErr: "compression.level",
		},
		{
			name:    "keep latest zero",
			mutate:  func(c *Config) { c.Retention.KeepLatest = 0 },
			wantErr: "retention.keep_latest",
		},
		{
			name:    "missing work dir",
			mutate:  func(c *Config) { c.WorkDir = "" },
			wantErr: "work_dir is required",
		},
		{
			name:    "unknown storage type",
			mutate:  func(c *Config) { c.Storage.Type = "ftp" },
			wantErr: "storage.type",
		},
		{
			name:    "local without path",
			mutate:  func(c *Config) { c.Storage.Local.Path = "" },
			wantErr: "storage.local.path",
		},
		{
			name:    "s3 without bucket",
			mutate:  func(c *Config) { c.Storage.Type = "s3" },
			wantErr: "storage.s3.bucket",
		},
		{
			name: "s3 half credentials",
			mutate: func(c *Config) {
				c.Storage.Type = "s3"
				c.Storage.S3.Bucket = "b"
				c.Storage.S3.AccessKeyID = "AKIA"
			},
			wantErr: "must be set together",
		},
		{
			name:    "webhook url",
			mutate:  func(c *Config) { c.Notify.Webhook.URL = "not a url" },
			wantErr: "notify.webhook.url",
		},
		{
			name:    "log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: "logging.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestNeedsPassphrase(t *testing.T) {
	cfg := Default()
	if cfg.NeedsPassphrase() {
		t.Error("encryption none should not need a passphrase")
	}

	cfg.Encryption.Method = "aes"
	if !cfg.NeedsPassphrase() {
		t.Error("aes should need a passphrase")
	}

	cfg.Compression.Method = "zip"
	cfg.Encryption.Method = "none"
	if cfg.NeedsPassphrase() {
		t.Error("zip compression alone should not need a passphrase")
	}
}
