// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package config

import (
	"time"

	"github.com/tomtom215/xbackup/internal/logging"
)

// Config holds all xbackup configuration.
type Config struct {
	Source      SourceConfig      `koanf:"source"`
	WorkDir     string            `koanf:"work_dir" validate:"required"`
	Compression CompressionConfig `koanf:"compression"`
	Encryption  EncryptionConfig  `koanf:"encryption"`
	Tools       ToolsConfig       `koanf:"tools"`
	Storage     StorageConfig     `koanf:"storage"`
	Retention   RetentionConfig   `koanf:"retention"`
	Notify      NotifyConfig      `koanf:"notify"`
	Preflight   PreflightConfig   `koanf:"preflight"`
	Metrics     MetricsConfig     `koanf:"metrics"`
	Logging     logging.Config    `koanf:"logging"`
}

// SourceConfig selects the user directories to back up. Every directory
// directly under Root is one user.
type SourceConfig struct {
	Root string `koanf:"root" validate:"required"`

	// Include limits the run to these user names when non-empty.
	Include []string `koanf:"include"`

	// Exclude skips these user names.
	Exclude []string `koanf:"exclude"`

	// IncludeHidden also treats dot-directories as users.
	IncludeHidden bool `koanf:"include_hidden"`
}

// CompressionConfig selects the compression method.
type CompressionConfig struct {
	Method string `koanf:"method" validate:"compression_method"`

	// Level is normalized per method; negative selects the method default.
	Level int `koanf:"level" validate:"gte=-1,lte=22"`

	// Native runs gzip and zstd in-process rather than spawning binaries.
	Native bool `koanf:"native"`
}

// EncryptionConfig selects the encryption method and its secret.
type EncryptionConfig struct {
	Method string `koanf:"method" validate:"encryption_method"`

	Passphrase     string `koanf:"passphrase"`
	PassphraseFile string `koanf:"passphrase_file"`

	// Format is the aes stream layout written by new backups.
	Format string `koanf:"format" validate:"oneof=legacy aead"`

	// ChunkSize is the aes plaintext chunk size in bytes.
	ChunkSize int `koanf:"chunk_size" validate:"chunk_size"`

	// GPGHome is passed to gpg as --homedir.
	GPGHome string `koanf:"gpg_home"`
}

// ToolsConfig configures external binaries.
type ToolsConfig struct {
	// Binaries maps a tool name ("7z", "gpg", "zstd", ...) to its executable path.
	Binaries map[string]string `koanf:"binaries"`

	// Timeout bounds the compress and encrypt step for one user. Zero means no limit.
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`
}

// StorageConfig selects where artifacts are uploaded.
type StorageConfig struct {
	Type string `koanf:"type" validate:"oneof=local s3"`

	// Prefix is prepended to every object key and is the rotation scope.
	Prefix string `koanf:"prefix"`

	// BandwidthLimit caps uploads in bytes per second. Zero means unlimited.
	BandwidthLimit int64 `koanf:"bandwidth_limit" validate:"gte=0"`

	Local LocalStorageConfig `koanf:"local"`
	S3    S3StorageConfig    `koanf:"s3"`
}

// LocalStorageConfig configures the directory backend.
type LocalStorageConfig struct {
	Path string `koanf:"path"`
}

// S3StorageConfig configures the S3 backend. Empty credentials fall back to
// the SDK default chain (environment, shared config, instance role).
type S3StorageConfig struct {
	Bucket          string `koanf:"bucket"`
	Region          string `koanf:"region"`
	Endpoint        string `koanf:"endpoint" validate:"omitempty,url"`
	AccessKeyID     string `koanf:"access_key_id"`
	SecretAccessKey string `koanf:"secret_access_key"`
	UsePathStyle    bool   `koanf:"use_path_style"`

	// PartSize is the multipart upload part size in bytes.
	PartSize int64 `koanf:"part_size" validate:"gte=0"`

	// Concurrency is the number of parts uploaded in parallel.
	Concurrency int `koanf:"concurrency" validate:"gte=0,lte=64"`
}

// RetentionConfig configures rotation after a run.
type RetentionConfig struct {
	Enabled    bool `koanf:"enabled"`
	KeepLatest int  `koanf:"keep_latest" validate:"min=1"`
}

// NotifyConfig configures run notifications.
type NotifyConfig struct {
	Webhook WebhookConfig `koanf:"webhook"`
}

// WebhookConfig configures the JSON webhook notifier. Disabled when URL is empty.
type WebhookConfig struct {
	URL     string            `koanf:"url" validate:"omitempty,http_url"`
	Headers map[string]string `koanf:"headers"`
	Timeout time.Duration     `koanf:"timeout" validate:"gte=0"`

	// OnlyFailures suppresses success events.
	OnlyFailures bool `koanf:"only_failures"`

	// Breaker settings: consecutive failures before opening, and how long it stays open.
	MaxFailures uint32        `koanf:"max_failures" validate:"min=1"`
	OpenTimeout time.Duration `koanf:"open_timeout" validate:"gte=0"`
}

// PreflightConfig configures the checks run before any user is processed.
type PreflightConfig struct {
	// MinFreeBytes is the free space required on the work dir filesystem.
	MinFreeBytes uint64 `koanf:"min_free_bytes"`

	// SkipToolCheck disables the PATH lookup for required binaries.
	SkipToolCheck bool `koanf:"skip_tool_check"`
}

// MetricsConfig configures the Prometheus textfile written after each run.
type MetricsConfig struct {
	Textfile string `koanf:"textfile"`
}
