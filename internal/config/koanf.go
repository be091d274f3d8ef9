// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/xbackup/internal/logging"
	"github.com/tomtom215/xbackup/internal/retention"
	"github.com/tomtom215/xbackup/internal/streamcipher"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"xbackup.yaml",
	"xbackup.yml",
	"/etc/xbackup/config.yaml",
	"/etc/xbackup/config.yml",
}

const (
	// ConfigPathEnvVar is the environment variable that can override the config file path.
	ConfigPathEnvVar = "XBACKUP_CONFIG"

	// EnvPrefix prefixes every environment override.
	EnvPrefix = "XBACKUP_"
)

// sliceConfigPaths are keys that accept a comma-separated string from the environment.
var sliceConfigPaths = []string{
	"source.include",
	"source.exclude",
}

// LoadOptions controls where configuration is read from.
type LoadOptions struct {
	// Path is an explicit config file. When set it must exist.
	Path string

	// Overrides are applied after every other layer, keyed by koanf path
	// (e.g. "logging.level"). Command-line flags land here.
	Overrides map[string]string
}

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Source: SourceConfig{
			Root:    "/home",
			Include: []string{},
			Exclude: []string{"lost+found"},
		},
		WorkDir: filepath.Join(os.TempDir(), "xbackup"),
		Compression: CompressionConfig{
			Method: "zstd",
			Level:  -1,
			Native: true,
		},
		Encryption: EncryptionConfig{
			Method:    "none",
			Format:    string(streamcipher.FormatLegacy),
			ChunkSize: streamcipher.DefaultChunkSize,
		},
		Tools: ToolsConfig{
			Binaries: map[string]string{},
			Timeout:  0,
		},
		Storage: StorageConfig{
			Type:   "local",
			Prefix: "",
			Local: LocalStorageConfig{
				Path: "/var/backups/xbackup",
			},
			S3: S3StorageConfig{
				PartSize:    16 << 20,
				Concurrency: 4,
			},
		},
		Retention: RetentionConfig{
			Enabled:    true,
			KeepLatest: retention.DefaultKeepLatest,
		},
		Notify: NotifyConfig{
			Webhook: WebhookConfig{
				Headers:     map[string]string{},
				Timeout:     10 * time.Second,
				MaxFailures: 3,
				OpenTimeout: time.Minute,
			},
		},
		Preflight: PreflightConfig{
			MinFreeBytes: 1 << 30, // 1GB
		},
		Logging: logging.DefaultConfig(),
	}
}

// Default returns the built-in configuration without reading any file or
// environment variable.
func Default() *Config {
	return defaultConfig()
}

// Load reads configuration from defaults, the config file and the environment,
// in that order, then resolves the passphrase file and validates the result.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional unless explicitly requested)
	configPath, err := findConfigFile(opts.Path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables
	// XBACKUP_STORAGE__S3__BUCKET -> storage.s3.bucket
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Layer 4: Explicit overrides (highest priority)
	for key, val := range opts.Overrides {
		if err := k.Set(key, val); err != nil {
			return nil, fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.resolvePassphrase(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the config file to load, or "" when none exists.
// An explicit path or $XBACKUP_CONFIG that does not exist is an error.
func findConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err != nil {
			return "", fmt.Errorf("config file %s (from %s): %w", envPath, ConfigPathEnvVar, err)
		}
		return envPath, nil
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", nil
}

// envTransformFunc maps XBACKUP_A__B_C to a.b_c. The config path variable
// itself is not a setting and is skipped.
func envTransformFunc(key string) string {
	if key == ConfigPathEnvVar {
		return ""
	}
	key = strings.TrimPrefix(key, EnvPrefix)
	key = strings.ToLower(key)
	return strings.ReplaceAll(key, "__", ".")
}

// processSliceFields converts comma-separated strings from environment variables to slices.
// YAML files already provide proper slices, so those are left untouched.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// resolvePassphrase reads encryption.passphrase_file into Passphrase. A single
// trailing newline is stripped so files written with echo work.
func (c *Config) resolvePassphrase() error {
	if c.Encryption.PassphraseFile == "" {
		return nil
	}
	if c.Encryption.Passphrase != "" {
		return fmt.Errorf("encryption.passphrase and encryption.passphrase_file are mutually exclusive")
	}

	data, err := os.ReadFile(c.Encryption.PassphraseFile) //nolint:gosec // G304: path is operator configuration
	if err != nil {
		return fmt.Errorf("failed to read encryption.passphrase_file: %w", err)
	}

	pass := strings.TrimSuffix(string(data), "\n")
	pass = strings.TrimSuffix(pass, "\r")
	if pass == "" {
		return fmt.Errorf("encryption.passphrase_file %s is empty", c.Encryption.PassphraseFile)
	}
	c.Encryption.Passphrase = pass
	return nil
}
