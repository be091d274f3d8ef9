// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package config

import (
	"errors"
	"fmt"

	"github.com/tomtom215/xbackup/internal/artifact"
	"github.com/tomtom215/xbackup/internal/validation"
)

// Validate checks struct tags first, then the rules that span several keys.
func (c *Config) Validate() error {
	if verr := validation.ValidateStruct(c); verr != nil {
		return verr
	}

	if err := c.validateMethods(); err != nil {
		return err
	}

	return c.validateStorage()
}

// validateMethods applies the pairing rule: zip and 7z only encrypt inside
// their own archive step.
func (c *Config) validateMethods() error {
	compression, encryption, err := c.Methods()
	if err != nil {
		return err
	}
	if err := artifact.ValidatePair(compression, encryption); err != nil {
		return fmt.Errorf("compression.method/encryption.method: %w", err)
	}
	return nil
}

func (c *Config) validateStorage() error {
	switch c.Storage.Type {
	case "local":
		if c.Storage.Local.Path == "" {
			return errors.New("storage.local.path is required when storage.type is local")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return errors.New("storage.s3.bucket is required when storage.type is s3")
		}
		if (c.Storage.S3.AccessKeyID == "") != (c.Storage.S3.SecretAccessKey == "") {
			return errors.New("storage.s3.access_key_id and storage.s3.secret_access_key must be set together")
		}
	}
	return nil
}

// Methods returns the parsed compression and encryption methods.
func (c *Config) Methods() (compression, encryption artifact.Method, err error) {
	compression, err = artifact.ParseMethod(c.Compression.Method)
	if err != nil {
		return "", "", fmt.Errorf("compression.method: %w", err)
	}
	encryption, err = artifact.ParseMethod(c.Encryption.Method)
	if err != nil {
		return "", "", fmt.Errorf("encryption.method: %w", err)
	}
	return compression, encryption, nil
}

// NeedsPassphrase reports whether the configured encryption requires a secret.
// zip and 7z used only for compression do not.
func (c *Config) NeedsPassphrase() bool {
	_, encryption, err := c.Methods()
	return err == nil && encryption != artifact.None
}
