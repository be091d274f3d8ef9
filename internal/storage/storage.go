// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package storage moves finished artifacts to and from the remote store.
//
// Keys are slash-separated paths relative to the store root. Both backends
// list recursively and report what they find as retention records, so the
// rotation engine works against either one unchanged.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tomtom215/xbackup/internal/bandwidth"
	"github.com/tomtom215/xbackup/internal/config"
	"github.com/tomtom215/xbackup/internal/retention"
)

var (
	// ErrNotFound is returned by Download when the key does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrInvalidKey is returned for keys that are empty or escape the store root.
	ErrInvalidKey = errors.New("invalid object key")
)

// Backend is a remote artifact store.
type Backend interface {
	// Name identifies the backend in logs and reports.
	Name() string

	// Upload copies the local file to key, replacing any existing object.
	Upload(ctx context.Context, localPath, key string) error

	// Download copies key to localPath. A missing key yields ErrNotFound.
	Download(ctx context.Context, key, localPath string) error

	// List returns every object under prefix, recursively.
	List(ctx context.Context, prefix string) ([]retention.Record, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

var _ retention.Store = Backend(nil)

// New builds the backend selected by cfg.Type with the configured upload limit.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(ctx context.Context, cfg config.StorageConfig, log zerolog.Logger) (Backend, error) {
	lim := bandwidth.NewLimiter(cfg.BandwidthLimit)
	switch cfg.Type {
	case "local":
		l, err := NewLocal(cfg.Local.Path, log)
		if err != nil {
			return nil, err
		}
		l.SetLimiter(lim)
		return l, nil
	case "s3":
		s, err := NewS3(ctx, cfg.S3, log)
		if err != nil {
			return nil, err
		}
		s.SetLimiter(lim)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// JoinKey builds the object key for name under prefix.
func JoinKey(prefix, name string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return name
	}
	return prefix + "/" + name
}

// ListPrefix turns a configured prefix into a listing prefix that matches
// only keys inside it: "hosts/web1" lists "hosts/web1/..." and not "hosts/web10".
func ListPrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// cleanKey rejects keys that are empty, absolute or contain "..".
func cleanKey(key string) (string, error) {
	if key == "" || strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") || clean != strings.TrimSuffix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return clean, nil
}
