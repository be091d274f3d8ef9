// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/tomtom215/xbackup/internal/bandwidth"
	"github.com/tomtom215/xbackup/internal/logging"
	"github.com/tomtom215/xbackup/internal/retention"
)

// Local stores objects as files under a root directory, for NFS mounts,
// removable disks and tests.
type Local struct {
	root  string
	limit *bandwidth.Limiter
	log   zerolog.Logger
}

// NewLocal creates the root directory if needed.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewLocal(root string, log zerolog.Logger) (*Local, error) {
	if root == "" {
		return nil, errors.New("local storage path is empty")
	}
	root = filepath.Clean(root)
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	return &Local{root: root, log: logging.WithComponent(log, "storage-local")}, nil
}

// Name implements Backend.
func (l *Local) Name() string { return "local" }

// SetLimiter throttles uploads; nil removes the limit.
func (l *Local) SetLimiter(lim *bandwidth.Limiter) { l.limit = lim }

func (l *Local) path(key string) (string, error) {
	clean, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(l.root, filepath.FromSlash(clean)), nil
}

// Upload implements Backend. The object appears atomically.
func (l *Local) Upload(ctx context.Context, localPath, key string) error {
	dst, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", key, err)
	}
	if err := copyFileAtomic(ctx, localPath, dst, l.limit); err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	l.log.Debug().Str("key", key).Str("path", dst).Msg("Object stored")
	return nil
}

// Download implements Backend.
func (l *Local) Download(ctx context.Context, key, localPath string) error {
	src, err := l.path(key)
	if err != nil {
		return err
	}
	if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err := copyFileAtomic(ctx, src, localPath, nil); err != nil {
		return fmt.Errorf("failed to download %s: %w", key, err)
	}
	return nil
}

// List implements Backend. Directories are reported with IsDir set.
func (l *Local) List(ctx context.Context, prefix string) ([]retention.Record, error) {
	base := l.root
	if dir := prefixDir(prefix); dir != "" {
		p, err := l.path(dir)
		if err != nil {
			return nil, err
		}
		base = p
	}

	var records []retention.Record
	err := filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if p == base && errors.Is(walkErr, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return walkErr
		}
		if p == base || isPartial(d) {
			return nil
		}

		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			// base is the deepest directory named by prefix, so nothing below
			// a non-matching child can match either.
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		records = append(records, retention.Record{
			Path:    key,
			ModTime: info.ModTime(),
			Size:    info.Size(),
			IsDir:   d.IsDir(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", prefix, err)
	}
	return records, nil
}

// Delete implements Backend.
func (l *Local) Delete(_ context.Context, key string) error {
	p, err := l.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// isPartial matches the temp files copyFileAtomic leaves while a copy is in flight.
func isPartial(d fs.DirEntry) bool {
	return !d.IsDir() && strings.HasPrefix(d.Name(), ".") && strings.HasSuffix(d.Name(), ".partial")
}

// prefixDir is the deepest directory fully named by prefix.
func prefixDir(prefix string) string {
	if prefix == "" {
		return ""
	}
	if strings.HasSuffix(prefix, "/") {
		return strings.TrimSuffix(prefix, "/")
	}
	if dir := path.Dir(prefix); dir != "." {
		return dir
	}
	return ""
}

// copyFileAtomic copies src into a temp file beside dst and renames it into
// place, reading through lim when it is set.
//
//nolint:gosec // G304: paths come from the work dir or the storage root
func copyFileAtomic(ctx context.Context, src, dst string, lim *bandwidth.Limiter) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck // read-only handle

	out, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.partial")
	if err != nil {
		return err
	}
	tmp := out.Name()
	defer func() {
		if err != nil {
			out.Close()    //nolint:errcheck // Best effort cleanup on error
			os.Remove(tmp) //nolint:errcheck // Best effort cleanup on error
		}
	}()

	if _, err = io.Copy(out, lim.Reader(ctx, &ctxReader{ctx: ctx, r: in})); err != nil {
		return err
	}
	if err = out.Sync(); err != nil {
		return err
	}
	if err = out.Close(); err != nil {
		return err
	}
	if err = os.Chmod(tmp, 0o640); err != nil {
		return err
	}
	return os.Rename(tmp, dst)
}

// ctxReader stops a copy once the context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
