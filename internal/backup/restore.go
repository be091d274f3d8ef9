// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/tomtom215/xbackup/internal/archive"
	"github.com/tomtom215/xbackup/internal/artifact"
	"github.com/tomtom215/xbackup/internal/logging"
)

// Restore downloads the artifact stored under key, reverses its compression
// and encryption and either writes the plain archive to target or, with
// opts.Extract, unpacks it into the target directory.
//
// Archives decrypted from aes artifacts are checked against their manifest
// before anything is written to target.
//
// When target is an existing directory and Extract is off, the archive keeps
// its original name inside it. Existing files are only replaced with
// opts.Archive.Overwrite.
func (r *Runner) Restore(ctx context.Context, key, target string, opts RestoreOptions) (*RestoreResult, error) {
	log := logging.Ctx(ctx, r.log)
	start := time.Now()
	result := &RestoreResult{Key: key, Target: target}

	if err := os.MkdirAll(r.cfg.WorkDir, 0o700); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}
	tmp, err := os.MkdirTemp(r.cfg.WorkDir, "restore-")
	if err != nil {
		return nil, fmt.Errorf("create restore directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmp); err != nil {
			log.Warn().Err(err).Str("dir", tmp).Msg("Failed to remove restore directory")
		}
	}()

	local := filepath.Join(tmp, path.Base(key))
	if err := r.store.Download(ctx, key, local); err != nil {
		return nil, fmt.Errorf("download %s: %w", key, err)
	}

	plain, name, err := r.pipe.Reverse(ctx, local, tmp)
	if err != nil {
		return nil, err
	}
	result.Compression = string(name.Compression)
	result.Encryption = string(name.Encryption)

	// A legacy aes stream cut at a chunk boundary decrypts without error, so the
	// archive manifest is the only thing that notices the loss.
	if name.Encryption == artifact.AES {
		if _, err := archive.Verify(ctx, plain); err != nil {
			return nil, fmt.Errorf("restored archive from %s is incomplete or corrupt: %w", key, err)
		}
		result.Verified = true
	}

	if opts.Extract {
		extracted, err := archive.Extract(ctx, plain, target, opts.Archive)
		if err != nil {
			return nil, err
		}
		result.Extracted = extracted
	} else {
		dest, err := restoreDest(plain, target)
		if err != nil {
			return nil, err
		}
		if err := placeFile(plain, dest, opts.Archive.Overwrite); err != nil {
			return nil, err
		}
		result.ArchivePath = dest
	}

	result.DurationMS = time.Since(start).Milliseconds()
	log.Info().
		Str("key", key).
		Str("target", target).
		Bool("extract", opts.Extract).
		Int64("duration_ms", result.DurationMS).
		Msg("Restore completed")
	return result, nil
}

func restoreDest(plain, target string) (string, error) {
	info, err := os.Stat(target)
	switch {
	case err == nil && info.IsDir():
		return filepath.Join(target, filepath.Base(plain)), nil
	case err == nil || errors.Is(err, os.ErrNotExist):
		return target, nil
	default:
		return "", err
	}
}

// placeFile moves src to dst, copying when they are on different filesystems.
func placeFile(src, dst string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Lstat(dst); err == nil {
			return fmt.Errorf("%s: %w", dst, archive.ErrExists)
		}
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	return copyFile(src, dst)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src) //nolint:gosec // G304: src is a file in our own restore directory
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // G304: dst is the operator's restore target
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
