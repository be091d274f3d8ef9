// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tomtom215/xbackup/internal/errs"
)

// checkSource verifies that path is a readable regular file.
//
//nolint:gosec // G304: paths come from the pipeline work directory
func checkSource(op, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errs.E(errs.InputUnreadable, op, path, err)
	}
	defer f.Close() //nolint:errcheck // read-only handle

	info, err := f.Stat()
	if err != nil {
		return errs.E(errs.InputUnreadable, op, path, err)
	}
	if !info.Mode().IsRegular() {
		return errs.E(errs.InputUnreadable, op, path, errors.New("not a regular file"))
	}
	return nil
}

// writeAtomic streams fn's output into a temporary file beside dst and renames
// it into place once fn and the flush succeeded.
func writeAtomic(dst string, fn func(w io.Writer) error) (err error) {
	out, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".*.partial")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	tmpPath := out.Name()
	defer func() {
		if err != nil {
			out.Close()        //nolint:errcheck // best effort cleanup on error
			os.Remove(tmpPath) //nolint:errcheck // best effort cleanup on error
		}
	}()

	bw := bufio.NewWriterSize(out, 256*1024)
	if err = fn(bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return os.Rename(tmpPath, dst)
}

// stageFile places src inside dir under its own base name.
func stageFile(src, dir string) (string, error) {
	staged := filepath.Join(dir, filepath.Base(src))
	if err := linkOrCopy(src, staged); err != nil {
		return "", err
	}
	return staged, nil
}

// linkOrCopy makes dst hold the bytes of src, hard-linking when both live on the
// same filesystem and copying otherwise. An existing dst is replaced.
//
//nolint:gosec // G304: paths come from the pipeline work directory
func linkOrCopy(src, dst string) error {
	removeQuiet(dst)
	if err := os.Link(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return errs.E(errs.InputUnreadable, "copy", src, err)
	}
	defer in.Close() //nolint:errcheck // read-only handle

	return writeAtomic(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

func removeQuiet(path string) {
	if path != "" {
		os.Remove(path) //nolint:errcheck // best effort cleanup
	}
}
