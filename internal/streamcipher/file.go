// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package streamcipher

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/tomtom215/xbackup/internal/errs"
)

// EncryptFile encrypts srcPath into dstPath. The output is written to a temporary
// file beside dstPath and renamed into place only after every chunk succeeded, so
// a failed call never leaves a partial dstPath behind.
func EncryptFile(srcPath, dstPath, passphrase string, opts Options) error {
	return transformFile(srcPath, dstPath, "encrypt", func(r io.Reader, w io.Writer) error {
		return Encrypt(r, w, passphrase, opts)
	})
}

// DecryptFile decrypts srcPath into dstPath with the same all-or-nothing guarantee
// as EncryptFile. chunkSize only matters for legacy streams.
func DecryptFile(srcPath, dstPath, passphrase string, chunkSize int) error {
	return transformFile(srcPath, dstPath, "decrypt", func(r io.Reader, w io.Writer) error {
		return DecryptStream(r, w, passphrase, chunkSize)
	})
}

//nolint:gosec // G304: paths come from the pipeline work directory
func transformFile(srcPath, dstPath, op string, fn func(io.Reader, io.Writer) error) (err error) {
	in, err := os.Open(srcPath)
	if err != nil {
		return errs.E(errs.InputUnreadable, op, srcPath, err)
	}
	defer in.Close() //nolint:errcheck // read-only handle

	out, err := os.CreateTemp(filepath.Dir(dstPath), "."+filepath.Base(dstPath)+".*.partial")
	if err != nil {
		return fmt.Errorf("%s: create output: %w", op, err)
	}
	tmpPath := out.Name()
	defer func() {
		if err != nil {
			out.Close()        //nolint:errcheck // best effort cleanup on error
			os.Remove(tmpPath) //nolint:errcheck // best effort cleanup on error
		}
	}()

	bw := bufio.NewWriterSize(out, 256*1024)
	if err = fn(bufio.NewReaderSize(in, 256*1024), bw); err != nil {
		return err
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("%s: flush: %w", op, err)
	}
	if err = out.Sync(); err != nil {
		return fmt.Errorf("%s: sync: %w", op, err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("%s: close: %w", op, err)
	}
	if err = os.Rename(tmpPath, dstPath); err != nil {
		return fmt.Errorf("%s: rename: %w", op, err)
	}
	return nil
}
