// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/tomtom215/xbackup/internal/artifact"
	"github.com/tomtom215/xbackup/internal/errs"
	"github.com/tomtom215/xbackup/internal/metrics"
	"github.com/tomtom215/xbackup/internal/streamcipher"
)

// ctxReader stops a copy once its context is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// nativeTransform opens src and streams it through fn into dst. Codec failures are
// reported as the equivalent of a tool exiting non-zero.
//
//nolint:gosec // G304: paths come from the pipeline work directory
func nativeTransform(ctx context.Context, tool, src, dst string, fn func(r io.Reader, w io.Writer) error) (err error) {
	result := "ok"
	defer func() { metrics.RecordToolInvocation(tool, result) }()

	if err := checkSource(tool, src); err != nil {
		result = "input_unreadable"
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		result = "input_unreadable"
		return errs.E(errs.InputUnreadable, tool, src, err)
	}
	defer in.Close() //nolint:errcheck // read-only handle

	if err := writeAtomic(dst, func(w io.Writer) error {
		return fn(ctxReader{ctx: ctx, r: in}, w)
	}); err != nil {
		result = "exit_nonzero"
		return errs.E(errs.ToolExitedNonZero, tool, src, err)
	}
	return nil
}

// nativeGzip compresses in-process with klauspost/compress/gzip.
type nativeGzip struct{}

func (nativeGzip) Method() artifact.Method { return artifact.Gzip }

func (nativeGzip) Compress(ctx context.Context, src, dst string, level int) error {
	return nativeTransform(ctx, "gzip-native", src, dst, func(r io.Reader, w io.Writer) error {
		zw, err := gzip.NewWriterLevel(w, NormalizeLevel(artifact.Gzip, level))
		if err != nil {
			return err
		}
		if _, err := io.Copy(zw, r); err != nil {
			zw.Close() //nolint:errcheck // copy error takes precedence
			return err
		}
		return zw.Close()
	})
}

func (nativeGzip) Decompress(ctx context.Context, src, dst string) error {
	return nativeTransform(ctx, "gzip-native", src, dst, func(r io.Reader, w io.Writer) error {
		zr, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("read gzip header: %w", err)
		}
		defer zr.Close() //nolint:errcheck // reader close only releases state
		_, err = io.Copy(w, zr)
		return err
	})
}

// nativeZstd compresses in-process with klauspost/compress/zstd. The 1-22 level
// scale is mapped onto the encoder's speed presets.
type nativeZstd struct{}

func (nativeZstd) Method() artifact.Method { return artifact.Zstd }

func (nativeZstd) Compress(ctx context.Context, src, dst string, level int) error {
	return nativeTransform(ctx, "zstd-native", src, dst, func(r io.Reader, w io.Writer) error {
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(NormalizeLevel(artifact.Zstd, level))))
		if err != nil {
			return err
		}
		if _, err := io.Copy(zw, r); err != nil {
			zw.Close() //nolint:errcheck // copy error takes precedence
			return err
		}
		return zw.Close()
	})
}

func (nativeZstd) Decompress(ctx context.Context, src, dst string) error {
	return nativeTransform(ctx, "zstd-native", src, dst, func(r io.Reader, w io.Writer) error {
		zr, err := zstd.NewReader(r)
		if err != nil {
			return err
		}
		defer zr.Close()
		_, err = io.Copy(w, zr)
		return err
	})
}

// aesCipher encrypts with the chunked stream cipher.
type aesCipher struct {
	format    streamcipher.Format
	chunkSize int
}

func (a aesCipher) Method() artifact.Method { return artifact.AES }

func (a aesCipher) Encrypt(_ context.Context, src, dst, passphrase string) error {
	err := streamcipher.EncryptFile(src, dst, passphrase, streamcipher.Options{Format: a.format, ChunkSize: a.chunkSize})
	metrics.RecordToolInvocation("aes", resultLabel(err))
	return err
}

func (a aesCipher) Decrypt(_ context.Context, src, dst, passphrase string) error {
	err := streamcipher.DecryptFile(src, dst, passphrase, a.chunkSize)
	metrics.RecordToolInvocation("aes", resultLabel(err))
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errs.Is(err, errs.InputUnreadable):
		return "input_unreadable"
	case errs.Is(err, errs.CipherFailure):
		return "cipher_failure"
	default:
		return "error"
	}
}
