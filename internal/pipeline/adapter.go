// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package pipeline

import (
	"context"

	"github.com/tomtom215/xbackup/internal/artifact"
)

// Compressor compresses one file into another.
type Compressor interface {
	Method() artifact.Method
	Compress(ctx context.Context, src, dst string, level int) error
	Decompress(ctx context.Context, src, dst string) error
}

// Encryptor encrypts one file into another with a passphrase.
type Encryptor interface {
	Method() artifact.Method
	Encrypt(ctx context.Context, src, dst, passphrase string) error
	Decrypt(ctx context.Context, src, dst, passphrase string) error
}

// CombinedTool compresses and encrypts in a single invocation.
type CombinedTool interface {
	Compressor
	CompressEncrypt(ctx context.Context, src, dst string, level int, passphrase string) error
	DecompressDecrypt(ctx context.Context, src, dst, passphrase string) error
}
