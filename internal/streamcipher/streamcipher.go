// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package streamcipher implements the self-contained chunked encryption format used
// for ".aes" artifacts, without any external binary.
//
// # Legacy Format (default)
//
//	[IV: 16 bytes][ciphertext chunk 1][ciphertext chunk 2]...
//
// Each plaintext chunk of at most ChunkSize bytes is encrypted independently with
// AES-256-CBC and PKCS#7 padding, using the same IV for every chunk. A full chunk
// therefore encrypts to exactly ChunkSize+16 bytes, which is how the reader frames
// the stream. The key is SHA-256 of the UTF-8 passphrase.
//
// Known weaknesses of the legacy format, kept for compatibility with existing
// archives: the IV repeats across chunks, the key is a single unsalted hash, and
// there is no authentication tag. A wrong passphrase is detected only through
// padding validation, which accepts random data with probability close to 1/256.
// Truncation is not detected either when the stream is cut right after the IV or
// exactly at a chunk boundary: the reader sees a clean end of stream and returns
// a prefix of the plaintext without error. Callers that need integrity must
// check the decrypted content, as restore does with the archive manifest.
//
// # AEAD Format (opt-in)
//
//	["XBKAEAD1"][chunk size: uint32 BE][salt: 16][nonce prefix: 7][sealed chunk]...
//
// Chunks are sealed with AES-256-GCM. The 12-byte nonce is the random prefix, a
// big-endian uint32 chunk counter, and a final-chunk flag byte, so reordering,
// truncation and a wrong passphrase are all rejected. The key is HKDF-SHA256 over
// SHA-256(passphrase) with the per-file salt.
//
// Readers detect the format from the leading magic, so both can be decrypted with
// the same call. Memory use is bounded by the chunk size regardless of input size.
package streamcipher

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/tomtom215/xbackup/internal/errs"
)

const (
	// IVSize is the length of the legacy stream header.
	IVSize = 16

	// KeySize is the AES-256 key length.
	KeySize = 32

	// DefaultChunkSize is the plaintext chunk size used when none is given.
	DefaultChunkSize = 4 << 20

	// MaxChunkSize bounds the per-chunk buffer a reader will allocate.
	MaxChunkSize = 64 << 20
)

// Format selects the on-disk stream layout.
type Format string

const (
	FormatLegacy Format = "legacy"
	FormatAEAD   Format = "aead"
)

var (
	// ErrInvalidChunkSize is returned for chunk sizes that cannot frame a stream.
	ErrInvalidChunkSize = errors.New("chunk size must be a positive multiple of 16")

	// ErrEmptyPassphrase is returned when no passphrase is supplied.
	ErrEmptyPassphrase = errors.New("passphrase cannot be empty")

	// ErrUnknownFormat is returned for unsupported Format values.
	ErrUnknownFormat = errors.New("unknown stream format")
)

// Options configures an encryption.
type Options struct {
	// Format defaults to FormatLegacy.
	Format Format

	// ChunkSize defaults to DefaultChunkSize.
	ChunkSize int

	// Rand supplies the IV, salt and nonce prefix. Defaults to crypto/rand.
	Rand io.Reader
}

func (o Options) withDefaults() Options {
	if o.Format == "" {
		o.Format = FormatLegacy
	}
	if o.ChunkSize == 0 {
		o.ChunkSize = DefaultChunkSize
	}
	if o.Rand == nil {
		o.Rand = rand.Reader
	}
	return o
}

// DeriveKey hashes the passphrase into an AES-256 key. This is a single SHA-256
// pass, not a password-hardening function.
func DeriveKey(passphrase string) []byte {
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:]
}

func validateChunkSize(chunkSize int) error {
	if chunkSize <= 0 || chunkSize%IVSize != 0 || chunkSize > MaxChunkSize {
		return fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	return nil
}

// EncryptStream writes the legacy format: a fresh IV, then each chunkSize piece
// of src encrypted under that IV. A chunkSize of 0 selects DefaultChunkSize.
func EncryptStream(src io.Reader, dst io.Writer, passphrase string, chunkSize int) error {
	return Encrypt(src, dst, passphrase, Options{Format: FormatLegacy, ChunkSize: chunkSize})
}

// DecryptStream reverses EncryptStream. It also accepts AEAD streams, whose chunk
// size is read from the header. Any failure aborts; dst may then hold a prefix of
// the plaintext and must be discarded by the caller.
func DecryptStream(src io.Reader, dst io.Writer, passphrase string, chunkSize int) error {
	if passphrase == "" {
		return ErrEmptyPassphrase
	}
	if chunkSize == 0 {
		chunkSize = DefaultChunkSize
	}

	br := bufio.NewReaderSize(src, 64*1024)
	format, err := detectFormat(br)
	if err != nil {
		return err
	}

	switch format {
	case FormatAEAD:
		return decryptAEAD(br, dst, passphrase)
	default:
		if err := validateChunkSize(chunkSize); err != nil {
			return err
		}
		return decryptLegacy(br, dst, DeriveKey(passphrase), chunkSize)
	}
}

// Encrypt writes src to dst in the format selected by opts.
func Encrypt(src io.Reader, dst io.Writer, passphrase string, opts Options) error {
	if passphrase == "" {
		return ErrEmptyPassphrase
	}
	opts = opts.withDefaults()
	if err := validateChunkSize(opts.ChunkSize); err != nil {
		return err
	}

	switch opts.Format {
	case FormatLegacy:
		return encryptLegacy(src, dst, DeriveKey(passphrase), opts.ChunkSize, opts.Rand)
	case FormatAEAD:
		return encryptAEAD(src, dst, passphrase, opts.ChunkSize, opts.Rand)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, opts.Format)
	}
}

// detectFormat reports which layout a stream uses without consuming it.
func detectFormat(br *bufio.Reader) (Format, error) {
	head, err := br.Peek(len(aeadMagic))
	if err != nil && !errors.Is(err, io.EOF) {
		return "", errs.E(errs.InputUnreadable, "decrypt", "", err)
	}
	if bytes.Equal(head, []byte(aeadMagic)) {
		return FormatAEAD, nil
	}
	return FormatLegacy, nil
}

// readChunk fills buf as far as src allows. It returns the byte count and whether
// src is exhausted; any other read error is classified as unreadable input.
func readChunk(src io.Reader, buf []byte, op string) (int, bool, error) {
	n, err := io.ReadFull(src, buf)
	switch {
	case err == nil:
		return n, false, nil
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return n, true, nil
	default:
		return n, false, errs.E(errs.InputUnreadable, op, "", err)
	}
}

func writeAll(dst io.Writer, p []byte, op string) error {
	if _, err := dst.Write(p); err != nil {
		return fmt.Errorf("%s: write: %w", op, err)
	}
	return nil
}
