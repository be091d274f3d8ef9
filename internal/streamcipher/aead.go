// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package streamcipher

import (
	"bufio"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"golang.org/x/crypto/hkdf"

	"github.com/tomtom215/xbackup/internal/errs"
)

const (
	aeadMagic       = "XBKAEAD1"
	aeadSaltSize    = 16
	aeadPrefixSize  = 7
	aeadHeaderSize  = len(aeadMagic) + 4 + aeadSaltSize + aeadPrefixSize
	aeadKeyInfo     = "xbackup-stream-aead-v1"
	gcmNonceSize    = 12
	gcmTagSize      = 16
	lastChunkFlag   = 1
	middleChunkFlag = 0
)

var errTrailingData = errors.New("data after final chunk")

type aeadHeader struct {
	chunkSize int
	salt      []byte
	prefix    []byte
	raw       []byte
}

func (h *aeadHeader) marshal() []byte {
	raw := make([]byte, 0, aeadHeaderSize)
	raw = append(raw, aeadMagic...)
	raw = binary.BigEndian.AppendUint32(raw, uint32(h.chunkSize)) //nolint:gosec // bounded by MaxChunkSize
	raw = append(raw, h.salt...)
	raw = append(raw, h.prefix...)
	h.raw = raw
	return raw
}

func parseAEADHeader(raw []byte) (*aeadHeader, error) {
	if len(raw) != aeadHeaderSize || string(raw[:len(aeadMagic)]) != aeadMagic {
		return nil, fmt.Errorf("malformed header")
	}
	off := len(aeadMagic)
	chunkSize := int(binary.BigEndian.Uint32(raw[off : off+4]))
	if chunkSize <= 0 || chunkSize > MaxChunkSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, chunkSize)
	}
	off += 4
	return &aeadHeader{
		chunkSize: chunkSize,
		salt:      raw[off : off+aeadSaltSize],
		prefix:    raw[off+aeadSaltSize:],
		raw:       raw,
	}, nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, DeriveKey(passphrase), salt, []byte(aeadKeyInfo)), key); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func chunkNonce(prefix []byte, counter uint32, last bool) []byte {
	nonce := make([]byte, 0, gcmNonceSize)
	nonce = append(nonce, prefix...)
	nonce = binary.BigEndian.AppendUint32(nonce, counter)
	if last {
		return append(nonce, lastChunkFlag)
	}
	return append(nonce, middleChunkFlag)
}

func encryptAEAD(src io.Reader, dst io.Writer, passphrase string, chunkSize int, random io.Reader) error {
	const op = "encrypt"

	h := &aeadHeader{
		chunkSize: chunkSize,
		salt:      make([]byte, aeadSaltSize),
		prefix:    make([]byte, aeadPrefixSize),
	}
	if _, err := io.ReadFull(random, h.salt); err != nil {
		return errs.E(errs.CipherFailure, op, "", fmt.Errorf("generate salt: %w", err))
	}
	if _, err := io.ReadFull(random, h.prefix); err != nil {
		return errs.E(errs.CipherFailure, op, "", fmt.Errorf("generate nonce: %w", err))
	}

	gcm, err := newGCM(passphrase, h.salt)
	if err != nil {
		return errs.E(errs.CipherFailure, op, "", err)
	}
	if err := writeAll(dst, h.marshal(), op); err != nil {
		return err
	}

	br := bufio.NewReaderSize(src, 64*1024)
	plain := make([]byte, chunkSize)
	sealed := make([]byte, 0, chunkSize+gcmTagSize)
	for counter := uint32(0); ; counter++ {
		n, done, err := readChunk(br, plain, op)
		if err != nil {
			return err
		}
		last := done
		if !last {
			if _, peekErr := br.Peek(1); errors.Is(peekErr, io.EOF) {
				last = true
			}
		}
		sealed = gcm.Seal(sealed[:0], chunkNonce(h.prefix, counter, last), plain[:n], h.raw)
		if err := writeAll(dst, sealed, op); err != nil {
			return err
		}
		if last {
			return nil
		}
		if counter == math.MaxUint32 {
			return errs.E(errs.CipherFailure, op, "", fmt.Errorf("stream exceeds %d chunks", uint64(math.MaxUint32)+1))
		}
	}
}

func decryptAEAD(br *bufio.Reader, dst io.Writer, passphrase string) error {
	const op = "decrypt"

	raw := make([]byte, aeadHeaderSize)
	n, _, err := readChunk(br, raw, op)
	if err != nil {
		return err
	}
	if n != aeadHeaderSize {
		return errs.E(errs.CipherFailure, op, "", fmt.Errorf("truncated header: %d of %d bytes", n, aeadHeaderSize))
	}
	h, err := parseAEADHeader(raw)
	if err != nil {
		return errs.E(errs.CipherFailure, op, "", err)
	}

	gcm, err := newGCM(passphrase, h.salt)
	if err != nil {
		return errs.E(errs.CipherFailure, op, "", err)
	}

	buf := make([]byte, h.chunkSize+gcmTagSize)
	plain := make([]byte, 0, h.chunkSize)
	for counter := uint32(0); ; counter++ {
		n, done, err := readChunk(br, buf, op)
		if err != nil {
			return err
		}
		if n == 0 && done {
			return errs.E(errs.CipherFailure, op, "", fmt.Errorf("stream truncated before final chunk %d", counter))
		}
		last := done
		if !last {
			if _, peekErr := br.Peek(1); errors.Is(peekErr, io.EOF) {
				last = true
			}
		}

		plain, err = gcm.Open(plain[:0], chunkNonce(h.prefix, counter, last), buf[:n], h.raw)
		if err != nil {
			return errs.E(errs.CipherFailure, op, "", fmt.Errorf("chunk %d: authentication failed", counter))
		}
		if err := writeAll(dst, plain, op); err != nil {
			return err
		}
		if last {
			return nil
		}
		if counter == math.MaxUint32 {
			return errs.E(errs.CipherFailure, op, "", errTrailingData)
		}
	}
}
