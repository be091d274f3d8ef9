// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package streamcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
	"io"

	"github.com/tomtom215/xbackup/internal/errs"
)

var errBadPadding = errors.New("invalid padding")

func encryptLegacy(src io.Reader, dst io.Writer, key []byte, chunkSize int, random io.Reader) error {
	const op = "encrypt"

	block, err := aes.NewCipher(key)
	if err != nil {
		return errs.E(errs.CipherFailure, op, "", err)
	}

	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(random, iv); err != nil {
		return errs.E(errs.CipherFailure, op, "", fmt.Errorf("generate iv: %w", err))
	}
	if err := writeAll(dst, iv, op); err != nil {
		return err
	}

	plain := make([]byte, chunkSize)
	sealed := make([]byte, chunkSize+aes.BlockSize)
	for {
		n, done, err := readChunk(src, plain, op)
		if err != nil {
			return err
		}
		if n > 0 {
			size := padPKCS7(sealed, plain[:n])
			cipher.NewCBCEncrypter(block, iv).CryptBlocks(sealed[:size], sealed[:size])
			if err := writeAll(dst, sealed[:size], op); err != nil {
				return err
			}
		}
		if done {
			return nil
		}
	}
}

func decryptLegacy(src io.Reader, dst io.Writer, key []byte, chunkSize int) error {
	const op = "decrypt"

	block, err := aes.NewCipher(key)
	if err != nil {
		return errs.E(errs.CipherFailure, op, "", err)
	}

	iv := make([]byte, IVSize)
	n, _, err := readChunk(src, iv, op)
	if err != nil {
		return err
	}
	if n != IVSize {
		return errs.E(errs.CipherFailure, op, "", fmt.Errorf("truncated header: %d of %d bytes", n, IVSize))
	}

	buf := make([]byte, chunkSize+aes.BlockSize)
	for index := 0; ; index++ {
		n, done, err := readChunk(src, buf, op)
		if err != nil {
			return err
		}
		if n > 0 {
			if n%aes.BlockSize != 0 {
				return errs.E(errs.CipherFailure, op, "", fmt.Errorf("chunk %d truncated: %d bytes", index, n))
			}
			cipher.NewCBCDecrypter(block, iv).CryptBlocks(buf[:n], buf[:n])
			plain, err := unpadPKCS7(buf[:n])
			if err != nil {
				return errs.E(errs.CipherFailure, op, "", fmt.Errorf("chunk %d: %w", index, err))
			}
			if err := writeAll(dst, plain, op); err != nil {
				return err
			}
		}
		if done {
			return nil
		}
	}
}

// padPKCS7 copies p into dst followed by PKCS#7 padding and returns the padded length.
// dst must hold len(p)+aes.BlockSize bytes.
func padPKCS7(dst, p []byte) int {
	pad := aes.BlockSize - len(p)%aes.BlockSize
	copy(dst, p)
	for i := len(p); i < len(p)+pad; i++ {
		dst[i] = byte(pad)
	}
	return len(p) + pad
}

func unpadPKCS7(p []byte) ([]byte, error) {
	if len(p) == 0 || len(p)%aes.BlockSize != 0 {
		return nil, errBadPadding
	}
	pad := int(p[len(p)-1])
	if pad == 0 || pad > aes.BlockSize {
		return nil, errBadPadding
	}
	for _, b := range p[len(p)-pad:] {
		if int(b) != pad {
			return nil, errBadPadding
		}
	}
	return p[:len(p)-pad], nil
}
