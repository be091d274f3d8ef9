// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package artifact

import (
	"fmt"
	"strings"
)

// CompressionMethods lists every compression method in a stable order.
var CompressionMethods = []Method{None, Gzip, Bzip2, Xz, Zstd, Zip, SevenZip}

// EncryptionMethods lists every encryption method in a stable order.
var EncryptionMethods = []Method{None, AES, GPG, Zip, SevenZip}

// IsCompression reports whether m belongs to the compression set.
func IsCompression(m Method) bool {
	return m == None || compressionExt[m] != ""
}

// IsEncryption reports whether m belongs to the encryption set.
func IsEncryption(m Method) bool {
	return m == None || encryptionExt[m] != "" || IsOneStep(m)
}

// ParseMethod normalizes a user-supplied method name. It accepts the canonical
// names plus the common aliases "7z", "7zip", "zst", "gz", "bz2" and "" (none).
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "off":
		return None, nil
	case "gzip", "gz":
		return Gzip, nil
	case "bzip2", "bz2":
		return Bzip2, nil
	case "xz":
		return Xz, nil
	case "zstd", "zst":
		return Zstd, nil
	case "zip":
		return Zip, nil
	case "sevenzip", "7z", "7zip", "7-zip":
		return SevenZip, nil
	case "aes":
		return AES, nil
	case "gpg", "gnupg":
		return GPG, nil
	default:
		return "", fmt.Errorf("unknown method %q", s)
	}
}

// ValidatePair checks that compression and encryption can be combined. A one-step
// tool used for encryption must also be the compression method, since 7-Zip and
// zip only encrypt as part of their own archive step.
func ValidatePair(compression, encryption Method) error {
	if !IsCompression(compression) {
		return fmt.Errorf("%q is not a compression method", compression)
	}
	if !IsEncryption(encryption) {
		return fmt.Errorf("%q is not an encryption method", encryption)
	}
	if IsOneStep(encryption) && compression != encryption {
		return fmt.Errorf("encryption %q requires compression %q", encryption, encryption)
	}
	return nil
}
