// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package artifact encodes and decodes the processing marker carried by backup
// artifact filenames.
//
// # Filename Grammar
//
//	name = original ".xbk" ["." ext ["." ext]]
//	ext  = "gz" / "bz2" / "xz" / "zst" / "zip" / "7z" / "aes" / "gpg"
//
// The marker records which compression and encryption methods were applied, and
// in which order, so that a restore can undo them without any side metadata.
// Names without the ".xbk." token are legacy names and decode as passthrough.
//
// # Combined Steps
//
// 7-Zip and zip can compress and encrypt in a single invocation. That combined
// step is encoded by repeating the tool's extension twice:
//
//	Encode("x.tar", SevenZip, SevenZip) == "x.tar.xbk.7z.7z"
//	Encode("x.tar", Zip, Zip)           == "x.tar.xbk.zip.zip"
//
// A lone "7z" or "zip" extension always decodes as compression-only. The name
// alone cannot tell "compressed with 7z" from "7z used only to encrypt"; the
// codec resolves that ambiguity in favour of compression.
package artifact

import (
	"strings"
)

// Marker is the token separating the original filename from the method extensions.
const Marker = "xbk"

const markerToken = "." + Marker

// Method identifies a compression or encryption method.
type Method string

const (
	None     Method = "none"
	Gzip     Method = "gzip"
	Bzip2    Method = "bzip2"
	Xz       Method = "xz"
	Zstd     Method = "zstd"
	Zip      Method = "zip"
	SevenZip Method = "sevenZip"
	AES      Method = "aes"
	GPG      Method = "gpg"
)

// compressionExt maps compression methods to their filename extensions.
var compressionExt = map[Method]string{
	Gzip:     "gz",
	Bzip2:    "bz2",
	Xz:       "xz",
	Zstd:     "zst",
	Zip:      "zip",
	SevenZip: "7z",
}

// encryptionExt maps encryption-only methods to their filename extensions.
// Zip and SevenZip are absent: as encryptors they only exist as combined steps.
var encryptionExt = map[Method]string{
	AES: "aes",
	GPG: "gpg",
}

var (
	extToCompression = invert(compressionExt)
	extToEncryption  = invert(encryptionExt)
)

func invert(m map[Method]string) map[string]Method {
	out := make(map[string]Method, len(m))
	for method, ext := range m {
		out[ext] = method
	}
	return out
}

// Name is a decoded artifact filename.
type Name struct {
	Original    string
	Compression Method
	Encryption  Method
	HasMarker   bool
}

// IsOneStep reports whether m is a tool that compresses and encrypts in one invocation.
func IsOneStep(m Method) bool {
	return m == Zip || m == SevenZip
}

// IsCombined reports whether the name describes a single combined compress+encrypt step.
func (n Name) IsCombined() bool {
	return IsOneStep(n.Compression) && n.Compression == n.Encryption
}

// String re-encodes the name. Legacy names are returned unchanged.
func (n Name) String() string {
	if !n.HasMarker {
		return n.Original
	}
	return Encode(n.Original, n.Compression, n.Encryption)
}

// Encode appends the processing marker and method extensions to original.
// Inputs outside the enumerated method sets are treated as None.
func Encode(original string, compression, encryption Method) string {
	var b strings.Builder
	b.Grow(len(original) + len(markerToken) + 8)
	b.WriteString(original)
	b.WriteString(markerToken)

	if IsOneStep(compression) && compression == encryption {
		ext := compressionExt[compression]
		b.WriteString("." + ext + "." + ext)
		return b.String()
	}

	if ext, ok := compressionExt[compression]; ok {
		b.WriteString("." + ext)
	}
	if ext, ok := encryptionExt[encryption]; ok {
		b.WriteString("." + ext)
	}
	return b.String()
}

// Decode splits name into the original filename and the methods its marker records.
func Decode(name string) Name {
	original, tail, found := splitMarker(name)
	if !found {
		return Name{Original: name, Compression: None, Encryption: None}
	}

	n := Name{Original: original, Compression: None, Encryption: None, HasMarker: true}
	if tail == "" {
		return n
	}

	exts := strings.Split(tail, ".")
	switch {
	case len(exts) == 2 && exts[0] == exts[1] && isOneStepExt(exts[0]):
		m := extToCompression[exts[0]]
		n.Compression, n.Encryption = m, m
	case len(exts) == 1:
		if m, ok := extToCompression[exts[0]]; ok {
			n.Compression = m
		} else if m, ok := extToEncryption[exts[0]]; ok {
			n.Encryption = m
		}
	default:
		for _, ext := range exts {
			if m, ok := extToCompression[ext]; ok {
				n.Compression = m
			} else if m, ok := extToEncryption[ext]; ok {
				n.Encryption = m
			}
		}
	}
	return n
}

// splitMarker finds the last ".xbk" token that ends the name or is followed by
// a dot, and returns the text before it and the extension tail after it.
func splitMarker(name string) (original, tail string, found bool) {
	search := name
	for {
		idx := strings.LastIndex(search, markerToken)
		if idx <= 0 {
			return name, "", false
		}
		end := idx + len(markerToken)
		if end == len(name) {
			return name[:idx], "", true
		}
		if name[end] == '.' {
			return name[:idx], name[end+1:], true
		}
		search = name[:idx]
	}
}

func isOneStepExt(ext string) bool {
	return ext == compressionExt[Zip] || ext == compressionExt[SevenZip]
}

// HasMarker reports whether name carries the processing marker.
func HasMarker(name string) bool {
	_, _, found := splitMarker(name)
	return found
}
