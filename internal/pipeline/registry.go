// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package pipeline

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/tomtom215/xbackup/internal/artifact"
	"github.com/tomtom215/xbackup/internal/logging"
	"github.com/tomtom215/xbackup/internal/streamcipher"
)

// Options selects how each method is executed.
type Options struct {
	// Native runs gzip and zstd in-process instead of spawning the binaries.
	Native bool

	// Binaries overrides executable paths by tool name ("gzip", "7z", "unzip", ...).
	Binaries map[string]string

	// CipherFormat is the stream layout written for aes artifacts.
	CipherFormat streamcipher.Format

	// ChunkSize is the aes plaintext chunk size.
	ChunkSize int

	// GPGHome is passed to gpg as --homedir when set.
	GPGHome string
}

// Registry hands out the adapter serving each method.
type Registry struct {
	opts Options
	run  *runner
}

// NewRegistry creates a registry.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func NewRegistry(opts Options, log zerolog.Logger) *Registry {
	return &Registry{
		opts: opts,
		run:  &runner{log: logging.WithComponent(log, "pipeline")},
	}
}

func (r *Registry) binary(tool string) string {
	if path := r.opts.Binaries[tool]; path != "" {
		return path
	}
	return tool
}

// Compressor returns the compression adapter for m.
func (r *Registry) Compressor(m artifact.Method) (Compressor, error) {
	switch m {
	case artifact.Gzip:
		if r.opts.Native {
			return nativeGzip{}, nil
		}
		return &streamTool{method: m, tool: "gzip", path: r.binary("gzip"), run: r.run}, nil
	case artifact.Zstd:
		if r.opts.Native {
			return nativeZstd{}, nil
		}
		return &streamTool{method: m, tool: "zstd", path: r.binary("zstd"), run: r.run}, nil
	case artifact.Bzip2:
		return &streamTool{method: m, tool: "bzip2", path: r.binary("bzip2"), run: r.run}, nil
	case artifact.Xz:
		return &streamTool{method: m, tool: "xz", path: r.binary("xz"), run: r.run}, nil
	case artifact.Zip, artifact.SevenZip:
		return r.Combined(m)
	default:
		return nil, fmt.Errorf("no compressor for method %q", m)
	}
}

// Encryptor returns the encryption adapter for m. zip and sevenZip only encrypt
// through Combined.
func (r *Registry) Encryptor(m artifact.Method) (Encryptor, error) {
	switch m {
	case artifact.AES:
		return aesCipher{format: r.opts.CipherFormat, chunkSize: r.opts.ChunkSize}, nil
	case artifact.GPG:
		return &gpgTool{path: r.binary("gpg"), homeDir: r.opts.GPGHome, run: r.run}, nil
	default:
		return nil, fmt.Errorf("no standalone encryptor for method %q", m)
	}
}

// Combined returns the one-step compress+encrypt tool for m.
func (r *Registry) Combined(m artifact.Method) (CombinedTool, error) {
	switch m {
	case artifact.SevenZip:
		return &sevenZipTool{path: r.binary("7z"), run: r.run}, nil
	case artifact.Zip:
		return &zipTool{zipPath: r.binary("zip"), unzipPath: r.binary("unzip"), run: r.run}, nil
	default:
		return nil, fmt.Errorf("method %q is not a combined tool", m)
	}
}

// RequiredBinaries lists the executables needed to apply and reverse the given
// methods with these options, resolved through any Binaries overrides.
func (r *Registry) RequiredBinaries(methods ...artifact.Method) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(tools ...string) {
		for _, tool := range tools {
			path := r.binary(tool)
			if !seen[path] {
				seen[path] = true
				out = append(out, path)
			}
		}
	}

	for _, m := range methods {
		switch m {
		case artifact.Gzip, artifact.Zstd:
			if !r.opts.Native {
				add(string(m))
			}
		case artifact.Bzip2, artifact.Xz:
			add(string(m))
		case artifact.SevenZip:
			add("7z")
		case artifact.Zip:
			add("zip", "unzip")
		case artifact.GPG:
			add("gpg")
		}
	}
	return out
}
