// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package pipeline turns a plain archive into a compressed and/or encrypted
// artifact and back.
//
// # Capabilities
//
// Each method is served by an adapter implementing one or more of:
//
//	Compressor   - Compress / Decompress         (gzip, bzip2, xz, zstd, zip, 7z)
//	Encryptor    - Encrypt / Decrypt             (aes, gpg)
//	CombinedTool - CompressEncrypt / Decompress  (zip, 7z)
//
// gzip and zstd run in-process on klauspost/compress by default; aes uses the
// streamcipher package. Everything else runs as a child process built from an
// argument vector, never a shell string. The gpg passphrase is written to the
// child's standard input. 7-Zip and zip have no such channel and receive it on
// their command line (-p<pw> and -P <pw>); logged argument vectors are redacted.
//
// # Completion
//
// A step succeeds only when the tool exits with status zero and the destination
// exists. Sources are checked before anything is spawned, so a missing input
// never creates a destination. On failure the step removes whatever partial
// output it wrote.
//
// # Naming
//
// Pipeline.Apply names its result with artifact.Encode and Pipeline.Reverse
// reads the methods back with artifact.Decode, so an artifact can be restored
// without knowing the configuration that produced it.
package pipeline
