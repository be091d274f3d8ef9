// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/tomtom215/xbackup/internal/artifact"
)

// streamTool drives a filter-style compressor (gzip, bzip2, xz, zstd) that writes
// its result to standard output.
type streamTool struct {
	method artifact.Method
	tool   string
	path   string
	run    *runner
}

func (s *streamTool) Method() artifact.Method { return s.method }

func (s *streamTool) compressArgs(level int) []string {
	level = NormalizeLevel(s.method, level)
	args := []string{"-c", "-" + strconv.Itoa(level)}
	if s.method == artifact.Zstd {
		args = append([]string{"-q", "-T0"}, args...)
		if level > 19 {
			args = append(args, "--ultra")
		}
	}
	return args
}

// Compress runs "<tool> -c -<level> src > dst".
func (s *streamTool) Compress(ctx context.Context, src, dst string, level int) error {
	if err := checkSource(s.tool, src); err != nil {
		return err
	}
	return s.run.run(ctx, Command{
		Tool:   s.tool,
		Path:   s.path,
		Args:   append(s.compressArgs(level), "--", src),
		Stdout: dst,
		Output: dst,
	})
}

// Decompress runs "<tool> -d -c src > dst".
func (s *streamTool) Decompress(ctx context.Context, src, dst string) error {
	if err := checkSource(s.tool, src); err != nil {
		return err
	}
	args := []string{"-d", "-c"}
	if s.method == artifact.Zstd {
		args = append([]string{"-q"}, args...)
	}
	return s.run.run(ctx, Command{
		Tool:   s.tool,
		Path:   s.path,
		Args:   append(args, "--", src),
		Stdout: dst,
		Output: dst,
	})
}

// sevenZipTool drives 7-Zip for plain and password-protected archives.
type sevenZipTool struct {
	path string
	run  *runner
}

func (s *sevenZipTool) Method() artifact.Method { return artifact.SevenZip }

func (s *sevenZipTool) Compress(ctx context.Context, src, dst string, level int) error {
	return s.CompressEncrypt(ctx, src, dst, level, "")
}

// CompressEncrypt runs "7z a -t7z -mx=<level> [-p<pw> -mhe=on] <dest> <src>" on a
// private copy of src, so concurrent invocations never share a working directory.
func (s *sevenZipTool) CompressEncrypt(ctx context.Context, src, dst string, level int, passphrase string) error {
	args := []string{"a", "-t7z", "-bd", "-y", "-mx=" + strconv.Itoa(NormalizeLevel(artifact.SevenZip, level))}
	if passphrase != "" {
		args = append(args, "-p"+passphrase, "-mhe=on")
	}
	return archiveInPrivateDir(ctx, s.run, "7z", s.path, src, dst, passphrase, "archive.7z", args)
}

func (s *sevenZipTool) Decompress(ctx context.Context, src, dst string) error {
	return s.DecompressDecrypt(ctx, src, dst, "")
}

// DecompressDecrypt runs "7z x -so [-p<pw>] src > dst". The archive holds a
// single entry, which is streamed straight into dst.
func (s *sevenZipTool) DecompressDecrypt(ctx context.Context, src, dst, passphrase string) error {
	if err := checkSource("7z", src); err != nil {
		return err
	}
	args := []string{"x", "-so", "-bd", "-y"}
	if passphrase != "" {
		args = append(args, "-p"+passphrase)
	}
	return s.run.run(ctx, Command{
		Tool:   "7z",
		Path:   s.path,
		Args:   append(args, "--", src),
		Secret: passphrase,
		Stdout: dst,
		Output: dst,
	})
}

// zipTool drives Info-ZIP zip and unzip.
type zipTool struct {
	zipPath   string
	unzipPath string
	run       *runner
}

func (z *zipTool) Method() artifact.Method { return artifact.Zip }

func (z *zipTool) Compress(ctx context.Context, src, dst string, level int) error {
	return z.CompressEncrypt(ctx, src, dst, level, "")
}

// CompressEncrypt runs "zip -j -<level> [-e -P <pw>] <dest> <src>" on a private
// copy of src. zip encryption is the legacy ZipCrypto cipher.
func (z *zipTool) CompressEncrypt(ctx context.Context, src, dst string, level int, passphrase string) error {
	args := []string{"-j", "-q", "-" + strconv.Itoa(NormalizeLevel(artifact.Zip, level))}
	if passphrase != "" {
		args = append(args, "-e", "-P", passphrase)
	}
	return archiveInPrivateDir(ctx, z.run, "zip", z.zipPath, src, dst, passphrase, "archive.zip", args)
}

func (z *zipTool) Decompress(ctx context.Context, src, dst string) error {
	return z.DecompressDecrypt(ctx, src, dst, "")
}

// DecompressDecrypt runs "unzip -p -P <pw> src > dst". The password flag is
// always present so unzip never falls back to an interactive prompt.
func (z *zipTool) DecompressDecrypt(ctx context.Context, src, dst, passphrase string) error {
	if err := checkSource("unzip", src); err != nil {
		return err
	}
	return z.run.run(ctx, Command{
		Tool:   "unzip",
		Path:   z.unzipPath,
		Args:   []string{"-p", "-P", passphrase, src},
		Secret: passphrase,
		Stdout: dst,
		Output: dst,
	})
}

// archiveInPrivateDir stages src in a fresh temporary directory next to dst,
// runs the archiver there with args followed by the archive and entry names,
// and moves the archive to dst.
func archiveInPrivateDir(ctx context.Context, r *runner, tool, path, src, dst, secret, archiveName string, args []string) error {
	if err := checkSource(tool, src); err != nil {
		return err
	}

	dir, err := os.MkdirTemp(filepath.Dir(dst), ".xbk-"+tool+"-*")
	if err != nil {
		return fmt.Errorf("%s: create private dir: %w", tool, err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck // best effort cleanup

	staged, err := stageFile(src, dir)
	if err != nil {
		return err
	}

	archive := filepath.Join(dir, archiveName)
	args = append(args, archiveName, filepath.Base(staged))
	if err := r.run(ctx, Command{
		Tool:   tool,
		Path:   path,
		Args:   args,
		Dir:    dir,
		Secret: secret,
		Output: archive,
	}); err != nil {
		return err
	}

	if err := os.Rename(archive, dst); err != nil {
		return fmt.Errorf("%s: move archive: %w", tool, err)
	}
	return nil
}

// gpgTool performs symmetric gpg encryption with the passphrase on stdin.
type gpgTool struct {
	path    string
	homeDir string
	run     *runner
}

func (g *gpgTool) Method() artifact.Method { return artifact.GPG }

func (g *gpgTool) baseArgs() []string {
	args := []string{"--batch", "--yes", "--quiet", "--pinentry-mode", "loopback", "--passphrase-fd", "0"}
	if g.homeDir != "" {
		args = append([]string{"--homedir", g.homeDir}, args...)
	}
	return args
}

// Encrypt runs "gpg --batch --yes --symmetric --cipher-algo AES256
// --passphrase-fd 0 -o <dest> <src>" and writes the passphrase to stdin.
func (g *gpgTool) Encrypt(ctx context.Context, src, dst, passphrase string) error {
	if err := checkSource("gpg", src); err != nil {
		return err
	}
	args := append(g.baseArgs(), "--symmetric", "--cipher-algo", "AES256", "-o", dst, src)
	return g.run.run(ctx, Command{
		Tool:   "gpg",
		Path:   g.path,
		Args:   args,
		Stdin:  passphrase + "\n",
		Output: dst,
	})
}

// Decrypt runs "gpg --batch --passphrase-fd 0 -o <dest> --decrypt <src>".
func (g *gpgTool) Decrypt(ctx context.Context, src, dst, passphrase string) error {
	if err := checkSource("gpg", src); err != nil {
		return err
	}
	args := append(g.baseArgs(), "-o", dst, "--decrypt", src)
	return g.run.run(ctx, Command{
		Tool:   "gpg",
		Path:   g.path,
		Args:   args,
		Stdin:  passphrase + "\n",
		Output: dst,
	})
}
