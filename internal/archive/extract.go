// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package archive

import (
	"archive/tar"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/xbackup/internal/errs"
)

var (
	// ErrUnsafePath is returned for entries that would be written outside the target.
	ErrUnsafePath = errors.New("unsafe path in archive")

	// ErrTooLarge is returned when an entry or the archive exceeds the configured limits.
	ErrTooLarge = errors.New("archive entry exceeds size limit")

	// ErrChecksumMismatch is returned when a file does not match its manifest checksum.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrNoManifest is returned when verification is requested but the archive has no manifest.
	ErrNoManifest = errors.New("archive has no manifest")

	// ErrExists is returned when a file already exists and overwriting is off.
	ErrExists = errors.New("destination already exists")
)

// maxManifestSize bounds the manifest read into memory.
const maxManifestSize = 256 << 20

// ExtractOptions controls Extract.
type ExtractOptions struct {
	// MaxFileSize bounds each regular file. Zero means no limit.
	MaxFileSize int64

	// MaxTotalSize bounds the sum of regular file sizes. Zero means no limit.
	MaxTotalSize int64

	// Verify checks every regular file against the manifest checksums.
	Verify bool

	// Overwrite replaces existing files instead of failing.
	Overwrite bool

	// StripRoot drops the leading user directory so files land directly in the target.
	StripRoot bool
}

// ExtractResult summarizes an extraction.
type ExtractResult struct {
	Files    int       `json:"files"`
	Dirs     int       `json:"dirs"`
	Symlinks int       `json:"symlinks"`
	Bytes    int64     `json:"bytes"`
	Verified bool      `json:"verified"`
	Skipped  []Skipped `json:"skipped,omitempty"`
	Manifest *Manifest `json:"-"`
}

// openArchiveReader opens a tar file. The caller closes the returned file.
//
//nolint:gosec // G304: tarPath is produced by the restore pipeline
func openArchiveReader(tarPath string) (*tar.Reader, *os.File, error) {
	file, err := os.Open(tarPath)
	if err != nil {
		return nil, nil, errs.E(errs.InputUnreadable, "open archive", tarPath, err)
	}
	return tar.NewReader(file), file, nil
}

// Extract unpacks tarPath into targetDir.
func Extract(ctx context.Context, tarPath, targetDir string, opts ExtractOptions) (*ExtractResult, error) {
	tr, file, err := openArchiveReader(tarPath)
	if err != nil {
		return nil, err
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	targetDir = filepath.Clean(targetDir)
	if err := os.MkdirAll(targetDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create target directory: %w", err)
	}

	x := &extractor{
		target:   targetDir,
		opts:     opts,
		result:   &ExtractResult{},
		sums:     make(map[string]string),
		symlinks: make(map[string]bool),
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry: %w", err)
		}

		if err := x.entry(tr, header); err != nil {
			return nil, err
		}
	}

	if opts.Verify {
		if err := verifySums(x.result.Manifest, x.sums); err != nil {
			return nil, err
		}
		x.result.Verified = true
	}

	return x.result, nil
}

// Verify reads the whole archive and checks it against its manifest without
// writing anything.
func Verify(ctx context.Context, tarPath string) (*Manifest, error) {
	tr, file, err := openArchiveReader(tarPath)
	if err != nil {
		return nil, err
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	var manifest *Manifest
	sums := make(map[string]string)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry: %w", err)
		}

		switch {
		case header.Name == ManifestName:
			if manifest, err = readManifest(tr, header); err != nil {
				return nil, err
			}
		case header.Typeflag == tar.TypeReg:
			h := sha256.New()
			if _, err := io.Copy(h, tr); err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", header.Name, err)
			}
			sums[header.Name] = hex.EncodeToString(h.Sum(nil))
		}
	}

	if err := verifySums(manifest, sums); err != nil {
		return nil, err
	}
	return manifest, nil
}

type extractor struct {
	target   string
	opts     ExtractOptions
	result   *ExtractResult
	total    int64
	sums     map[string]string
	symlinks map[string]bool
}

func (x *extractor) entry(tr *tar.Reader, header *tar.Header) error {
	if header.Name == ManifestName {
		m, err := readManifest(tr, header)
		if err != nil {
			return err
		}
		x.result.Manifest = m
		return nil
	}

	rel, err := x.relPath(header.Name)
	if err != nil {
		return err
	}
	if rel == "" {
		// The stripped root directory itself.
		return nil
	}
	dest, err := validateAndBuildDestPath(x.target, rel)
	if err != nil {
		return err
	}
	if err := x.checkNoSymlinkParent(rel); err != nil {
		return err
	}

	switch header.Typeflag {
	case tar.TypeDir:
		if err := os.MkdirAll(dest, dirMode(header)); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", rel, err)
		}
		x.result.Dirs++
	case tar.TypeReg:
		return x.file(tr, header, rel, dest)
	case tar.TypeSymlink:
		return x.symlink(header, rel, dest)
	default:
		x.result.Skipped = append(x.result.Skipped, Skipped{Path: header.Name, Reason: fmt.Sprintf("unsupported entry type %q", header.Typeflag)})
	}
	return nil
}

// relPath cleans an entry name and applies StripRoot.
func (x *extractor) relPath(name string) (string, error) {
	clean := path.Clean("/" + name)[1:]
	if clean == "" || name != clean && name != clean+"/" {
		// Names with "..", "//" or a leading "/" are never produced by Create.
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	if !x.opts.StripRoot {
		return clean, nil
	}
	if i := strings.IndexByte(clean, '/'); i >= 0 {
		return clean[i+1:], nil
	}
	return "", nil
}

// validateAndBuildDestPath validates and builds the destination path for extraction
func validateAndBuildDestPath(targetDir, name string) (string, error) {
	destPath := filepath.Join(targetDir, filepath.FromSlash(name))

	// Validate path to prevent directory traversal (G305)
	if !strings.HasPrefix(destPath, targetDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	return destPath, nil
}

// checkNoSymlinkParent refuses to write through a symlink this extraction created.
func (x *extractor) checkNoSymlinkParent(rel string) error {
	for dir := path.Dir(rel); dir != "." && dir != "/"; dir = path.Dir(dir) {
		if x.symlinks[dir] {
			return fmt.Errorf("%w: %s is below symlink %s", ErrUnsafePath, rel, dir)
		}
	}
	return nil
}

//nolint:gosec // G110: size is bounded, G304: dest is validated
func (x *extractor) file(tr *tar.Reader, header *tar.Header, rel, dest string) (err error) {
	if x.opts.MaxFileSize > 0 && header.Size > x.opts.MaxFileSize {
		return fmt.Errorf("%w: %s is %d bytes (max %d)", ErrTooLarge, rel, header.Size, x.opts.MaxFileSize)
	}
	x.total += header.Size
	if x.opts.MaxTotalSize > 0 && x.total > x.opts.MaxTotalSize {
		return fmt.Errorf("%w: total exceeds %d bytes", ErrTooLarge, x.opts.MaxTotalSize)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if x.opts.Overwrite {
		os.Remove(dest) //nolint:errcheck // replaced below; a missing file is fine
	}
	out, err := os.OpenFile(dest, flags, fileMode(header))
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, rel)
		}
		return fmt.Errorf("failed to create %s: %w", rel, err)
	}

	var h hash.Hash
	var w io.Writer = out
	if x.opts.Verify {
		h = sha256.New()
		w = io.MultiWriter(out, h)
	}

	// Use LimitReader to prevent decompression bomb attacks
	_, copyErr := io.Copy(w, io.LimitReader(tr, header.Size))
	closeErr := out.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(dest) //nolint:errcheck // Best effort cleanup on error
		return fmt.Errorf("failed to extract %s: %w", rel, errors.Join(copyErr, closeErr))
	}

	os.Chtimes(dest, header.ModTime, header.ModTime) //nolint:errcheck // timestamps are best effort

	if h != nil {
		x.sums[header.Name] = hex.EncodeToString(h.Sum(nil))
	}
	x.result.Files++
	x.result.Bytes += header.Size
	return nil
}

// symlink creates a link whose target, resolved from the link's directory,
// stays inside the target directory. Others are skipped and reported.
func (x *extractor) symlink(header *tar.Header, rel, dest string) error {
	link := header.Linkname
	resolved := path.Join(path.Dir(rel), link)
	if path.IsAbs(link) || resolved == ".." || strings.HasPrefix(resolved, "../") {
		x.result.Skipped = append(x.result.Skipped, Skipped{Path: header.Name, Reason: "symlink target outside restore directory: " + link})
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if x.opts.Overwrite {
		os.Remove(dest) //nolint:errcheck // replaced below; a missing file is fine
	}
	if err := os.Symlink(link, dest); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrExists, rel)
		}
		return fmt.Errorf("failed to create symlink %s: %w", rel, err)
	}
	x.symlinks[rel] = true
	x.result.Symlinks++
	return nil
}

func readManifest(tr *tar.Reader, header *tar.Header) (*Manifest, error) {
	if header.Size > maxManifestSize {
		return nil, fmt.Errorf("%w: manifest is %d bytes", ErrTooLarge, header.Size)
	}
	data, err := io.ReadAll(io.LimitReader(tr, header.Size))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// verifySums compares computed checksums, keyed by tar entry name, with the manifest.
func verifySums(m *Manifest, sums map[string]string) error {
	if m == nil {
		return ErrNoManifest
	}
	want := m.checksums()
	for name, sum := range sums {
		expected, ok := want[name]
		if !ok {
			return fmt.Errorf("%w: %s is not in the manifest", ErrChecksumMismatch, name)
		}
		if sum != expected {
			return fmt.Errorf("%w: %s", ErrChecksumMismatch, name)
		}
		delete(want, name)
	}
	for name := range want {
		return fmt.Errorf("%w: %s listed in the manifest but missing", ErrChecksumMismatch, name)
	}
	return nil
}

func fileMode(h *tar.Header) os.FileMode {
	if perm := os.FileMode(h.Mode).Perm(); perm != 0 {
		return perm
	}
	return 0o600
}

func dirMode(h *tar.Header) os.FileMode {
	if perm := os.FileMode(h.Mode).Perm(); perm != 0 {
		return perm | 0o700
	}
	return 0o750
}
