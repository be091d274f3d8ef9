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
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/xbackup/internal/errs"
)

// archiveWriters holds the writers needed for creating an archive.
type archiveWriters struct {
	file      *os.File
	tarWriter *tar.Writer
}

// Close flushes the tar stream and syncs the file, returning the first error encountered.
func (aw *archiveWriters) Close() error {
	firstErr := aw.tarWriter.Close()
	if err := aw.file.Sync(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := aw.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Create writes a tar of srcDir to dstPath. Entry names are relative to the
// parent of srcDir, so every entry sits under the directory's own name. The
// destination must not exist and is removed again when Create fails.
func Create(ctx context.Context, srcDir, dstPath string) (m *Manifest, err error) {
	srcDir = filepath.Clean(srcDir)
	info, err := os.Stat(srcDir)
	if err != nil {
		return nil, errs.E(errs.InputUnreadable, "archive", srcDir, err)
	}
	if !info.IsDir() {
		return nil, errs.E(errs.InputUnreadable, "archive", srcDir, errors.New("not a directory"))
	}

	//nolint:gosec // G304: dstPath is built by the caller inside its work dir
	out, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create archive file: %w", err)
	}
	aw := &archiveWriters{file: out, tarWriter: tar.NewWriter(out)}
	defer func() {
		closeErr := aw.Close()
		if err == nil && closeErr != nil {
			err = fmt.Errorf("failed to finalize archive: %w", closeErr)
		}
		if err != nil {
			m = nil
			os.Remove(dstPath) //nolint:errcheck // Best effort cleanup on error
		}
	}()

	m = &Manifest{
		Version:   ManifestVersion,
		Root:      filepath.Base(srcDir),
		Source:    srcDir,
		CreatedAt: time.Now().UTC(),
	}

	parent := filepath.Dir(srcDir)
	walkErr := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(parent, path)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(rel)

		if walkErr != nil {
			if path == srcDir {
				return walkErr
			}
			m.skip(name, walkErr.Error())
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		return addEntry(aw.tarWriter, m, path, name, d)
	})
	if walkErr != nil {
		if errors.Is(walkErr, fs.ErrPermission) || errors.Is(walkErr, fs.ErrNotExist) {
			return nil, errs.E(errs.InputUnreadable, "archive", srcDir, walkErr)
		}
		return nil, fmt.Errorf("failed to archive %s: %w", srcDir, walkErr)
	}

	if err := addManifest(aw.tarWriter, m); err != nil {
		return nil, err
	}

	return m, nil
}

// addEntry archives one path. Unreadable entries are skipped, not fatal;
// a write error on the archive is.
func addEntry(tw *tar.Writer, m *Manifest, path, name string, d fs.DirEntry) error {
	info, err := d.Info()
	if err != nil {
		m.skip(name, err.Error())
		return nil
	}

	mode := info.Mode()
	switch {
	case mode.IsDir():
		return addDir(tw, m, info, name)
	case mode&fs.ModeSymlink != 0:
		return addSymlink(tw, m, info, path, name)
	case mode.IsRegular():
		return addFile(tw, m, info, path, name)
	default:
		m.skip(name, "unsupported file type "+mode.Type().String())
		return nil
	}
}

func addDir(tw *tar.Writer, m *Manifest, info fs.FileInfo, name string) error {
	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", name, err)
	}
	header.Name = name + "/"
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	m.add(Entry{Path: name, Type: TypeDir, Mode: uint32(info.Mode().Perm()), ModTime: info.ModTime().UTC()})
	return nil
}

func addSymlink(tw *tar.Writer, m *Manifest, info fs.FileInfo, path, name string) error {
	target, err := os.Readlink(path)
	if err != nil {
		m.skip(name, err.Error())
		return nil
	}
	header, err := tar.FileInfoHeader(info, target)
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", name, err)
	}
	header.Name = name
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}
	m.add(Entry{Path: name, Type: TypeSymlink, Mode: uint32(info.Mode().Perm()), ModTime: info.ModTime().UTC(), Link: target})
	return nil
}

// addFile adds a regular file to the tar archive. The header size is taken
// from the stat; a file that shrinks while being read is padded with zeros
// and noted in the manifest, a file that grows is cut at the stat size.
//
//nolint:gosec // G304: path comes from walking the user directory
func addFile(tw *tar.Writer, m *Manifest, info fs.FileInfo, path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		m.skip(name, err.Error())
		return nil
	}
	defer file.Close() //nolint:errcheck // Best effort cleanup

	header, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header for %s: %w", name, err)
	}
	header.Name = name

	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header for %s: %w", name, err)
	}

	// Calculate checksum while copying
	hasher := sha256.New()
	src := &countingReader{r: file}
	if _, err := io.CopyN(io.MultiWriter(tw, hasher), io.MultiReader(src, zeroReader{}), info.Size()); err != nil {
		return fmt.Errorf("failed to copy %s to archive: %w", name, err)
	}
	if src.err != nil && !errors.Is(src.err, io.EOF) {
		// Read error mid-file: the entry is already padded, keep going but say so.
		m.skip(name, fmt.Sprintf("read error after %d bytes: %v", src.n, src.err))
	} else if src.n < info.Size() {
		m.skip(name, "file shrank while archiving; padded with zeros")
	}

	m.add(Entry{
		Path:    name,
		Type:    TypeFile,
		Size:    info.Size(),
		Mode:    uint32(info.Mode().Perm()),
		ModTime: info.ModTime().UTC(),
		SHA256:  hex.EncodeToString(hasher.Sum(nil)),
	})
	return nil
}

// addManifest writes the manifest as the final entry.
func addManifest(tw *tar.Writer, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	header := &tar.Header{
		Name:     ManifestName,
		Typeflag: tar.TypeReg,
		Size:     int64(len(data)),
		Mode:     0o600,
		ModTime:  m.CreatedAt,
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write manifest header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// countingReader counts bytes and remembers the first error, which it then
// reports as EOF so a MultiReader moves on to the padding.
type countingReader struct {
	r   io.Reader
	n   int64
	err error
}

func (c *countingReader) Read(p []byte) (int, error) {
	if c.err != nil {
		return 0, io.EOF
	}
	n, err := c.r.Read(p)
	c.n += int64(n)
	if err != nil {
		c.err = err
		return n, io.EOF
	}
	return n, nil
}

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}
