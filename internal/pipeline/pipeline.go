// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/tomtom215/xbackup/internal/artifact"
	"github.com/tomtom215/xbackup/internal/logging"
)

// ErrPassphraseRequired is returned when an encryption method has no passphrase.
var ErrPassphraseRequired = errors.New("encryption requires a passphrase")

// Config selects the methods an Apply uses.
type Config struct {
	Compression artifact.Method
	Encryption  artifact.Method

	// Level is normalized per method; negative selects the tool default.
	Level int

	Passphrase string
}

// Pipeline applies and reverses artifact transformations.
type Pipeline struct {
	cfg Config
	reg *Registry
	log zerolog.Logger
}

// New validates cfg and creates a pipeline.
//
//nolint:gocritic // zerolog.Logger is designed to be passed by value
func New(cfg Config, reg *Registry, log zerolog.Logger) (*Pipeline, error) {
	if cfg.Compression == "" {
		cfg.Compression = artifact.None
	}
	if cfg.Encryption == "" {
		cfg.Encryption = artifact.None
	}
	if err := artifact.ValidatePair(cfg.Compression, cfg.Encryption); err != nil {
		return nil, err
	}
	if cfg.Encryption != artifact.None && cfg.Passphrase == "" {
		return nil, ErrPassphraseRequired
	}
	return &Pipeline{cfg: cfg, reg: reg, log: logging.WithComponent(log, "pipeline")}, nil
}

// Methods reports the configured compression and encryption.
func (p *Pipeline) Methods() (artifact.Method, artifact.Method) {
	return p.cfg.Compression, p.cfg.Encryption
}

// Apply compresses then encrypts plainPath into workDir and returns the artifact
// path and its decoded name. The result is named with artifact.Encode; with no
// methods configured the artifact is plainPath itself under the marked name.
// Intermediate files are removed; plainPath is never modified.
func (p *Pipeline) Apply(ctx context.Context, plainPath, workDir string) (string, artifact.Name, error) {
	c, e := p.cfg.Compression, p.cfg.Encryption
	base := filepath.Base(plainPath)
	name := artifact.Decode(artifact.Encode(base, c, e))
	final := filepath.Join(workDir, name.String())
	log := logging.Ctx(ctx, p.log)
	started := time.Now()

	if err := checkSource("apply", plainPath); err != nil {
		return "", name, err
	}

	if artifact.IsOneStep(c) && c == e {
		tool, err := p.reg.Combined(c)
		if err != nil {
			return "", name, err
		}
		if err := tool.CompressEncrypt(ctx, plainPath, final, p.cfg.Level, p.cfg.Passphrase); err != nil {
			return "", name, err
		}
		p.logApplied(log, name, final, started)
		return final, name, nil
	}

	current := plainPath
	if c != artifact.None {
		comp, err := p.reg.Compressor(c)
		if err != nil {
			return "", name, err
		}
		out := filepath.Join(workDir, artifact.Encode(base, c, artifact.None))
		if e == artifact.None {
			out = final
		}
		if err := comp.Compress(ctx, current, out, p.cfg.Level); err != nil {
			return "", name, err
		}
		current = out
	}

	if e != artifact.None {
		enc, err := p.reg.Encryptor(e)
		if err != nil {
			p.discard(current, plainPath)
			return "", name, err
		}
		err = enc.Encrypt(ctx, current, final, p.cfg.Passphrase)
		p.discard(current, plainPath)
		if err != nil {
			return "", name, err
		}
		current = final
	}

	if current == plainPath {
		// Nothing to transform: the artifact is a renamed copy of the archive.
		if err := linkOrCopy(plainPath, final); err != nil {
			return "", name, err
		}
	}

	p.logApplied(log, name, final, started)
	return final, name, nil
}

func (p *Pipeline) logApplied(log *zerolog.Logger, name artifact.Name, path string, started time.Time) {
	log.Debug().
		Str("artifact", filepath.Base(path)).
		Str("compression", string(name.Compression)).
		Str("encryption", string(name.Encryption)).
		Dur("duration", time.Since(started)).
		Msg("Artifact built")
}

// discard removes an intermediate file unless it is the caller's input.
func (p *Pipeline) discard(path, keep string) {
	if path != keep {
		removeQuiet(path)
	}
}

// Reverse restores the plain archive from artifactPath into workDir, reading the
// methods from the artifact name. Names without the marker are returned as-is.
func (p *Pipeline) Reverse(ctx context.Context, artifactPath, workDir string) (string, artifact.Name, error) {
	name := artifact.Decode(filepath.Base(artifactPath))
	if !name.HasMarker {
		if err := checkSource("reverse", artifactPath); err != nil {
			return "", name, err
		}
		return artifactPath, name, nil
	}

	plain := filepath.Join(workDir, name.Original)
	if plain == artifactPath {
		return "", name, fmt.Errorf("reverse: output would overwrite %s", artifactPath)
	}
	if err := checkSource("reverse", artifactPath); err != nil {
		return "", name, err
	}

	if name.IsCombined() {
		tool, err := p.reg.Combined(name.Compression)
		if err != nil {
			return "", name, err
		}
		if err := tool.DecompressDecrypt(ctx, artifactPath, plain, p.cfg.Passphrase); err != nil {
			return "", name, err
		}
		return plain, name, nil
	}

	current := artifactPath
	if name.Encryption != artifact.None {
		if p.cfg.Passphrase == "" {
			return "", name, ErrPassphraseRequired
		}
		enc, err := p.reg.Encryptor(name.Encryption)
		if err != nil {
			return "", name, err
		}
		out := plain
		if name.Compression != artifact.None {
			out = filepath.Join(workDir, artifact.Encode(name.Original, name.Compression, artifact.None))
		}
		if err := enc.Decrypt(ctx, current, out, p.cfg.Passphrase); err != nil {
			return "", name, err
		}
		current = out
	}

	if name.Compression != artifact.None {
		comp, err := p.reg.Compressor(name.Compression)
		if err != nil {
			p.discard(current, artifactPath)
			return "", name, err
		}
		err = comp.Decompress(ctx, current, plain)
		p.discard(current, artifactPath)
		if err != nil {
			return "", name, err
		}
		current = plain
	}

	if current == artifactPath {
		if err := linkOrCopy(artifactPath, plain); err != nil {
			return "", name, err
		}
	}
	return plain, name, nil
}
