// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package main

import (
	"fmt"
	"path"

	"github.com/spf13/cobra"

	"github.com/tomtom215/xbackup/internal/artifact"
	"github.com/tomtom215/xbackup/internal/backup"
	"github.com/tomtom215/xbackup/internal/config"
	"github.com/tomtom215/xbackup/internal/preflight"
)

func newRestoreCmd(opts *globalOptions) *cobra.Command {
	var ro backup.RestoreOptions

	cmd := &cobra.Command{
		Use:   "restore <key> <target>",
		Short: "Download an artifact and undo its compression and encryption",
		Long: `Download the artifact stored under <key>, decrypt and decompress it according
to the methods recorded in its name, and write the plain tar archive to <target>.
With --extract the archive is unpacked into the <target> directory instead.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, target := args[0], args[1]
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}

			name := artifact.Decode(path.Base(key))
			if name.Encryption != artifact.None {
				if err := opts.ensurePassphrase(cmd, cfg, false); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			// The configured methods only matter for new backups; restore reads
			// them from the key, so check the tools the key needs.
			reg := backup.NewRegistry(cfg, log)
			if !cfg.Preflight.SkipToolCheck {
				report := (&preflight.Checker{}).Run(ctx, preflight.Options{
					WorkDir:  cfg.WorkDir,
					Binaries: reg.RequiredBinaries(name.Compression, name.Encryption),
				})
				if err := report.Err(); err != nil {
					return err
				}
			}

			runner, err := backup.NewRunner(ctx, restoreConfig(cfg), backup.Deps{}, log)
			if err != nil {
				return err
			}
			res, err := runner.Restore(ctx, key, target, ro)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, res)
			}
			if res.Extracted != nil {
				fmt.Fprintf(out, "extracted %d files, %d dirs, %d symlinks (%d bytes) into %s\n", //nolint:errcheck
					res.Extracted.Files, res.Extracted.Dirs, res.Extracted.Symlinks, res.Extracted.Bytes, res.Target)
				for _, s := range res.Extracted.Skipped {
					fmt.Fprintf(out, "skipped %s: %s\n", s.Path, s.Reason) //nolint:errcheck
				}
				return nil
			}
			fmt.Fprintf(out, "restored %s\n", res.ArchivePath) //nolint:errcheck
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVarP(&ro.Extract, "extract", "x", false, "unpack the archive into the target directory")
	f.BoolVar(&ro.Archive.Verify, "verify", true, "check extracted files against the manifest checksums")
	f.BoolVar(&ro.Archive.StripRoot, "strip-root", false, "drop the leading user directory when extracting")
	f.BoolVar(&ro.Archive.Overwrite, "overwrite", false, "replace existing files")
	f.Int64Var(&ro.Archive.MaxFileSize, "max-file-size", 0, "largest file to extract in bytes (0 = unlimited)")
	f.Int64Var(&ro.Archive.MaxTotalSize, "max-total-size", 0, "largest total extraction in bytes (0 = unlimited)")
	return cmd
}

// restoreConfig lets restore build a runner without an encryption secret when
// the artifact does not need one.
func restoreConfig(cfg *config.Config) *config.Config {
	c := *cfg
	if c.Encryption.Passphrase == "" {
		c.Encryption.Method = string(artifact.None)
	}
	return &c
}
