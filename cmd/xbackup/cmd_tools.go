// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tomtom215/xbackup/internal/archive"
	"github.com/tomtom215/xbackup/internal/artifact"
	"github.com/tomtom215/xbackup/internal/backup"
	"github.com/tomtom215/xbackup/internal/preflight"
	"github.com/tomtom215/xbackup/internal/streamcipher"
)

func newPreflightCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check tools, free space, source root and passphrase",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			compression, encryption, err := cfg.Methods()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			report := preflight.Run(ctx, preflight.Options{
				WorkDir:         cfg.WorkDir,
				SourceRoot:      cfg.Source.Root,
				MinFreeBytes:    cfg.Preflight.MinFreeBytes,
				Binaries:        backup.NewRegistry(cfg, log).RequiredBinaries(compression, encryption),
				NeedsPassphrase: cfg.NeedsPassphrase(),
				HasPassphrase:   cfg.Encryption.Passphrase != "",
			})

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				if err := printJSON(out, report); err != nil {
					return err
				}
			} else {
				for _, r := range report.Results {
					status := "ok"
					if !r.OK {
						status = "FAIL"
					}
					fmt.Fprintf(out, "%-4s  %s  %s\n", status, r.Name, r.Detail) //nolint:errcheck
				}
			}
			return report.Err()
		},
	}
}

func newEncryptCmd(opts *globalOptions) *cobra.Command {
	var format string
	var chunkSize int

	cmd := &cobra.Command{
		Use:   "encrypt <src> <dst>",
		Short: "Encrypt a file with the aes stream cipher",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if err := opts.ensurePassphrase(cmd, cfg, true); err != nil {
				return err
			}
			if format == "" {
				format = cfg.Encryption.Format
			}
			if chunkSize == 0 {
				chunkSize = cfg.Encryption.ChunkSize
			}
			return streamcipher.EncryptFile(args[0], args[1], cfg.Encryption.Passphrase, streamcipher.Options{
				Format:    streamcipher.Format(format),
				ChunkSize: chunkSize,
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "stream layout: legacy or aead (default encryption.format)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "plaintext chunk size in bytes (default encryption.chunk_size)")
	return cmd
}

func newDecryptCmd(opts *globalOptions) *cobra.Command {
	var chunkSize int

	cmd := &cobra.Command{
		Use:   "decrypt <src> <dst>",
		Short: "Decrypt a file written by encrypt or an aes backup",
		Long:  `Decrypt a file written by the aes stream cipher. The layout is detected from the file.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			if err := opts.ensurePassphrase(cmd, cfg, false); err != nil {
				return err
			}
			if chunkSize == 0 {
				chunkSize = cfg.Encryption.ChunkSize
			}
			return streamcipher.DecryptFile(args[0], args[1], cfg.Encryption.Passphrase, chunkSize)
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "legacy ciphertext chunk size in bytes (default encryption.chunk_size)")
	return cmd
}

func newNameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "name",
		Short: "Encode or decode artifact names",
	}

	var compression, encryption string
	encode := &cobra.Command{
		Use:   "encode <original>",
		Short: "Print the artifact name for a file and its methods",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := artifact.ParseMethod(compression)
			if err != nil {
				return err
			}
			e, err := artifact.ParseMethod(encryption)
			if err != nil {
				return err
			}
			if err := artifact.ValidatePair(c, e); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), artifact.Encode(args[0], c, e)) //nolint:errcheck
			return nil
		},
	}
	encode.Flags().StringVar(&compression, "compression", "none", "compression method: "+methodList(artifact.CompressionMethods))
	encode.Flags().StringVar(&encryption, "encryption", "none", "encryption method: "+methodList(artifact.EncryptionMethods))

	decode := &cobra.Command{
		Use:   "decode <name>",
		Short: "Print the original name and methods recorded in an artifact name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := artifact.Decode(args[0])
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "original:    %s\n", name.Original)    //nolint:errcheck
			fmt.Fprintf(out, "compression: %s\n", name.Compression) //nolint:errcheck
			fmt.Fprintf(out, "encryption:  %s\n", name.Encryption)  //nolint:errcheck
			if base, err := artifact.ParseBaseName(name.Original); err == nil {
				fmt.Fprintf(out, "owner:       %s\n", base.Owner)                                      //nolint:errcheck
				fmt.Fprintf(out, "timestamp:   %s\n", base.Timestamp.Format("2006-01-02 15:04:05 MST")) //nolint:errcheck
			}
			return nil
		},
	}

	cmd.AddCommand(encode, decode)
	return cmd
}

func methodList(methods []artifact.Method) string {
	names := make([]string, len(methods))
	for i, m := range methods {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func newVerifyCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <archive.tar>",
		Short: "Check a plain archive against its manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext(cmd)
			defer cancel()

			m, err := archive.Verify(ctx, args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, m)
			}
			fmt.Fprintf(out, "%s: %d files, %d dirs, %d symlinks, %d bytes, created %s\n", //nolint:errcheck
				m.Root, m.Files, m.Dirs, m.Symlinks, m.Bytes, m.CreatedAt.Format("2006-01-02 15:04:05"))
			for _, s := range m.Skipped {
				fmt.Fprintf(out, "skipped at backup time: %s (%s)\n", s.Path, s.Reason) //nolint:errcheck
			}
			return nil
		},
	}
}
