// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tomtom215/xbackup/internal/config"
	"github.com/tomtom215/xbackup/internal/logging"
)

// globalOptions are the persistent flags shared by every command.
type globalOptions struct {
	configPath string
	logLevel   string
	logFormat  string
	jsonOut    bool

	// stdin is read for passphrase prompts; nil means os.Stdin.
	stdin *os.File
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "xbackup",
		Short: "Per-user backup artifact pipeline",
		Long: `xbackup archives each user directory, compresses and encrypts the archive,
uploads it to local or S3 storage and keeps only the newest artifacts per user.

Examples:
  xbackup run
  xbackup rotate --dry-run
  xbackup restore hosts/web1/alice.2026-03-01_020000.tar.xbk.zstd.aes ./alice --extract
  xbackup name decode alice.2026-03-01_020000.tar.xbk.zstd.aes`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&opts.configPath, "config", "c", "", "config file (default $XBACKUP_CONFIG, ./xbackup.yaml or /etc/xbackup/config.yaml)")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", "", "log format: json or console")
	pf.BoolVar(&opts.jsonOut, "json", false, "print results as JSON")

	root.AddCommand(
		newRunCmd(opts),
		newRotateCmd(opts),
		newListCmd(opts),
		newRestoreCmd(opts),
		newPreflightCmd(opts),
		newEncryptCmd(opts),
		newDecryptCmd(opts),
		newNameCmd(),
		newVerifyCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

// load reads the configuration and builds the logger, applying flag overrides.
func (o *globalOptions) load() (*config.Config, zerolog.Logger, error) {
	overrides := map[string]string{}
	if o.logLevel != "" {
		overrides["logging.level"] = o.logLevel
	}
	if o.logFormat != "" {
		overrides["logging.format"] = o.logFormat
	}

	cfg, err := config.Load(config.LoadOptions{Path: o.configPath, Overrides: overrides})
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.Logging), nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

var errNoTerminal = errors.New("no passphrase configured and stdin is not a terminal")

// ensurePassphrase prompts for the passphrase when none is configured and
// stdin is a terminal. With confirm set it is asked twice.
func (o *globalOptions) ensurePassphrase(cmd *cobra.Command, cfg *config.Config, confirm bool) error {
	if cfg.Encryption.Passphrase != "" {
		return nil
	}
	in := o.stdin
	if in == nil {
		in = os.Stdin
	}
	fd := int(in.Fd()) //nolint:gosec // G115: file descriptors fit in int
	if !term.IsTerminal(fd) {
		return errNoTerminal
	}

	pass, err := readPassword(cmd.ErrOrStderr(), fd, "Passphrase: ")
	if err != nil {
		return err
	}
	if pass == "" {
		return errors.New("empty passphrase")
	}
	if confirm {
		again, err := readPassword(cmd.ErrOrStderr(), fd, "Confirm passphrase: ")
		if err != nil {
			return err
		}
		if again != pass {
			return errors.New("passphrases do not match")
		}
	}
	cfg.Encryption.Passphrase = pass
	return nil
}

func readPassword(prompt io.Writer, fd int, label string) (string, error) {
	fmt.Fprint(prompt, label) //nolint:errcheck
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt) //nolint:errcheck
	if err != nil {
		return "", fmt.Errorf("read passphrase: %w", err)
	}
	return string(b), nil
}
