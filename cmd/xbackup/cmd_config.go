// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/xbackup/internal/config"
	"github.com/tomtom215/xbackup/internal/logging"
)

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), redactConfig(cfg))
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, _, err := opts.load(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid") //nolint:errcheck
			return nil
		},
	}

	cmd.AddCommand(show, validate)
	return cmd
}

// redactConfig returns a copy of cfg safe to print.
func redactConfig(cfg *config.Config) *config.Config {
	c := *cfg
	if c.Encryption.Passphrase != "" {
		c.Encryption.Passphrase = logging.Redacted
	}
	if c.Storage.S3.SecretAccessKey != "" {
		c.Storage.S3.SecretAccessKey = logging.Redacted
	}
	if len(c.Notify.Webhook.Headers) > 0 {
		headers := make(map[string]string, len(c.Notify.Webhook.Headers))
		for k := range c.Notify.Webhook.Headers {
			headers[k] = logging.Redacted
		}
		c.Notify.Webhook.Headers = headers
	}
	return &c
}
