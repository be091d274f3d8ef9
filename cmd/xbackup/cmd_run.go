// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/tomtom215/xbackup/internal/backup"
)

func newRunCmd(opts *globalOptions) *cobra.Command {
	var noRotate bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Back up every user, then rotate old artifacts",
		Long: `Archive, compress, encrypt and upload every user directory under source.root,
then rotate the storage prefix. A failed user is reported and the run continues
with the next one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if noRotate {
				cfg.Retention.Enabled = false
			}
			if cfg.NeedsPassphrase() {
				if err := opts.ensurePassphrase(cmd, cfg, false); err != nil {
					return err
				}
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			runner, err := backup.NewRunner(ctx, cfg, backup.Deps{}, log)
			if err != nil {
				return err
			}
			report, runErr := runner.Run(ctx)

			out := cmd.OutOrStdout()
			if opts.jsonOut {
				if err := report.WriteJSON(out); err != nil {
					return err
				}
			} else {
				printRunSummary(out, report)
			}

			switch {
			case runErr != nil:
				return &exitError{code: 2, err: runErr}
			case !report.OK():
				return &exitError{code: 1, err: runFailure(report)}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&noRotate, "no-rotate", false, "skip rotation after the backups")
	return cmd
}

func printRunSummary(w io.Writer, report *backup.RunReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "USER\tSTATUS\tSIZE\tKEY / ERROR") //nolint:errcheck
	for _, u := range report.Users {
		detail := u.Key
		if u.Status != backup.StatusSucceeded {
			detail = fmt.Sprintf("%s: %s", u.Stage, u.Error)
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", u.User, u.Status, u.Size, detail) //nolint:errcheck
	}
	tw.Flush() //nolint:errcheck,gosec

	for _, name := range report.MissingUsers {
		fmt.Fprintf(w, "missing: %s has no directory\n", name) //nolint:errcheck
	}
	if report.Rotation != nil {
		fmt.Fprintf(w, "rotation: %d deleted, %d kept, %d failed, %d skipped\n", //nolint:errcheck
			len(report.Rotation.Deleted), report.Rotation.Kept, len(report.Rotation.Failed), len(report.Rotation.Skipped))
	}
	if report.RotationError != "" {
		fmt.Fprintf(w, "rotation failed: %s\n", report.RotationError) //nolint:errcheck
	}
	fmt.Fprintf(w, "%d succeeded, %d failed in %dms (run %s)\n", //nolint:errcheck
		report.Succeeded, report.Failed, report.DurationMS, report.RunID)
}

func runFailure(report *backup.RunReport) error {
	switch {
	case report.Failed > 0:
		return fmt.Errorf("%d of %d users failed", report.Failed, len(report.Users))
	case report.RotationError != "":
		return fmt.Errorf("rotation failed: %s", report.RotationError)
	default:
		return fmt.Errorf("%d rotation deletions failed", len(report.Rotation.Failed))
	}
}
