// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package main

import (
	"fmt"
	"io"
	"path"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/xbackup/internal/artifact"
	"github.com/tomtom215/xbackup/internal/retention"
	"github.com/tomtom215/xbackup/internal/storage"
)

func newRotateCmd(opts *globalOptions) *cobra.Command {
	var dryRun bool
	var keep int

	cmd := &cobra.Command{
		Use:   "rotate",
		Short: "Delete all but the newest artifacts of each user",
		Long: `Group the artifacts under storage.prefix by owner and delete everything but
the newest retention.keep_latest of each. Files whose names carry no owner are
never deleted. --dry-run shows the decision for every file without deleting.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			if keep > 0 {
				cfg.Retention.KeepLatest = keep
			}

			ctx, cancel := signalContext(cmd)
			defer cancel()

			store, err := storage.New(ctx, cfg.Storage, log)
			if err != nil {
				return err
			}
			engine := retention.NewEngine(store, retention.Policy{KeepLatest: cfg.Retention.KeepLatest}, log)
			prefix := storage.ListPrefix(cfg.Storage.Prefix)
			out := cmd.OutOrStdout()

			if dryRun {
				preview, err := engine.Preview(ctx, prefix)
				if err != nil {
					return err
				}
				if opts.jsonOut {
					return printJSON(out, preview)
				}
				printPreview(out, preview)
				return nil
			}

			res, err := engine.Rotate(ctx, prefix, false)
			if err != nil {
				return err
			}
			if opts.jsonOut {
				if err := printJSON(out, res); err != nil {
					return err
				}
			} else {
				for _, r := range res.Deleted {
					fmt.Fprintf(out, "deleted %s\n", r.Path) //nolint:errcheck
				}
				for _, f := range res.Failed {
					fmt.Fprintf(out, "failed  %s: %s\n", f.Record.Path, f.Error) //nolint:errcheck
				}
				fmt.Fprintf(out, "%d deleted, %d kept, %d failed, %d skipped\n", //nolint:errcheck
					len(res.Deleted), res.Kept, len(res.Failed), len(res.Skipped))
			}
			if len(res.Failed) > 0 {
				return fmt.Errorf("%d deletions failed", len(res.Failed))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "show what would be deleted without deleting")
	cmd.Flags().IntVar(&keep, "keep", 0, "override retention.keep_latest")
	return cmd
}

func printPreview(w io.Writer, p *retention.Preview) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTION\tOWNER\tMODIFIED\tSIZE\tPATH\tREASON") //nolint:errcheck
	write := func(action string, items []*retention.PreviewItem) {
		for _, it := range items {
			reason := ""
			if len(it.Reasons) > 0 {
				reason = it.Reasons[0]
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", //nolint:errcheck
				action, it.Owner, it.ModTime.Format(time.RFC3339), it.Size, it.Path, reason)
		}
	}
	write("delete", p.WouldDelete)
	write("keep", p.WouldKeep)
	write("ignore", p.Ignored)
	tw.Flush() //nolint:errcheck,gosec
	fmt.Fprintf(w, "would delete %d (%d bytes), keep %d\n", p.DeletedCount, p.TotalDeletedSize, p.KeptCount) //nolint:errcheck
}

func newListCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored artifacts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := opts.load()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd)
			defer cancel()

			store, err := storage.New(ctx, cfg.Storage, log)
			if err != nil {
				return err
			}
			records, err := store.List(ctx, storage.ListPrefix(cfg.Storage.Prefix))
			if err != nil {
				return err
			}

			items := listItems(records)
			out := cmd.OutOrStdout()
			if opts.jsonOut {
				return printJSON(out, items)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "OWNER\tMODIFIED\tSIZE\tCOMPRESSION\tENCRYPTION\tKEY") //nolint:errcheck
			for _, it := range items {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\n", //nolint:errcheck
					it.Owner, it.ModTime.Format(time.RFC3339), it.Size, it.Compression, it.Encryption, it.Key)
			}
			return tw.Flush()
		},
	}
}

type listItem struct {
	Key         string    `json:"key"`
	Owner       string    `json:"owner,omitempty"`
	ModTime     time.Time `json:"mod_time"`
	Size        int64     `json:"size"`
	Compression string    `json:"compression,omitempty"`
	Encryption  string    `json:"encryption,omitempty"`
}

// listItems describes the file records, sorted by owner then newest first.
func listItems(records []retention.Record) []listItem {
	groups := retention.Group(records)
	var items []listItem
	add := func(owner string, r retention.Record) {
		it := listItem{Key: r.Path, Owner: owner, ModTime: r.ModTime, Size: r.Size}
		if name := artifact.Decode(path.Base(r.Path)); name.HasMarker {
			it.Compression = string(name.Compression)
			it.Encryption = string(name.Encryption)
		}
		items = append(items, it)
	}
	for _, owner := range groups.Owners() {
		recs := groups.ByOwner[owner]
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].ModTime.After(recs[j].ModTime) })
		for _, r := range recs {
			add(owner, r)
		}
	}
	for _, r := range groups.Skipped {
		add("", r)
	}
	return items
}
