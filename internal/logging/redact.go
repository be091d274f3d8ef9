// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package logging

import "strings"

// Redacted replaces secret values in log output.
const Redacted = "[REDACTED]"

// RedactArgs returns a copy of an argument vector with every occurrence of
// secret masked, including arguments that merely contain it (such as "-p<pw>").
func RedactArgs(args []string, secret string) []string {
	out := make([]string, len(args))
	for i, arg := range args {
		if secret != "" && strings.Contains(arg, secret) {
			out[i] = strings.ReplaceAll(arg, secret, Redacted)
			continue
		}
		out[i] = arg
	}
	return out
}

// TruncateString shortens s to at most maxLen bytes, marking the cut with "...".
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
