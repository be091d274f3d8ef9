// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package artifact

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the timestamp embedded in base archive names.
// It starts with a YYYY-MM-DD date so retention can attribute the file to its owner.
const TimestampLayout = "2006-01-02_150405"

// BaseName builds "<owner>.<timestamp>.<ext>" for a freshly created archive.
func BaseName(owner string, at time.Time, ext string) string {
	return owner + "." + at.UTC().Format(TimestampLayout) + "." + strings.TrimPrefix(ext, ".")
}

// Base is a parsed "<owner>.<timestamp>.<ext>" archive name.
type Base struct {
	Owner     string
	Timestamp time.Time
	Ext       string
}

// ParseBaseName parses the original name of an artifact. Owners may contain dots;
// the timestamp is located as the first dot-separated token that parses.
func ParseBaseName(original string) (Base, error) {
	parts := strings.Split(original, ".")
	for i := 1; i < len(parts); i++ {
		ts, err := time.Parse(TimestampLayout, parts[i])
		if err != nil {
			continue
		}
		return Base{
			Owner:     strings.Join(parts[:i], "."),
			Timestamp: ts,
			Ext:       strings.Join(parts[i+1:], "."),
		}, nil
	}
	return Base{}, fmt.Errorf("no %s timestamp in %q", TimestampLayout, original)
}
