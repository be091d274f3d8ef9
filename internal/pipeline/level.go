// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package pipeline

import "github.com/tomtom215/xbackup/internal/artifact"

// LevelRange is the accepted compression level range of a tool.
type LevelRange struct {
	Default int
	Min     int
	Max     int
}

var levelRanges = map[artifact.Method]LevelRange{
	artifact.Gzip:     {Default: 1, Min: 1, Max: 9},
	artifact.Bzip2:    {Default: 1, Min: 1, Max: 9},
	artifact.Xz:       {Default: 6, Min: 0, Max: 9},
	artifact.Zip:      {Default: 6, Min: 0, Max: 9},
	artifact.SevenZip: {Default: 5, Min: 1, Max: 9},
	artifact.Zstd:     {Default: 19, Min: 1, Max: 22},
}

// NormalizeLevel maps a requested level into the method's range. A negative
// level selects the default; anything else is clamped.
func NormalizeLevel(m artifact.Method, level int) int {
	r, ok := levelRanges[m]
	if !ok {
		return 0
	}
	switch {
	case level < 0:
		return r.Default
	case level < r.Min:
		return r.Min
	case level > r.Max:
		return r.Max
	default:
		return level
	}
}
