// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

package bandwidth

import (
	"context"
	"io"

	"golang.org/x/time/rate"
)

// minBurst keeps tiny limits from degrading into byte-sized reads.
const minBurst = 4 << 10

// Limiter is a byte-rate token bucket shared by every reader it wraps.
type Limiter struct {
	lim   *rate.Limiter
	burst int
}

// NewLimiter returns a limiter for bytesPerSecond, or nil when the value is
// zero or negative (unlimited).
func NewLimiter(bytesPerSecond int64) *Limiter {
	if bytesPerSecond <= 0 {
		return nil
	}
	burst := minBurst
	if bytesPerSecond > int64(burst) {
		burst = int(min(bytesPerSecond, int64(64<<20)))
	}
	return &Limiter{
		lim:   rate.NewLimiter(rate.Limit(bytesPerSecond), burst),
		burst: burst,
	}
}

// BytesPerSecond reports the configured rate; zero means unlimited.
func (l *Limiter) BytesPerSecond() int64 {
	if l == nil {
		return 0
	}
	return int64(l.lim.Limit())
}

// Reader wraps r so reads wait for tokens. Waiting stops when ctx is done.
func (l *Limiter) Reader(ctx context.Context, r io.Reader) io.Reader {
	if l == nil {
		return r
	}
	return &reader{ctx: ctx, r: r, l: l}
}

type reader struct {
	ctx context.Context
	r   io.Reader
	l   *Limiter
}

func (t *reader) Read(p []byte) (int, error) {
	if len(p) > t.l.burst {
		p = p[:t.l.burst]
	}
	n, err := t.r.Read(p)
	if n > 0 {
		if werr := t.l.lim.WaitN(t.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}
