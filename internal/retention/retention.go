// XBackup - Per-User Backup Artifact Pipeline
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/xbackup

// Package retention rotates remote artifacts with a keep-latest-N policy.
//
// A rotation pass runs Listed -> Grouped -> Evaluated -> Retained | Deleted:
//
//  1. List every file under a prefix (directories are dropped).
//  2. Attribute each file to an owner with the pattern "<owner>.YYYY-MM-DD" at
//     the start of its basename. Files that do not match are skipped: they are
//     never retained and never deleted.
//  3. Per owner, sort newest first by modification time and keep the first
//     KeepLatest records.
//  4. Delete the rest one by one. A failed delete is logged and counted; the
//     pass moves on to the next record.
//
// Groups are recomputed from the listing on every pass, so an interrupted pass
// converges on the next run.
package retention

import (
	"path"
	"regexp"
	"sort"
	"time"

	"github.com/tomtom215/xbackup/internal/errs"
)

// DefaultKeepLatest is the number of artifacts kept per owner when unset.
const DefaultKeepLatest = 7

// ownerPattern extracts the owner token from an artifact basename.
var ownerPattern = regexp.MustCompile(`^(.+?)\.\d{4}-\d{2}-\d{2}`)

// Record is one entry of a remote listing.
type Record struct {
	Path    string    `json:"path"`
	ModTime time.Time `json:"mod_time"`
	Size    int64     `json:"size"`
	IsDir   bool      `json:"is_dir"`
}

// Policy configures a rotation.
type Policy struct {
	// KeepLatest is the number of newest artifacts kept per owner.
	KeepLatest int `koanf:"keep_latest" json:"keep_latest" validate:"min=1"`
}

// DefaultPolicy returns the default rotation policy.
func DefaultPolicy() Policy {
	return Policy{KeepLatest: DefaultKeepLatest}
}

// OwnerOf returns the owner encoded at the start of path's basename.
func OwnerOf(p string) (string, bool) {
	m := ownerPattern.FindStringSubmatch(path.Base(p))
	if m == nil {
		return "", false
	}
	return m[1], true
}

// ownerOrError classifies a basename that carries no owner as PatternMismatch.
func ownerOrError(p string) (string, error) {
	owner, ok := OwnerOf(p)
	if !ok {
		return "", errs.E(errs.PatternMismatch, "group", p, nil)
	}
	return owner, nil
}

// Groups maps each owner to its records, plus the files no owner claimed.
type Groups struct {
	ByOwner map[string][]Record
	Skipped []Record
}

// Owners returns the owners in sorted order.
func (g Groups) Owners() []string {
	owners := make([]string, 0, len(g.ByOwner))
	for owner := range g.ByOwner {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// Group drops directories and attributes the remaining records to owners.
func Group(records []Record) Groups {
	g := Groups{ByOwner: make(map[string][]Record)}
	for _, r := range records {
		if r.IsDir {
			continue
		}
		owner, err := ownerOrError(r.Path)
		if err != nil {
			g.Skipped = append(g.Skipped, r)
			continue
		}
		g.ByOwner[owner] = append(g.ByOwner[owner], r)
	}
	return g
}

// sortNewestFirst orders records by modification time descending, breaking
// ties by path so the result is deterministic.
func sortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if !records[i].ModTime.Equal(records[j].ModTime) {
			return records[i].ModTime.After(records[j].ModTime)
		}
		return records[i].Path < records[j].Path
	})
}

// OwnerPlan is the evaluation of one owner's group.
type OwnerPlan struct {
	Owner  string   `json:"owner"`
	Keep   []Record `json:"keep"`
	Delete []Record `json:"delete"`
}

// Plan is the evaluation of every group.
type Plan struct {
	Owners  []OwnerPlan `json:"owners"`
	Skipped []Record    `json:"skipped"`
}

// Deletions returns every record marked for deletion, in owner order.
func (p *Plan) Deletions() []Record {
	var out []Record
	for _, op := range p.Owners {
		out = append(out, op.Delete...)
	}
	return out
}

// KeptCount returns how many records the plan retains.
func (p *Plan) KeptCount() int {
	n := 0
	for _, op := range p.Owners {
		n += len(op.Keep)
	}
	return n
}

// planOwner keeps the newest keepLatest records of one group.
func planOwner(owner string, records []Record, keepLatest int) OwnerPlan {
	sorted := make([]Record, len(records))
	copy(sorted, records)
	sortNewestFirst(sorted)

	if keepLatest > len(sorted) {
		keepLatest = len(sorted)
	}
	return OwnerPlan{
		Owner:  owner,
		Keep:   sorted[:keepLatest],
		Delete: sorted[keepLatest:],
	}
}

// Evaluate applies policy to every group. A KeepLatest below 1 selects the default.
func Evaluate(g Groups, policy Policy) *Plan {
	keep := policy.KeepLatest
	if keep < 1 {
		keep = DefaultKeepLatest
	}

	plan := &Plan{Skipped: g.Skipped}
	for _, owner := range g.Owners() {
		plan.Owners = append(plan.Owners, planOwner(owner, g.ByOwner[owner], keep))
	}
	return plan
}
