// Package feed owns the bounded, deduplicated, time-ordered emission buffer
// and the pure scope filtering shared with presentation consumers.
package feed

import (
	"sort"

	"github.com/oshiro-ai/hotaru/internal/model"
)

// Buffer limits used by the common consumers. A compact ticker shows 5, a
// list widget 15; the full feed page passes its own larger limit.
const (
	CompactLimit = 5
	ListLimit    = 15
	DefaultLimit = 50
)

// Filter is the (org, project, issue, source) scope a store or view is bound
// to. OrgID scopes the snapshot request only — emissions carry no org field,
// so it never participates in local matching. Empty fields impose no
// constraint.
type Filter struct {
	OrgID     string
	ProjectID string
	IssueID   string
	SourceID  string
	Limit     int
}

// Matches reports whether e satisfies every non-empty scope field exactly.
func (f Filter) Matches(e model.Emission) bool {
	if f.ProjectID != "" && e.Scope.ProjectID != f.ProjectID {
		return false
	}
	if f.IssueID != "" && e.Scope.IssueID != f.IssueID {
		return false
	}
	if f.SourceID != "" && e.SourceID != f.SourceID {
		return false
	}
	return true
}

func (f Filter) limit() int {
	if f.Limit > 0 {
		return f.Limit
	}
	return DefaultLimit
}

// Select returns the emissions matching f, sorted by timestamp descending
// with input order preserved among equal timestamps, truncated to limit.
// limit <= 0 means unbounded. Pure: the input slice is never mutated.
func Select(emissions []model.Emission, f Filter, limit int) []model.Emission {
	out := make([]model.Emission, 0, len(emissions))
	for _, e := range emissions {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
