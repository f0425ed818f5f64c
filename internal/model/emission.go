// Package model defines the emission and notification records and the
// decode step that turns untrusted network payloads into validated records.
package model

import "time"

// Kind categorizes an emission. The set below is what producers send today,
// but Kind is deliberately open: an unknown value still validates and renders
// generically downstream.
type Kind string

const (
	KindStatus    Kind = "status"
	KindProgress  Kind = "progress"
	KindMilestone Kind = "milestone"
	KindError     Kind = "error"
	KindLog       Kind = "log"
)

// Emission is a single reported activity event from an agent or task source.
// Every Emission that exists in a store has passed ParseEmission: ID,
// SourceType, SourceID, Kind, Summary are non-empty and Timestamp is a real
// point in time. Records are never created invalid and then repaired.
type Emission struct {
	ID         string    `json:"id"`
	SourceType string    `json:"source_type"`
	SourceID   string    `json:"source_id"`
	Kind       Kind      `json:"kind"`
	Summary    string    `json:"summary"`
	Detail     string    `json:"detail,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	Scope      Scope     `json:"scope,omitempty"`
	Progress   *Progress `json:"progress,omitempty"`
}

// Scope carries the (project, issue) coordinates an emission is filed under.
// All fields are optional; the zero value means unscoped.
type Scope struct {
	ProjectID   string `json:"project_id,omitempty"`
	IssueID     string `json:"issue_id,omitempty"`
	IssueNumber int    `json:"issue_number,omitempty"`
}

// IsZero reports whether no scope coordinate is set.
func (s Scope) IsZero() bool {
	return s.ProjectID == "" && s.IssueID == "" && s.IssueNumber == 0
}

// Progress is an optional completion counter attached to an emission.
// Invariant: 0 <= Current <= Total and Total > 0. A raw progress object that
// violates this is dropped at parse time; the emission itself survives.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Unit    string `json:"unit,omitempty"`
}
