// Package changeevent turns non-empty diffs into confidence-scored change
// events and moves them through the verification lifecycle.
package changeevent

import (
	"errors"
	"fmt"
	"time"

	"custodywatch/internal/diff"
	"custodywatch/internal/jurisdiction"
)

// ErrInvalidTransition is returned when a status change is not in the table.
var ErrInvalidTransition = errors.New("invalid status transition")

// Status is the lifecycle stage of a ChangeEvent.
type Status string

const (
	StatusIntake   Status = "intake"
	StatusResolve  Status = "resolve"
	StatusVerify   Status = "verify"
	StatusStable   Status = "stable"
	StatusRejected Status = "rejected"
)

// transitions lists every allowed move. Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusIntake:  {StatusResolve, StatusRejected},
	StatusResolve: {StatusVerify, StatusRejected},
	StatusVerify:  {StatusStable, StatusRejected},
}

// Statuses lists every status in lifecycle order.
func Statuses() []Status {
	return []Status{StatusIntake, StatusResolve, StatusVerify, StatusStable, StatusRejected}
}

// IsValid checks if the status is one of the supported values.
func (s Status) IsValid() bool {
	switch s {
	case StatusIntake, StatusResolve, StatusVerify, StatusStable, StatusRejected:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s Status) IsTerminal() bool {
	return s == StatusStable || s == StatusRejected
}

// Next returns the forward stage after s, or false when s is terminal.
func (s Status) Next() (Status, bool) {
	next := transitions[s]
	if len(next) == 0 {
		return "", false
	}
	return next[0], true
}

// CanTransitionTo reports whether s may move to target.
func (s Status) CanTransitionTo(target Status) bool {
	return CanTransition(s, target)
}

// CanTransition reports whether the table allows from -> to.
func CanTransition(from, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ChangeEvent is a scored interpretation of a non-empty diff.
//
// Invariants:
//   - Confidence is within [0, 1]
//   - Status only moves along the transition table
//   - Diff is never empty
//
// Values are immutable; Transition returns an updated copy.
type ChangeEvent struct {
	ID         string                 `json:"id"`
	Diff       diff.Diff              `json:"diff"`
	Confidence float64                `json:"confidence"`
	Status     Status                 `json:"status"`
	Source     jurisdiction.SourceRef `json:"source"`
	PersonID   string                 `json:"person_id"`
	Reason     string                 `json:"reason,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Transition returns a copy of e moved to status to at the given instant.
func (e ChangeEvent) Transition(to Status, at time.Time) (ChangeEvent, error) {
	if !e.Status.CanTransitionTo(to) {
		return e, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.Status, to)
	}
	e.Status = to
	e.UpdatedAt = at
	return e, nil
}

// Reject moves e to rejected with a reason.
func (e ChangeEvent) Reject(reason string, at time.Time) (ChangeEvent, error) {
	next, err := e.Transition(StatusRejected, at)
	if err != nil {
		return e, err
	}
	next.Reason = reason
	return next, nil
}

// Summary is the compact form written to audit payloads and outbound sinks.
type Summary struct {
	EventID        string    `json:"event_id"`
	JurisdictionID string    `json:"jurisdiction_id"`
	SourceKind     string    `json:"source_kind"`
	PersonID       string    `json:"person_id"`
	Status         Status    `json:"status"`
	Confidence     float64   `json:"confidence"`
	Fields         []string  `json:"fields"`
	Reason         string    `json:"reason,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Summarize returns the compact form of e.
func (e ChangeEvent) Summarize() Summary {
	fields := make([]string, 0, len(e.Diff.ChangedFields))
	for _, c := range e.Diff.ChangedFields {
		fields = append(fields, string(c.Field))
	}
	return Summary{
		EventID:        e.ID,
		JurisdictionID: e.Source.JurisdictionID,
		SourceKind:     string(e.Source.SourceKind),
		PersonID:       e.PersonID,
		Status:         e.Status,
		Confidence:     e.Confidence,
		Fields:         fields,
		Reason:         e.Reason,
		UpdatedAt:      e.UpdatedAt,
	}
}
