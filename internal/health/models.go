// Package health tracks the observed availability of each county's source.
package health

import "time"

// Status is the derived availability of a jurisdiction's source.
type Status string

const (
	StatusOnline   Status = "online"
	StatusDegraded Status = "degraded"
	StatusOffline  Status = "offline"
)

// Outcome is the result of one observation attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

func (o Outcome) String() string {
	if o == OutcomeSuccess {
		return "success"
	}
	return "failure"
}

// DefaultOfflineAfter is the consecutive failure count that marks a source offline.
const DefaultOfflineAfter = 3

// Policy holds the health thresholds.
type Policy struct {
	OfflineAfter int `json:"offline_after" yaml:"offline_after"`
}

// DefaultPolicy returns the standard thresholds.
func DefaultPolicy() Policy {
	return Policy{OfflineAfter: DefaultOfflineAfter}
}

// CountyHealth is the availability state of one jurisdiction.
// LastSuccessfulObservationAt is zero until the first successful observation.
type CountyHealth struct {
	JurisdictionID              string    `json:"jurisdiction_id"`
	Status                      Status    `json:"status"`
	ConsecutiveFailures         int       `json:"consecutive_failures"`
	LastSuccessfulObservationAt time.Time `json:"last_successful_observation_at"`
}

// Initial returns the starting state for a jurisdiction.
func Initial(jurisdictionID string) CountyHealth {
	return CountyHealth{JurisdictionID: jurisdictionID, Status: StatusOnline}
}

// Reduce applies one observation outcome. Status is derived from the failure
// count alone, so there is no other way to set it.
func Reduce(h CountyHealth, outcome Outcome, at time.Time, p Policy) CountyHealth {
	if outcome == OutcomeSuccess {
		h.ConsecutiveFailures = 0
		h.Status = StatusOnline
		h.LastSuccessfulObservationAt = at
		return h
	}

	h.ConsecutiveFailures++
	offlineAfter := p.OfflineAfter
	if offlineAfter < 1 {
		offlineAfter = DefaultOfflineAfter
	}
	if h.ConsecutiveFailures >= offlineAfter {
		h.Status = StatusOffline
	} else {
		h.Status = StatusDegraded
	}
	return h
}
