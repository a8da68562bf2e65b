package health

import (
	"sort"
	"sync"
	"time"
)

// Tracker holds the current CountyHealth of every jurisdiction it has seen.
// Safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	policy Policy
	states map[string]CountyHealth
}

// NewTracker creates a tracker seeded with the given jurisdictions, all online.
func NewTracker(p Policy, jurisdictionIDs ...string) *Tracker {
	t := &Tracker{
		policy: p,
		states: make(map[string]CountyHealth, len(jurisdictionIDs)),
	}
	for _, id := range jurisdictionIDs {
		t.states[id] = Initial(id)
	}
	return t
}

// Record folds an outcome into the jurisdiction's health and reports whether
// anything about it changed.
func (t *Tracker) Record(jurisdictionID string, outcome Outcome, at time.Time) (CountyHealth, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev, ok := t.states[jurisdictionID]
	if !ok {
		prev = Initial(jurisdictionID)
	}
	next := Reduce(prev, outcome, at, t.policy)
	t.states[jurisdictionID] = next
	return next, !ok || next != prev
}

// Get returns the jurisdiction's health. Unknown jurisdictions report online.
func (t *Tracker) Get(jurisdictionID string) CountyHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if h, ok := t.states[jurisdictionID]; ok {
		return h
	}
	return Initial(jurisdictionID)
}

// All returns every tracked jurisdiction sorted by ID.
func (t *Tracker) All() []CountyHealth {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]CountyHealth, 0, len(t.states))
	for _, h := range t.states {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JurisdictionID < out[j].JurisdictionID })
	return out
}
