package changeevent

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"custodywatch/internal/diff"
	"custodywatch/internal/health"
	"custodywatch/internal/snapshot"
	"custodywatch/pkg/platform/hashing"
)

// EventNamespace scopes name-based event IDs.
var EventNamespace = uuid.MustParse("6f1b3c2e-8d47-5a9e-b0c4-2e7d91a3f5b8")

// Policy holds every weight and threshold used to score a diff.
type Policy struct {
	FieldWeights    map[snapshot.FieldName]float64 `json:"field_weights" yaml:"field_weights"`
	DefaultWeight   float64                        `json:"default_weight" yaml:"default_weight"`
	MultiFieldBonus float64                        `json:"multi_field_bonus" yaml:"multi_field_bonus"`
	HealthFactors   map[health.Status]float64      `json:"health_factors" yaml:"health_factors"`
	JitterAmplitude float64                        `json:"jitter_amplitude" yaml:"jitter_amplitude"`
	RejectBelow     float64                        `json:"reject_below" yaml:"reject_below"`
}

// DefaultPolicy returns the standard scoring parameters.
func DefaultPolicy() Policy {
	return Policy{
		FieldWeights: map[snapshot.FieldName]float64{
			snapshot.FieldStatus:        0.92,
			snapshot.FieldCharge:        0.85,
			snapshot.FieldFacility:      0.70,
			snapshot.FieldBondAmount:    0.60,
			snapshot.FieldBookingNumber: 0.55,
			snapshot.FieldAddress:       0.30,
		},
		DefaultWeight:   0.40,
		MultiFieldBonus: 0.03,
		HealthFactors: map[health.Status]float64{
			health.StatusOnline:   1.0,
			health.StatusDegraded: 0.75,
			health.StatusOffline:  0.50,
		},
		JitterAmplitude: 0.04,
		RejectBelow:     0.50,
	}
}

// Validate requires every weight, factor and threshold to be within [0, 1].
func (p Policy) Validate() error {
	check := func(name string, v float64) error {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, v)
		}
		return nil
	}
	for f, w := range p.FieldWeights {
		if err := check("field weight "+string(f), w); err != nil {
			return err
		}
	}
	for s, w := range p.HealthFactors {
		if err := check("health factor "+string(s), w); err != nil {
			return err
		}
	}
	for name, v := range map[string]float64{
		"default_weight":    p.DefaultWeight,
		"multi_field_bonus": p.MultiFieldBonus,
		"jitter_amplitude":  p.JitterAmplitude,
		"reject_below":      p.RejectBelow,
	} {
		if err := check(name, v); err != nil {
			return err
		}
	}
	return nil
}

// Scorer assigns confidence to diffs. It holds no state beyond its policy.
type Scorer struct {
	policy Policy
}

// NewScorer creates a scorer for the given policy.
func NewScorer(p Policy) *Scorer {
	return &Scorer{policy: p}
}

// Policy returns the scorer's parameters.
func (s *Scorer) Policy() Policy {
	return s.policy
}

// Score turns a diff into a change event. Empty diffs produce no event.
// Events scoring below the reject threshold are created already rejected.
func (s *Scorer) Score(d diff.Diff, h health.CountyHealth, at time.Time) *ChangeEvent {
	if d.IsEmpty() {
		return nil
	}

	confidence := s.confidence(d, h)
	e := &ChangeEvent{
		ID:         uuid.NewSHA1(EventNamespace, []byte(d.ToSnapshotID)).String(),
		Diff:       d,
		Confidence: confidence,
		Status:     StatusIntake,
		Source:     d.Source,
		PersonID:   d.PersonID,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	if confidence < s.policy.RejectBelow {
		e.Status = StatusRejected
		e.Reason = fmt.Sprintf("confidence %.2f below %.2f", confidence, s.policy.RejectBelow)
	}
	return e
}

// Rescore recomputes an event's confidence against the current county health.
func (s *Scorer) Rescore(e ChangeEvent, h health.CountyHealth, at time.Time) ChangeEvent {
	e.Confidence = s.confidence(e.Diff, h)
	e.UpdatedAt = at
	return e
}

// Accepts reports whether confidence clears the reject threshold.
func (s *Scorer) Accepts(confidence float64) bool {
	return confidence >= s.policy.RejectBelow
}

func (s *Scorer) confidence(d diff.Diff, h health.CountyHealth) float64 {
	base := 0.0
	for _, c := range d.ChangedFields {
		base = max(base, s.weight(c.Field))
	}
	if n := len(d.ChangedFields); n > 1 {
		base += s.policy.MultiFieldBonus * float64(n-1)
	}

	factor, ok := s.policy.HealthFactors[h.Status]
	if !ok {
		factor = 1
	}

	// Jitter comes from the diff content so identical input scores identically.
	jitter := (2*hashing.Unit(d.ContentHash()) - 1) * s.policy.JitterAmplitude
	return max(0, min(1, base*factor+jitter))
}

func (s *Scorer) weight(f snapshot.FieldName) float64 {
	if w, ok := s.policy.FieldWeights[f]; ok {
		return w
	}
	return s.policy.DefaultWeight
}
