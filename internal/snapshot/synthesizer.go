// Package snapshot synthesizes observations of source records, simulating what
// a jurisdiction's system would report if queried at a given instant.
package snapshot

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"

	"custodywatch/internal/jurisdiction"
)

// ErrSourceUnavailable is returned when the simulated source could not be read.
var ErrSourceUnavailable = errors.New("source unavailable")

const (
	defaultChangeProbability  = 0.3
	defaultFailureProbability = 0.05
)

// Synthesizer produces snapshots. Every random draw comes from the injected
// stream so a seed reproduces the exact observation sequence.
// Not safe for concurrent use.
type Synthesizer struct {
	rng                *rand.Rand
	ids                io.Reader
	changeProbability  float64
	failureProbability float64
	sourceFailure      map[string]float64
}

// Option configures the Synthesizer.
type Option func(*Synthesizer)

// WithChangeProbability sets the chance a refresh carries a state transition.
func WithChangeProbability(p float64) Option {
	return func(s *Synthesizer) {
		s.changeProbability = clamp01(p)
	}
}

// WithFailureProbability sets the default chance an observation fails.
func WithFailureProbability(p float64) Option {
	return func(s *Synthesizer) {
		s.failureProbability = clamp01(p)
	}
}

// WithSourceFailure overrides the failure chance for one jurisdiction.
func WithSourceFailure(jurisdictionID string, p float64) Option {
	return func(s *Synthesizer) {
		s.sourceFailure[jurisdictionID] = clamp01(p)
	}
}

// NewSynthesizer builds a synthesizer drawing decisions from rng and snapshot
// IDs from ids. Both are normally views of the same seeded stream.
func NewSynthesizer(rng *rand.Rand, ids io.Reader, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		rng:                rng,
		ids:                ids,
		changeProbability:  defaultChangeProbability,
		failureProbability: defaultFailureProbability,
		sourceFailure:      make(map[string]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe returns a new snapshot of record as reported by src at the given
// instant. With no prior snapshot the baseline "no active record" state is
// returned. Otherwise the prior fields either carry a simulated transition or
// are reproduced unchanged.
func (s *Synthesizer) Observe(src jurisdiction.SourceRef, record ParsedRecord, prior *Snapshot, at time.Time) (Snapshot, error) {
	// The failure roll is always drawn so the stream stays aligned across runs.
	if s.rng.Float64() < s.failureRate(src.JurisdictionID) {
		return Snapshot{}, fmt.Errorf("observe %s: %w", src, ErrSourceUnavailable)
	}

	var next ParsedRecord
	if prior == nil {
		next = baseline(record)
	} else {
		next = prior.Record.Clone()
		if s.rng.Float64() < s.changeProbability {
			mutate(next.Fields, s.rng)
		}
	}

	id, err := uuid.NewRandomFromReader(s.ids)
	if err != nil {
		return Snapshot{}, fmt.Errorf("snapshot id: %w", err)
	}

	return Snapshot{
		ID:           id.String(),
		Source:       src,
		Record:       next,
		ObservedAt:   at,
		RawFieldHash: next.Fields.Hash(),
	}, nil
}

func (s *Synthesizer) failureRate(jurisdictionID string) float64 {
	if p, ok := s.sourceFailure[jurisdictionID]; ok {
		return p
	}
	return s.failureProbability
}

func baseline(record ParsedRecord) ParsedRecord {
	next := record.Clone()
	if next.Fields == nil {
		next.Fields = Fields{}
	}
	next.Fields[FieldStatus] = StatusNone
	return next
}

func clamp01(p float64) float64 {
	return max(0, min(1, p))
}
