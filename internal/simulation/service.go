// Package simulation drives the observation pipeline on a clock: pick a
// person, observe their record, diff against the last observation, score the
// change, track source health and append every step to the audit ledger.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"custodywatch/internal/changeevent"
	"custodywatch/internal/health"
	"custodywatch/internal/jurisdiction"
	"custodywatch/internal/simulation/metrics"
	"custodywatch/internal/snapshot"
	"custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/sentinel"
)

var (
	// ErrTickFailed wraps any failure that caused a tick to be skipped.
	ErrTickFailed = errors.New("tick failed")
	// ErrAlreadyAcknowledged is returned for a second acknowledgement.
	ErrAlreadyAcknowledged = fmt.Errorf("event already acknowledged: %w", sentinel.ErrConflict)
)

// Picker chooses and resolves people on a jurisdiction's roster.
type Picker interface {
	Pick(jurisdictionID string, seed uint64) (snapshot.ParsedRecord, bool)
	Lookup(jurisdictionID, personID string) (snapshot.ParsedRecord, bool)
}

// Observer produces the next snapshot of a record.
type Observer interface {
	Observe(src jurisdiction.SourceRef, record snapshot.ParsedRecord, prior *snapshot.Snapshot, at time.Time) (snapshot.Snapshot, error)
}

// Appender records audit entries.
type Appender interface {
	Append(ctx context.Context, action audit.ActionType, payload any, actorID string) (audit.Entry, error)
}

// AuditReader exposes the chain for reads and verification.
type AuditReader interface {
	Entries() []audit.Entry
	VerifyChain() audit.IntegrityReport
}

// EventTransition describes one status advance.
type EventTransition struct {
	EventID string                  `json:"event_id"`
	From    changeevent.Status      `json:"from"`
	To      changeevent.Status      `json:"to"`
	At      time.Time               `json:"at"`
	Event   changeevent.ChangeEvent `json:"event"`
}

// Acknowledgement records who acknowledged an event and when.
type Acknowledgement struct {
	EventID  string    `json:"event_id"`
	ActorID  string    `json:"actor_id"`
	At       time.Time `json:"at"`
	Sequence uint64    `json:"sequence"`
}

// Service is the stateful orchestrator. The last-snapshot table, the event
// table and the health tracker are mutated only inside a tick or an explicit
// operation, under mu.
type Service struct {
	cfg       Config
	directory *jurisdiction.Directory
	picker    Picker
	observer  Observer
	audit     Appender
	reader    AuditReader
	scorer    *changeevent.Scorer
	tracker   *health.Tracker
	clock     *Clock
	logger    *slog.Logger
	metrics   *metrics.Metrics

	tickMu sync.Mutex // serializes ticks
	mu     sync.RWMutex
	picks  *rand.Rand
	last   map[snapshot.Key]snapshot.Snapshot
	events map[string]changeevent.ChangeEvent
	order  []string
	acks   map[string]Acknowledgement

	onEvent      registry[changeevent.ChangeEvent]
	onHealth     registry[health.CountyHealth]
	onTransition registry[EventTransition]

	runMu   sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	cadence *rand.Rand
}

// Option configures the Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithScorer replaces the default-policy scorer.
func WithScorer(scorer *changeevent.Scorer) Option {
	return func(s *Service) {
		s.scorer = scorer
	}
}

// WithHealthPolicy sets the thresholds of the service's health tracker.
func WithHealthPolicy(p health.Policy) Option {
	return func(s *Service) {
		s.tracker = health.NewTracker(p, s.directory.IDs()...)
	}
}

// WithClock shares a simulated clock, typically with the audit ledger.
func WithClock(c *Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// New creates a stopped service.
func New(
	cfg Config,
	directory *jurisdiction.Directory,
	picker Picker,
	observer Observer,
	appender Appender,
	reader AuditReader,
	opts ...Option,
) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}
	if directory == nil || directory.Len() == 0 {
		return nil, errors.New("jurisdiction directory is required")
	}
	if picker == nil {
		return nil, errors.New("picker is required")
	}
	if observer == nil {
		return nil, errors.New("observer is required")
	}
	if appender == nil {
		return nil, errors.New("audit appender is required")
	}
	if reader == nil {
		return nil, errors.New("audit reader is required")
	}

	s := &Service{
		cfg:       cfg,
		directory: directory,
		picker:    picker,
		observer:  observer,
		audit:     appender,
		reader:    reader,
		scorer:    changeevent.NewScorer(changeevent.DefaultPolicy()),
		tracker:   health.NewTracker(health.DefaultPolicy(), directory.IDs()...),
		logger:    slog.New(slog.DiscardHandler),
		picks:     rand.New(SeedStream(cfg.Seed, streamPicks)),
		cadence:   rand.New(SeedStream(cfg.Seed, streamCadence)),
		last:      make(map[snapshot.Key]snapshot.Snapshot),
		events:    make(map[string]changeevent.ChangeEvent),
		acks:      make(map[string]Acknowledgement),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.clock == nil {
		s.clock = NewClock(cfg.Epoch, cfg.TickInterval)
	}
	return s, nil
}

// Clock returns the simulated clock.
func (s *Service) Clock() *Clock {
	return s.clock
}

// OnChangeEvent subscribes to newly emitted events, intake or rejected, in
// creation order.
func (s *Service) OnChangeEvent(fn func(changeevent.ChangeEvent)) (unsubscribe func()) {
	return s.onEvent.add(fn)
}

// OnHealthUpdate subscribes to county health changes.
func (s *Service) OnHealthUpdate(fn func(health.CountyHealth)) (unsubscribe func()) {
	return s.onHealth.add(fn)
}

// OnEventTransition subscribes to status advances of existing events.
func (s *Service) OnEventTransition(fn func(EventTransition)) (unsubscribe func()) {
	return s.onTransition.add(fn)
}

// Events returns every event in creation order.
func (s *Service) Events() []changeevent.ChangeEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]changeevent.ChangeEvent, len(s.order))
	for i, id := range s.order {
		out[i] = s.events[id]
	}
	return out
}

// Event returns one event by ID.
func (s *Service) Event(id string) (changeevent.ChangeEvent, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	return e, ok
}

// Acknowledgement returns the acknowledgement of an event, if any.
func (s *Service) Acknowledgement(id string) (Acknowledgement, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.acks[id]
	return a, ok
}

// Health returns every county's health in ID order.
func (s *Service) Health() []health.CountyHealth {
	return s.tracker.All()
}

// LastSnapshot returns the current snapshot for a key.
func (s *Service) LastSnapshot(key snapshot.Key) (snapshot.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.last[key]
	return snap, ok
}

// AuditLog returns a copy of the chain.
func (s *Service) AuditLog() []audit.Entry {
	return s.reader.Entries()
}

// VerifyChain checks the chain.
func (s *Service) VerifyChain() audit.IntegrityReport {
	return s.reader.VerifyChain()
}

// Acknowledge records a user's acknowledgement of a terminal event.
func (s *Service) Acknowledge(ctx context.Context, eventID, actorID string) (Acknowledgement, error) {
	if actorID == "" {
		return Acknowledgement{}, errors.New("actor id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return Acknowledgement{}, fmt.Errorf("event %s: %w", eventID, sentinel.ErrNotFound)
	}
	if !e.Status.IsTerminal() {
		return Acknowledgement{}, fmt.Errorf("event %s is %s: %w", eventID, e.Status, sentinel.ErrInvalidState)
	}
	if _, done := s.acks[eventID]; done {
		return Acknowledgement{}, fmt.Errorf("event %s: %w", eventID, ErrAlreadyAcknowledged)
	}

	entry, err := s.audit.Append(ctx, audit.ActionEventAcknowledged, eventAcknowledgedPayload{
		EventID: eventID,
		Status:  e.Status,
	}, actorID)
	if err != nil {
		return Acknowledgement{}, fmt.Errorf("acknowledge %s: %w", eventID, err)
	}

	ack := Acknowledgement{EventID: eventID, ActorID: actorID, At: entry.Timestamp, Sequence: entry.Sequence}
	s.acks[eventID] = ack
	s.logger.InfoContext(ctx, "event acknowledged", "event_id", eventID, "actor_id", actorID, "sequence", entry.Sequence)
	return ack, nil
}

func (s *Service) pendingCount() int {
	n := 0
	for _, id := range s.order {
		if !s.events[id].Status.IsTerminal() {
			n++
		}
	}
	return n
}
