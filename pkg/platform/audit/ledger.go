// Package audit is the append-only, hash-chained record of every system
// action. Each entry commits to the one before it, so any edit to a stored
// entry breaks verification at that entry.
//
// Appends are fail-closed: when a write-through Store is configured and the
// write fails, the append returns an error and the chain tail does not move.
package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"custodywatch/pkg/platform/hashing"
	"custodywatch/pkg/platform/sentinel"
)

var (
	// ErrUnknownAction is returned when appending an action the ledger does not record.
	ErrUnknownAction = errors.New("unknown audit action")
	// ErrBrokenChain is returned by Load when the persisted chain fails verification.
	ErrBrokenChain = errors.New("audit chain broken")
)

// Ledger holds the in-memory chain. Safe for concurrent use; appends are
// serialized by the ledger's lock.
type Ledger struct {
	mu      sync.RWMutex
	entries []Entry
	clock   func() time.Time
	store   Store
	logger  *slog.Logger
	metrics *Metrics
}

// Option configures the Ledger.
type Option func(*Ledger)

// WithClock sets the source of entry timestamps.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) {
		l.clock = clock
	}
}

// WithStore enables write-through persistence.
func WithStore(store Store) Option {
	return func(l *Ledger) {
		l.store = store
	}
}

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(l *Ledger) {
		l.metrics = m
	}
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{clock: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append records an action. The payload is encoded once; the stored bytes are
// exactly the bytes that were hashed.
func (l *Ledger) Append(ctx context.Context, action ActionType, payload any, actorID string) (Entry, error) {
	if !action.IsValid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	payloadHash, raw, err := hashing.Payload(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("append %s: %w", action, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev := GenesisHash
	if n := len(l.entries); n > 0 {
		prev = l.entries[n-1].EntryHash
	}
	// Microsecond precision survives every store round trip.
	ts := l.clock().UTC().Truncate(time.Microsecond)

	entry := Entry{
		Sequence:      uint64(len(l.entries)) + 1,
		ActionType:    action,
		PayloadHash:   payloadHash,
		PrevEntryHash: prev,
		ActorID:       actorID,
		Timestamp:     ts,
		Payload:       raw,
	}
	entry.EntryHash = entry.ComputeHash()

	if l.store != nil {
		if err := l.store.Append(ctx, entry); err != nil {
			l.metrics.IncPersistFailures()
			if l.logger != nil {
				l.logger.ErrorContext(ctx, "audit append failed",
					"action", action,
					"sequence", entry.Sequence,
					"error", err,
				)
			}
			return Entry{}, fmt.Errorf("audit persistence failed: %w", err)
		}
	}

	l.entries = append(l.entries, entry)
	l.metrics.ObserveAppend(action, len(l.entries))
	return entry, nil
}

// Entries returns a copy of the chain in sequence order.
func (l *Ledger) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, len(l.entries))
	for i, e := range l.entries {
		e.Payload = bytes.Clone(e.Payload)
		out[i] = e
	}
	return out
}

// Len returns the number of entries.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Tail returns the most recent entry.
func (l *Ledger) Tail() (Entry, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	return l.entries[len(l.entries)-1], true
}

// VerifyChain checks the in-memory chain.
func (l *Ledger) VerifyChain() IntegrityReport {
	report := Verify(l.Entries())
	l.metrics.SetChainIntact(report.Intact)
	return report
}

// Load replaces an empty ledger's chain with the entries persisted in store.
// A chain that fails verification is refused.
func (l *Ledger) Load(ctx context.Context, store Store) error {
	entries, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("load audit chain: %w", err)
	}
	if report := Verify(entries); !report.Intact {
		return fmt.Errorf("%w: sequence %d: %s", ErrBrokenChain, report.BrokenSequence, report.Reason)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.entries) > 0 {
		return fmt.Errorf("load into non-empty ledger: %w", sentinel.ErrInvalidState)
	}
	l.entries = entries
	l.metrics.SetChainLength(len(entries))
	return nil
}
