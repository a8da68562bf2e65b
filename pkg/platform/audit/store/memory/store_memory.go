package memory

import (
	"bytes"
	"context"
	"fmt"
	"sync"

	audit "custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/sentinel"
)

// InMemoryStore keeps the chain in a slice. It rejects out-of-order appends
// the same way the durable stores do.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries []audit.Entry
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

func (s *InMemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = nil
}

func (s *InMemoryStore) Append(_ context.Context, entry audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if want := uint64(len(s.entries)) + 1; entry.Sequence != want {
		return fmt.Errorf("append sequence %d, want %d: %w", entry.Sequence, want, sentinel.ErrConflict)
	}
	entry.Payload = bytes.Clone(entry.Payload)
	s.entries = append(s.entries, entry)
	return nil
}

// List returns every entry in sequence order.
func (s *InMemoryStore) List(_ context.Context) ([]audit.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Entry, len(s.entries))
	for i, e := range s.entries {
		e.Payload = bytes.Clone(e.Payload)
		out[i] = e
	}
	return out, nil
}

// ListRecent returns the most recent limit entries, oldest first.
func (s *InMemoryStore) ListRecent(ctx context.Context, limit int) ([]audit.Entry, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	start := max(len(all)-limit, 0)
	return all[start:], nil
}

// Tamper overwrites a stored entry in place. Only for exercising verification
// against a corrupted store.
func (s *InMemoryStore) Tamper(sequence uint64, mutate func(*audit.Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sequence == 0 || sequence > uint64(len(s.entries)) {
		return false
	}
	mutate(&s.entries[sequence-1])
	return true
}
