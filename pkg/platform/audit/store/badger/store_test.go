package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformbadger "custodywatch/internal/platform/badger"
	audit "custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/sentinel"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := platformbadger.Open(platformbadger.InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(db.DB)
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	l := audit.New(
		audit.WithStore(store),
		audit.WithClock(func() time.Time { clock = clock.Add(1500 * time.Microsecond); return clock }),
	)
	// More than 255 entries so key ordering crosses a byte boundary.
	for i := range 300 {
		_, err := l.Append(ctx, audit.ActionSnapshotTaken, map[string]any{"i": i, "note": "<b>&</b>"}, "system")
		require.NoError(t, err)
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 300)
	assert.Equal(t, uint64(256), entries[255].Sequence)

	report := audit.Verify(entries)
	assert.True(t, report.Intact, "reason: %s at %d", report.Reason, report.BrokenSequence)

	reloaded := audit.New()
	require.NoError(t, reloaded.Load(ctx, store))
	want, _ := l.Tail()
	got, ok := reloaded.Tail()
	require.True(t, ok)
	assert.Equal(t, want, got)
}

func TestStore_DuplicateSequence(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	entry := audit.Entry{Sequence: 1, ActionType: audit.ActionSnapshotTaken, Payload: []byte(`null`)}
	require.NoError(t, store.Append(ctx, entry))
	assert.ErrorIs(t, store.Append(ctx, entry), sentinel.ErrConflict)
}

func TestStore_DetectsOutOfBandEdit(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	l := audit.New(audit.WithStore(store))
	for range 5 {
		_, err := l.Append(ctx, audit.ActionEventEmitted, map[string]string{"event_id": "e"}, "system")
		require.NoError(t, err)
	}

	entries, err := store.List(ctx)
	require.NoError(t, err)
	forged := entries[2]
	forged.ActorID = "mallory"
	require.NoError(t, store.Put(forged))

	entries, err = store.List(ctx)
	require.NoError(t, err)
	report := audit.Verify(entries)
	assert.False(t, report.Intact)
	assert.Equal(t, uint64(3), report.BrokenSequence)
	assert.Equal(t, audit.ReasonEntryHash, report.Reason)
}
