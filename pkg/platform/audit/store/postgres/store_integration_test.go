//go:build integration

package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/sentinel"
	"custodywatch/pkg/testutil"
	"custodywatch/pkg/testutil/containers"
)

func TestStore_Postgres(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	store := New(pg.DB)
	require.NoError(t, store.Migrate(ctx))

	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	ledger := audit.New(
		audit.WithStore(store),
		audit.WithClock(func() time.Time { clock = clock.Add(1234567 * time.Nanosecond); return clock }),
	)
	for i := range 20 {
		_, err := ledger.Append(ctx, audit.ActionEventEmitted, map[string]any{"event_id": i, "fields": []string{"status"}}, "system")
		require.NoError(t, err)
	}

	testutil.Given(t, "a chain written through to postgres", func(t *testing.T) {
		testutil.When(t, "reading it back", func(t *testing.T) {
			entries, err := store.List(ctx)
			require.NoError(t, err)

			testutil.Then(t, "it matches the ledger and verifies", func(t *testing.T) {
				assert.Equal(t, ledger.Entries(), entries)
				assert.True(t, audit.Verify(entries).Intact)
			})
		})

		testutil.When(t, "appending an existing sequence", func(t *testing.T) {
			first := ledger.Entries()[0]
			err := store.Append(ctx, first)

			testutil.Then(t, "it is a conflict", func(t *testing.T) {
				assert.ErrorIs(t, err, sentinel.ErrConflict)
			})
		})

		testutil.When(t, "listing recent entries", func(t *testing.T) {
			recent, err := store.ListRecent(ctx, 3)
			require.NoError(t, err)

			testutil.Then(t, "they are the newest in ascending order", func(t *testing.T) {
				require.Len(t, recent, 3)
				assert.Equal(t, uint64(18), recent[0].Sequence)
				assert.Equal(t, uint64(20), recent[2].Sequence)
			})
		})

		testutil.When(t, "a row is edited out of band", func(t *testing.T) {
			_, err := pg.DB.ExecContext(ctx, `UPDATE audit_entries SET actor_id = 'mallory' WHERE sequence = 7`)
			require.NoError(t, err)
			entries, err := store.List(ctx)
			require.NoError(t, err)

			testutil.Then(t, "verification reports that row", func(t *testing.T) {
				report := audit.Verify(entries)
				assert.False(t, report.Intact)
				assert.Equal(t, uint64(7), report.BrokenSequence)
				assert.Equal(t, audit.ReasonEntryHash, report.Reason)
				assert.ErrorIs(t, audit.New().Load(ctx, store), audit.ErrBrokenChain)
			})
		})
	})
}

func TestStore_ImportIsAtomic(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	ctx := context.Background()
	store := New(pg.DB)
	require.NoError(t, store.Migrate(ctx))

	src := audit.New()
	for range 5 {
		_, err := src.Append(ctx, audit.ActionSnapshotTaken, nil, "system")
		require.NoError(t, err)
	}
	entries := src.Entries()

	// The duplicate makes the fourth insert fail; nothing may land.
	broken := append(append([]audit.Entry{}, entries[:3]...), entries[2])
	require.Error(t, store.Import(ctx, broken))

	stored, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)

	require.NoError(t, store.Import(ctx, entries))
	stored, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, stored, 5)
}
