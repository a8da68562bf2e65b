package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/sentinel"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, s.Append(ctx, audit.Entry{Sequence: i, Payload: []byte(`{}`)}))
	}

	t.Run("rejects out of order sequence", func(t *testing.T) {
		err := s.Append(ctx, audit.Entry{Sequence: 9})
		assert.ErrorIs(t, err, sentinel.ErrConflict)
	})

	t.Run("list returns copies", func(t *testing.T) {
		all, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 5)
		all[0].Payload[0] = '['

		again, _ := s.List(ctx)
		assert.Equal(t, "{}", string(again[0].Payload))
	})

	t.Run("recent", func(t *testing.T) {
		recent, err := s.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recent, 2)
		assert.Equal(t, uint64(4), recent[0].Sequence)

		all, _ := s.ListRecent(ctx, 50)
		assert.Len(t, all, 5)
	})

	t.Run("tamper", func(t *testing.T) {
		assert.False(t, s.Tamper(0, func(*audit.Entry) {}))
		assert.False(t, s.Tamper(6, func(*audit.Entry) {}))
		assert.True(t, s.Tamper(2, func(e *audit.Entry) { e.ActorID = "x" }))
		all, _ := s.List(ctx)
		assert.Equal(t, "x", all[1].ActorID)
	})

	t.Run("clear", func(t *testing.T) {
		s.Clear()
		all, _ := s.List(ctx)
		assert.Empty(t, all)
	})
}
