package roster

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodywatch/internal/snapshot"
)

func TestGenerate(t *testing.T) {
	r := Generate([]string{"TX-01", "FL-02", "WY-01"}, 4, "WY-01")

	people := r.People("TX-01")
	require.Len(t, people, 4)
	for _, p := range people {
		assert.Equal(t, "TX-01", p.JurisdictionID)
		assert.NotEmpty(t, p.Name)
		assert.NotEmpty(t, p.Fields[snapshot.FieldAddress])
	}
	assert.Equal(t, "TX-01-P001", people[0].PersonID)

	assert.Empty(t, r.People("WY-01"))
}

func TestPick(t *testing.T) {
	r := Generate([]string{"TX-01", "WY-01"}, DefaultSize, "WY-01")

	t.Run("deterministic for a seed", func(t *testing.T) {
		for seed := range uint64(20) {
			a, ok := r.Pick("TX-01", seed)
			require.True(t, ok)
			b, _ := r.Pick("TX-01", seed)
			assert.Equal(t, a, b)
		}
	})

	t.Run("different seeds cover the pool", func(t *testing.T) {
		seen := map[string]bool{}
		for seed := range uint64(200) {
			p, _ := r.Pick("TX-01", seed)
			seen[p.PersonID] = true
		}
		assert.Len(t, seen, DefaultSize)
	})

	t.Run("no roster for empty jurisdiction", func(t *testing.T) {
		_, ok := r.Pick("WY-01", 1)
		assert.False(t, ok)
	})

	t.Run("no roster for unknown jurisdiction", func(t *testing.T) {
		_, ok := r.Pick("ZZ-99", 1)
		assert.False(t, ok)
	})

	t.Run("returned record is a copy", func(t *testing.T) {
		p, _ := r.Pick("TX-01", 7)
		p.Fields[snapshot.FieldAddress] = "mutated"
		again, _ := r.Pick("TX-01", 7)
		assert.NotEqual(t, "mutated", again.Fields[snapshot.FieldAddress])
	})
}

func TestLookup(t *testing.T) {
	r := New(map[string][]snapshot.ParsedRecord{
		"TX-01": {
			{PersonID: "P2", Name: "Second", JurisdictionID: "TX-01"},
			{PersonID: "P1", Name: "First", JurisdictionID: "TX-01"},
		},
	})

	p, ok := r.Lookup("TX-01", "P1")
	require.True(t, ok)
	assert.Equal(t, "First", p.Name)

	_, ok = r.Lookup("TX-01", "P3")
	assert.False(t, ok)
	_, ok = r.Lookup("FL-02", "P1")
	assert.False(t, ok)
}
