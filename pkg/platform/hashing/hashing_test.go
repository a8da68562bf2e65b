package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonical(t *testing.T) {
	t.Run("fields are length prefixed in order", func(t *testing.T) {
		assert.Equal(t, "AUDIT_ENTRY|v1|3:abc|0:|1:x", Canonical("AUDIT_ENTRY", "abc", "", "x"))
	})

	t.Run("separator inside a value does not collide with a split", func(t *testing.T) {
		assert.NotEqual(t, Record("T", "a|b", "c"), Record("T", "a", "b|c"))
	})
}

func TestFields(t *testing.T) {
	a := map[string]string{"status": "none", "charge": ""}
	b := map[string]string{"charge": "", "status": "none"}
	assert.Equal(t, Fields(a), Fields(b))

	c := map[string]string{"status": "active-custody", "charge": ""}
	assert.NotEqual(t, Fields(a), Fields(c))

	assert.NotEqual(t, Fields(map[string]string{}), Fields(map[string]string{"": ""}))
}

func TestPayload(t *testing.T) {
	type body struct {
		EventID string            `json:"event_id"`
		Fields  map[string]string `json:"fields"`
	}

	h1, raw, err := Payload(body{EventID: "e1", Fields: map[string]string{"b": "2", "a": "1"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event_id":"e1","fields":{"a":"1","b":"2"}}`, string(raw))
	assert.Equal(t, h1, PayloadBytes(raw))

	h2, _, err := Payload(body{EventID: "e1", Fields: map[string]string{"a": "1", "b": "2"}})
	require.NoError(t, err)
	assert.Equal(t, h1, h2)

	_, _, err = Payload(func() {})
	assert.Error(t, err)
}

func TestUnit(t *testing.T) {
	assert.Zero(t, Unit(""))
	assert.Zero(t, Unit("zz"))
	assert.Zero(t, Unit("0000000000000000"))

	for _, s := range []string{"a", "b", "c", "d"} {
		u := Unit(Sum(s))
		assert.GreaterOrEqual(t, u, 0.0)
		assert.Less(t, u, 1.0)
	}
	assert.Less(t, Unit("ffffffffffffffff"), 1.0)
}
