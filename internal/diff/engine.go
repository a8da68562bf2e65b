// Package diff compares consecutive snapshots of the same record.
package diff

import (
	"errors"
	"fmt"
	"sort"

	"custodywatch/internal/jurisdiction"
	"custodywatch/internal/snapshot"
	"custodywatch/pkg/platform/hashing"
)

var (
	// ErrMismatchedPair is the panic value cause when snapshots of different
	// records are compared.
	ErrMismatchedPair = errors.New("snapshots belong to different records")
	// ErrOutOfOrder is the panic value cause when to was observed before from.
	ErrOutOfOrder = errors.New("snapshots compared out of order")
)

// ChangeKind describes how a field differs between two snapshots.
type ChangeKind string

const (
	KindAdded   ChangeKind = "added"
	KindRemoved ChangeKind = "removed"
	KindChanged ChangeKind = "changed"
)

// FieldChange is one field-level difference. Values are recorded verbatim.
type FieldChange struct {
	Field    snapshot.FieldName `json:"field"`
	Kind     ChangeKind         `json:"kind"`
	OldValue string             `json:"old_value"`
	NewValue string             `json:"new_value"`
}

// Diff describes the changes between snapshot n and n+1 of one record.
type Diff struct {
	FromSnapshotID string                 `json:"from_snapshot_id"`
	ToSnapshotID   string                 `json:"to_snapshot_id"`
	Source         jurisdiction.SourceRef `json:"source"`
	PersonID       string                 `json:"person_id"`
	ChangedFields  []FieldChange          `json:"changed_fields"`
}

// IsEmpty reports whether nothing material changed.
func (d Diff) IsEmpty() bool {
	return len(d.ChangedFields) == 0
}

// Fields lists the names of the changed fields in order.
func (d Diff) Fields() []snapshot.FieldName {
	out := make([]snapshot.FieldName, len(d.ChangedFields))
	for i, c := range d.ChangedFields {
		out[i] = c.Field
	}
	return out
}

// ContentHash hashes the field-level content of the diff. Snapshot IDs are
// excluded so the same transition hashes the same in every run.
func (d Diff) ContentHash() string {
	parts := make([]string, 0, 2+len(d.ChangedFields)*4)
	parts = append(parts, d.Source.String(), d.PersonID)
	for _, c := range d.ChangedFields {
		parts = append(parts, string(c.Field), string(c.Kind), c.OldValue, c.NewValue)
	}
	return hashing.Record("DIFF", parts...)
}

// Compute returns the field-level difference between from and to.
//
// Both snapshots must belong to the same (source, person) pair and to must not
// precede from. Violations are programming errors and panic.
func Compute(from, to snapshot.Snapshot) Diff {
	if from.Key() != to.Key() {
		panic(fmt.Errorf("%w: %s/%s vs %s/%s", ErrMismatchedPair,
			from.Source, from.Record.PersonID, to.Source, to.Record.PersonID))
	}
	if to.ObservedAt.Before(from.ObservedAt) {
		panic(fmt.Errorf("%w: %s observed before %s", ErrOutOfOrder, to.ID, from.ID))
	}

	d := Diff{
		FromSnapshotID: from.ID,
		ToSnapshotID:   to.ID,
		Source:         to.Source,
		PersonID:       to.Record.PersonID,
		ChangedFields:  []FieldChange{},
	}

	// Equal content hashes short-circuit the field comparison.
	if from.RawFieldHash == to.RawFieldHash {
		return d
	}

	d.ChangedFields = compareFields(from.Record.Fields, to.Record.Fields)
	return d
}

func compareFields(before, after snapshot.Fields) []FieldChange {
	keys := make(map[snapshot.FieldName]bool, len(before)+len(after))
	for k := range before {
		keys[k] = true
	}
	for k := range after {
		keys[k] = true
	}
	sorted := make([]snapshot.FieldName, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	changes := []FieldChange{}
	for _, k := range sorted {
		oldVal, inBefore := before[k]
		newVal, inAfter := after[k]
		switch {
		case inBefore && !inAfter:
			changes = append(changes, FieldChange{Field: k, Kind: KindRemoved, OldValue: oldVal})
		case !inBefore && inAfter:
			changes = append(changes, FieldChange{Field: k, Kind: KindAdded, NewValue: newVal})
		case oldVal != newVal:
			changes = append(changes, FieldChange{Field: k, Kind: KindChanged, OldValue: oldVal, NewValue: newVal})
		}
	}
	return changes
}
