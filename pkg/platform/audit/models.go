package audit

import (
	"context"
	"encoding/json"
	"time"

	"custodywatch/pkg/platform/hashing"
)

// GenesisHash is the PrevEntryHash of the first entry in every chain.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

const entryTag = "AUDIT_ENTRY"

// Category classifies audit actions by their primary purpose.
type Category string

const (
	// CategoryCompliance covers actions that change what the system asserts
	// about a person: emitted, advanced, rejected and acknowledged events.
	CategoryCompliance Category = "compliance"

	// CategoryOperations covers routine pipeline activity.
	CategoryOperations Category = "operations"
)

// ActionType names a recorded system action.
type ActionType string

const (
	ActionSnapshotTaken     ActionType = "snapshot_taken"
	ActionDiffComputed      ActionType = "diff_computed"
	ActionEventEmitted      ActionType = "event_emitted"
	ActionEventRejected     ActionType = "event_rejected"
	ActionEventAdvanced     ActionType = "event_advanced"
	ActionEventAcknowledged ActionType = "event_acknowledged"
	ActionObservationFailed ActionType = "observation_failed"
	ActionSimulationStarted ActionType = "simulation_started"
	ActionSimulationStopped ActionType = "simulation_stopped"
)

var actionCategories = map[ActionType]Category{
	ActionEventEmitted:      CategoryCompliance,
	ActionEventRejected:     CategoryCompliance,
	ActionEventAdvanced:     CategoryCompliance,
	ActionEventAcknowledged: CategoryCompliance,

	ActionSnapshotTaken:     CategoryOperations,
	ActionDiffComputed:      CategoryOperations,
	ActionObservationFailed: CategoryOperations,
	ActionSimulationStarted: CategoryOperations,
	ActionSimulationStopped: CategoryOperations,
}

// Category returns the Category for this action.
// Unknown actions default to CategoryOperations.
func (a ActionType) Category() Category {
	if cat, ok := actionCategories[a]; ok {
		return cat
	}
	return CategoryOperations
}

// IsValid checks if the action is one the ledger records.
func (a ActionType) IsValid() bool {
	_, ok := actionCategories[a]
	return ok
}

// Entry is one immutable link of the audit chain.
//
// Invariants:
//   - Sequence starts at 1 and increases by one per entry
//   - PrevEntryHash equals the previous entry's EntryHash, or GenesisHash
//   - EntryHash is reproducible from the other hashed fields
//   - PayloadHash is the hash of Payload
type Entry struct {
	Sequence      uint64          `json:"sequence"`
	ActionType    ActionType      `json:"action_type"`
	PayloadHash   string          `json:"payload_hash"`
	PrevEntryHash string          `json:"prev_entry_hash"`
	EntryHash     string          `json:"entry_hash"`
	ActorID       string          `json:"actor_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Payload       json.RawMessage `json:"payload"`
}

// ComputeHash recomputes the entry hash from the entry's hashed fields.
func (e Entry) ComputeHash() string {
	return EntryHash(e.PrevEntryHash, e.ActionType, e.PayloadHash, e.Timestamp, e.ActorID)
}

// EntryHash computes the v1 chain hash of an entry's fields.
func EntryHash(prev string, action ActionType, payloadHash string, ts time.Time, actorID string) string {
	return hashing.Record(entryTag, prev, string(action), payloadHash, FormatTimestamp(ts), actorID)
}

// FormatTimestamp is the canonical timestamp text used in the entry hash.
func FormatTimestamp(ts time.Time) string {
	return ts.UTC().Format(time.RFC3339Nano)
}

// Store persists entries in sequence order. Implementations must return
// entries from List ordered by ascending Sequence.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context) ([]Entry, error)
}
