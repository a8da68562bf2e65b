package simulation

import (
	"time"

	"custodywatch/internal/changeevent"
	"custodywatch/internal/diff"
	"custodywatch/internal/health"
	"custodywatch/internal/jurisdiction"
	"custodywatch/internal/snapshot"
)

// Audit payloads. Field order is fixed by the struct so the canonical JSON,
// and therefore the payload hash, is stable.

// snapshotTakenPayload carries the whole record so a restarted process can
// rebuild its last-snapshot table from the chain.
type snapshotTakenPayload struct {
	SnapshotID     string          `json:"snapshot_id"`
	JurisdictionID string          `json:"jurisdiction_id"`
	SourceKind     string          `json:"source_kind"`
	PersonID       string          `json:"person_id"`
	Name           string          `json:"name"`
	Fields         snapshot.Fields `json:"fields"`
	RawFieldHash   string          `json:"raw_field_hash"`
	ObservedAt     time.Time       `json:"observed_at"`
}

func newSnapshotTaken(s snapshot.Snapshot) snapshotTakenPayload {
	return snapshotTakenPayload{
		SnapshotID:     s.ID,
		JurisdictionID: s.Source.JurisdictionID,
		SourceKind:     string(s.Source.SourceKind),
		PersonID:       s.Record.PersonID,
		Name:           s.Record.Name,
		Fields:         s.Record.Fields,
		RawFieldHash:   s.RawFieldHash,
		ObservedAt:     s.ObservedAt,
	}
}

func (p snapshotTakenPayload) snapshot() snapshot.Snapshot {
	src := jurisdiction.SourceRef{JurisdictionID: p.JurisdictionID, SourceKind: jurisdiction.SourceKind(p.SourceKind)}
	return snapshot.Snapshot{
		ID:     p.SnapshotID,
		Source: src,
		Record: snapshot.ParsedRecord{
			PersonID:       p.PersonID,
			Name:           p.Name,
			JurisdictionID: p.JurisdictionID,
			Fields:         p.Fields.Clone(),
		},
		ObservedAt:   p.ObservedAt,
		RawFieldHash: p.RawFieldHash,
	}
}

type diffComputedPayload struct {
	FromSnapshotID string `json:"from_snapshot_id"`
	ToSnapshotID   string `json:"to_snapshot_id"`
	JurisdictionID string `json:"jurisdiction_id"`
	PersonID       string `json:"person_id"`
	ChangedFields  int    `json:"changed_fields"`
}

type eventPayload struct {
	changeevent.Summary
	FromSnapshotID string             `json:"from_snapshot_id"`
	ToSnapshotID   string             `json:"to_snapshot_id"`
	DiffHash       string             `json:"diff_hash"`
	Changes        []diff.FieldChange `json:"changes"`
	CreatedAt      time.Time          `json:"created_at"`
}

func newEventPayload(e changeevent.ChangeEvent) eventPayload {
	return eventPayload{
		Summary:        e.Summarize(),
		FromSnapshotID: e.Diff.FromSnapshotID,
		ToSnapshotID:   e.Diff.ToSnapshotID,
		DiffHash:       e.Diff.ContentHash(),
		Changes:        e.Diff.ChangedFields,
		CreatedAt:      e.CreatedAt,
	}
}

func (p eventPayload) event() changeevent.ChangeEvent {
	src := jurisdiction.SourceRef{JurisdictionID: p.JurisdictionID, SourceKind: jurisdiction.SourceKind(p.SourceKind)}
	return changeevent.ChangeEvent{
		ID: p.EventID,
		Diff: diff.Diff{
			FromSnapshotID: p.FromSnapshotID,
			ToSnapshotID:   p.ToSnapshotID,
			Source:         src,
			PersonID:       p.PersonID,
			ChangedFields:  p.Changes,
		},
		Confidence: p.Confidence,
		Status:     p.Status,
		Source:     src,
		PersonID:   p.PersonID,
		Reason:     p.Reason,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

type eventAdvancedPayload struct {
	EventID    string             `json:"event_id"`
	From       changeevent.Status `json:"from"`
	To         changeevent.Status `json:"to"`
	Confidence float64            `json:"confidence"`
	Reason     string             `json:"reason,omitempty"`
}

type eventAcknowledgedPayload struct {
	EventID string             `json:"event_id"`
	Status  changeevent.Status `json:"status"`
}

type observationFailedPayload struct {
	JurisdictionID      string        `json:"jurisdiction_id"`
	SourceKind          string        `json:"source_kind"`
	PersonID            string        `json:"person_id"`
	Error               string        `json:"error"`
	Status              health.Status `json:"status"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
}

type simulationStartedPayload struct {
	Seed          uint64   `json:"seed"`
	TickInterval  string   `json:"tick_interval"`
	Jurisdictions []string `json:"jurisdictions"`
	Tick          uint64   `json:"tick"`
}

type simulationStoppedPayload struct {
	Tick   uint64 `json:"tick"`
	Events int    `json:"events"`
}
