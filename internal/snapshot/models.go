package snapshot

import (
	"time"

	"custodywatch/internal/jurisdiction"
	"custodywatch/pkg/platform/hashing"
)

// FieldName names one observed attribute of a record.
type FieldName string

const (
	FieldStatus        FieldName = "status"
	FieldCharge        FieldName = "charge"
	FieldFacility      FieldName = "facility"
	FieldBondAmount    FieldName = "bond_amount"
	FieldBookingNumber FieldName = "booking_number"
	FieldAddress       FieldName = "address"
)

// Custody status values carried in FieldStatus.
const (
	StatusNone          = "none"
	StatusActiveCustody = "active-custody"
	StatusReleased      = "released"
	StatusTransferred   = "transferred"
	StatusWarrantIssued = "warrant-issued"
)

// Fields is the observed attribute map of a record.
type Fields map[FieldName]string

// Clone returns an independent copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Hash returns the content hash of the field map.
func (f Fields) Hash() string {
	return hashing.Fields(f)
}

// ParsedRecord is the logical entity under observation: a person and their
// custodial status in one jurisdiction. Identity never changes; Fields only
// change by way of a new Snapshot.
type ParsedRecord struct {
	PersonID       string `json:"person_id"`
	Name           string `json:"name"`
	JurisdictionID string `json:"jurisdiction_id"`
	Fields         Fields `json:"fields"`
}

// Clone returns a deep copy of the record.
func (r ParsedRecord) Clone() ParsedRecord {
	r.Fields = r.Fields.Clone()
	return r
}

// Key identifies the observation history a snapshot belongs to.
type Key struct {
	Source   jurisdiction.SourceRef
	PersonID string
}

// Snapshot is one immutable, timestamped observation of a record.
type Snapshot struct {
	ID           string                 `json:"id"`
	Source       jurisdiction.SourceRef `json:"source"`
	Record       ParsedRecord           `json:"record"`
	ObservedAt   time.Time              `json:"observed_at"`
	RawFieldHash string                 `json:"raw_field_hash"`
}

// Key returns the (source, person) pair of the snapshot.
func (s Snapshot) Key() Key {
	return Key{Source: s.Source, PersonID: s.Record.PersonID}
}
