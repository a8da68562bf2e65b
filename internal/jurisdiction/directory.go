// Package jurisdiction holds the static table of covered counties and the
// record-keeping sources the simulator observes for each of them.
package jurisdiction

import "sort"

// SourceKind identifies the kind of record-keeping system behind a source.
type SourceKind string

const (
	SourceJailRoster  SourceKind = "jail_roster"
	SourceCourtDocket SourceKind = "court_docket"
	SourceBookingFeed SourceKind = "booking_feed"
)

// IsValid checks if the source kind is one of the supported values.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceJailRoster, SourceCourtDocket, SourceBookingFeed:
		return true
	}
	return false
}

// Jurisdiction is a covered county. Immutable after load.
type Jurisdiction struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	StateCode string `json:"state_code" yaml:"state_code"`
}

// SourceRef points at one jurisdiction's record-keeping system.
type SourceRef struct {
	JurisdictionID string     `json:"jurisdiction_id"`
	SourceKind     SourceKind `json:"source_kind"`
}

// String renders the ref as "<jurisdiction>/<kind>".
func (r SourceRef) String() string {
	return r.JurisdictionID + "/" + string(r.SourceKind)
}

// Entry binds a jurisdiction to the source the simulator polls for it.
type Entry struct {
	Jurisdiction Jurisdiction
	Source       SourceRef
}

// Directory is a read-only lookup over the coverage table.
type Directory struct {
	entries []Entry
	byID    map[string]Entry
}

// NewDirectory builds a directory from entries. Entries are sorted by ID so
// iteration order never depends on input order. Later duplicates are ignored.
func NewDirectory(entries []Entry) *Directory {
	d := &Directory{byID: make(map[string]Entry, len(entries))}
	for _, e := range entries {
		if _, exists := d.byID[e.Jurisdiction.ID]; exists {
			continue
		}
		d.byID[e.Jurisdiction.ID] = e
		d.entries = append(d.entries, e)
	}
	sort.Slice(d.entries, func(i, j int) bool {
		return d.entries[i].Jurisdiction.ID < d.entries[j].Jurisdiction.ID
	})
	return d
}

// Default returns the built-in coverage table.
func Default() *Directory {
	return NewDirectory(coverage)
}

// Get returns the entry for a jurisdiction ID.
func (d *Directory) Get(id string) (Entry, bool) {
	e, ok := d.byID[id]
	return e, ok
}

// Source returns the source ref for a jurisdiction ID.
func (d *Directory) Source(id string) (SourceRef, bool) {
	e, ok := d.byID[id]
	return e.Source, ok
}

// Entries returns a copy of all entries in ID order.
func (d *Directory) Entries() []Entry {
	return append([]Entry(nil), d.entries...)
}

// IDs returns all jurisdiction IDs in order.
func (d *Directory) IDs() []string {
	ids := make([]string, len(d.entries))
	for i, e := range d.entries {
		ids[i] = e.Jurisdiction.ID
	}
	return ids
}

// Len returns the number of covered jurisdictions.
func (d *Directory) Len() int {
	return len(d.entries)
}

func entry(id, name, state string, kind SourceKind) Entry {
	return Entry{
		Jurisdiction: Jurisdiction{ID: id, Name: name, StateCode: state},
		Source:       SourceRef{JurisdictionID: id, SourceKind: kind},
	}
}

var coverage = []Entry{
	entry("AZ-01", "Maricopa County", "AZ", SourceJailRoster),
	entry("CA-01", "Los Angeles County", "CA", SourceBookingFeed),
	entry("CA-02", "San Diego County", "CA", SourceJailRoster),
	entry("FL-01", "Miami-Dade County", "FL", SourceBookingFeed),
	entry("FL-02", "Broward County", "FL", SourceJailRoster),
	entry("GA-01", "Fulton County", "GA", SourceCourtDocket),
	entry("IL-01", "Cook County", "IL", SourceJailRoster),
	entry("NY-01", "Kings County", "NY", SourceCourtDocket),
	entry("TX-01", "Harris County", "TX", SourceJailRoster),
	entry("TX-02", "Dallas County", "TX", SourceBookingFeed),
	entry("WY-01", "Teton County", "WY", SourceCourtDocket),
}
