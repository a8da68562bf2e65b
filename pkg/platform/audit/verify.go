package audit

import "custodywatch/pkg/platform/hashing"

// IntactIndex is the BrokenIndex of a report with no broken link.
const IntactIndex = -1

// Reason names the check an entry failed.
type Reason string

const (
	ReasonNone        Reason = ""
	ReasonSequenceGap Reason = "sequence gap"
	ReasonPrevLink    Reason = "prev link mismatch"
	ReasonPayload     Reason = "payload mismatch"
	ReasonEntryHash   Reason = "entry hash mismatch"
)

// IntegrityReport is the outcome of a chain verification. Checked counts the
// entries examined, including the broken one.
type IntegrityReport struct {
	Intact         bool   `json:"intact"`
	Checked        int    `json:"checked"`
	BrokenIndex    int    `json:"broken_index"`
	BrokenSequence uint64 `json:"broken_sequence,omitempty"`
	Reason         Reason `json:"reason,omitempty"`
}

// Verify walks entries from the genesis link and reports the first entry that
// fails any check. It never errors and never panics.
func Verify(entries []Entry) IntegrityReport {
	prev := GenesisHash
	for i, e := range entries {
		if reason := check(e, uint64(i)+1, prev); reason != ReasonNone {
			return IntegrityReport{
				Checked:        i + 1,
				BrokenIndex:    i,
				BrokenSequence: e.Sequence,
				Reason:         reason,
			}
		}
		prev = e.EntryHash
	}
	return IntegrityReport{Intact: true, Checked: len(entries), BrokenIndex: IntactIndex}
}

func check(e Entry, wantSeq uint64, wantPrev string) Reason {
	switch {
	case e.Sequence != wantSeq:
		return ReasonSequenceGap
	case e.PrevEntryHash != wantPrev:
		return ReasonPrevLink
	case e.Payload != nil && hashing.PayloadBytes(e.Payload) != e.PayloadHash:
		return ReasonPayload
	case e.ComputeHash() != e.EntryHash:
		return ReasonEntryHash
	}
	return ReasonNone
}
