package httptransport

import (
	"custodywatch/internal/changeevent"
	"custodywatch/internal/health"
	"custodywatch/internal/jurisdiction"
	"custodywatch/internal/simulation"
	"custodywatch/pkg/platform/audit"
)

// AcknowledgeRequest is the body of POST /events/{id}/ack.
type AcknowledgeRequest struct {
	ActorID string `json:"actor_id"`
}

// EventListResponse is the response for GET /events.
type EventListResponse struct {
	Events []changeevent.ChangeEvent `json:"events"`
	Count  int                       `json:"count"`
}

// EventResponse is the response for GET /events/{id}.
type EventResponse struct {
	Event           changeevent.ChangeEvent     `json:"event"`
	Acknowledgement *simulation.Acknowledgement `json:"acknowledgement,omitempty"`
}

// AuditResponse is the response for GET /audit.
type AuditResponse struct {
	Entries []audit.Entry `json:"entries"`
	Count   int           `json:"count"`
	Total   int           `json:"total"`
}

// HealthResponse is the response for GET /health/counties.
type HealthResponse struct {
	Counties []health.CountyHealth `json:"counties"`
}

// JurisdictionResponse is one row of GET /jurisdictions.
type JurisdictionResponse struct {
	jurisdiction.Jurisdiction
	SourceKind jurisdiction.SourceKind `json:"source_kind"`
}

// JurisdictionsResponse is the response for GET /jurisdictions.
type JurisdictionsResponse struct {
	Jurisdictions []JurisdictionResponse `json:"jurisdictions"`
}

func fromDirectory(d *jurisdiction.Directory) *JurisdictionsResponse {
	entries := d.Entries()
	out := make([]JurisdictionResponse, len(entries))
	for i, e := range entries {
		out[i] = JurisdictionResponse{Jurisdiction: e.Jurisdiction, SourceKind: e.Source.SourceKind}
	}
	return &JurisdictionsResponse{Jurisdictions: out}
}
