// Package httptransport exposes the simulator's read API and the
// acknowledge action over HTTP. Handlers only translate; the simulation
// service owns every decision.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"custodywatch/internal/changeevent"
	"custodywatch/internal/health"
	"custodywatch/internal/jurisdiction"
	"custodywatch/internal/simulation"
	"custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/httputil"
	"custodywatch/pkg/requestcontext"
)

// Service is the part of the simulation the HTTP layer reads and drives.
type Service interface {
	Events() []changeevent.ChangeEvent
	Event(id string) (changeevent.ChangeEvent, bool)
	Acknowledgement(id string) (simulation.Acknowledgement, bool)
	Acknowledge(ctx context.Context, eventID, actorID string) (simulation.Acknowledgement, error)
	Health() []health.CountyHealth
	AuditLog() []audit.Entry
	VerifyChain() audit.IntegrityReport
}

// Handler wires endpoints to the simulation service.
type Handler struct {
	service   Service
	directory *jurisdiction.Directory
	logger    *slog.Logger
}

// NewHandler constructs a handler. A nil logger discards.
func NewHandler(service Service, directory *jurisdiction.Directory, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{service: service, directory: directory, logger: logger}
}

// Register mounts the endpoints on r.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit", h.handleAudit)
	r.Get("/audit/verify", h.handleVerify)
	r.Get("/events", h.handleListEvents)
	r.Get("/events/{id}", h.handleGetEvent)
	r.Post("/events/{id}/ack", h.handleAcknowledge)
	r.Get("/health/counties", h.handleHealth)
	r.Get("/jurisdictions", h.handleJurisdictions)
}

// handleAudit serves GET /audit?after=<sequence>&limit=<n>.
func (h *Handler) handleAudit(w http.ResponseWriter, r *http.Request) {
	after, err := queryUint(r, "after", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	limit, err := queryUint(r, "limit", 0)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	entries := h.service.AuditLog()
	total := len(entries)
	// Sequences start at 1 and are dense.
	if after >= uint64(total) {
		entries = nil
	} else {
		entries = entries[after:]
	}
	if limit > 0 && uint64(len(entries)) > limit {
		entries = entries[:limit]
	}
	if entries == nil {
		entries = []audit.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, &AuditResponse{Entries: entries, Count: len(entries), Total: total})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	report := h.service.VerifyChain()
	if !report.Intact {
		h.logger.WarnContext(r.Context(), "audit chain verification failed",
			"request_id", requestcontext.RequestID(r.Context()),
			"broken_sequence", report.BrokenSequence,
			"reason", report.Reason,
		)
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// handleListEvents serves GET /events, optionally filtered by ?status=.
func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events := h.service.Events()
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := changeevent.Status(raw)
		if !status.IsValid() {
			httputil.WriteError(w, httputil.BadRequest("unknown status %q", raw))
			return
		}
		filtered := events[:0]
		for _, e := range events {
			if e.Status == status {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	httputil.WriteJSON(w, http.StatusOK, &EventListResponse{Events: events, Count: len(events)})
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	e, ok := h.service.Event(id)
	if !ok {
		httputil.WriteError(w, &httputil.Error{
			Status:      http.StatusNotFound,
			Code:        httputil.CodeNotFound,
			Description: "event " + id + " not found",
		})
		return
	}
	resp := &EventResponse{Event: e}
	if ack, ok := h.service.Acknowledgement(id); ok {
		resp.Acknowledgement = &ack
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	id := chi.URLParam(r, "id")

	req, err := httputil.DecodeJSON[AcknowledgeRequest](w, r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if req.ActorID == "" {
		httputil.WriteError(w, httputil.BadRequest("actor_id is required"))
		return
	}

	ack, err := h.service.Acknowledge(ctx, id, req.ActorID)
	if err != nil {
		h.logger.WarnContext(ctx, "acknowledge failed",
			"request_id", requestID,
			"event_id", id,
			"actor_id", req.ActorID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ack)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, &HealthResponse{Counties: h.service.Health()})
}

func (h *Handler) handleJurisdictions(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, fromDirectory(h.directory))
}

func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, httputil.BadRequest("%s must be a non-negative integer", name)
	}
	return v, nil
}
