package simulation

import (
	"encoding/json"
	"fmt"

	"custodywatch/internal/changeevent"
	"custodywatch/internal/health"
	"custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/sentinel"
)

// Restore rebuilds the last-snapshot table, the event table, acknowledgements
// and county health by replaying a persisted chain. It must run before the
// first tick; entries are expected to be verified already.
func (s *Service) Restore(entries []audit.Entry) error {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.last) > 0 || len(s.order) > 0 || s.clock.Ticks() > 0 {
		return fmt.Errorf("restore into a service that already ran: %w", sentinel.ErrInvalidState)
	}
	for _, e := range entries {
		if err := s.replay(e); err != nil {
			return fmt.Errorf("restore entry %d (%s): %w", e.Sequence, e.ActionType, err)
		}
	}

	for _, h := range s.tracker.All() {
		s.metrics.SetCountyStatus(h.JurisdictionID, statusLevel(h.Status))
	}
	s.metrics.SetPendingEvents(s.pendingCount())
	return nil
}

func (s *Service) replay(e audit.Entry) error {
	switch e.ActionType {
	case audit.ActionSnapshotTaken:
		var p snapshotTakenPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		snap := p.snapshot()
		s.last[snap.Key()] = snap
		s.tracker.Record(p.JurisdictionID, health.OutcomeSuccess, p.ObservedAt)

	case audit.ActionObservationFailed:
		var p observationFailedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		s.tracker.Record(p.JurisdictionID, health.OutcomeFailure, e.Timestamp)

	case audit.ActionEventEmitted:
		return s.replayCreated(e)

	case audit.ActionEventRejected:
		// Rejected at creation carries the event; rejected later carries the move.
		var p eventAdvancedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		if p.From == "" {
			return s.replayCreated(e)
		}
		return s.replayAdvanced(p, e)

	case audit.ActionEventAdvanced:
		var p eventAdvancedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		return s.replayAdvanced(p, e)

	case audit.ActionEventAcknowledged:
		var p eventAcknowledgedPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return err
		}
		if _, ok := s.events[p.EventID]; !ok {
			return fmt.Errorf("acknowledged event %s: %w", p.EventID, sentinel.ErrNotFound)
		}
		s.acks[p.EventID] = Acknowledgement{EventID: p.EventID, ActorID: e.ActorID, At: e.Timestamp, Sequence: e.Sequence}
	}
	return nil
}

func (s *Service) replayCreated(e audit.Entry) error {
	var p eventPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return err
	}
	ev := p.event()
	if _, dup := s.events[ev.ID]; dup {
		return fmt.Errorf("event %s emitted twice: %w", ev.ID, sentinel.ErrConflict)
	}
	s.events[ev.ID] = ev
	s.order = append(s.order, ev.ID)
	return nil
}

func (s *Service) replayAdvanced(p eventAdvancedPayload, e audit.Entry) error {
	ev, ok := s.events[p.EventID]
	if !ok {
		return fmt.Errorf("advanced event %s: %w", p.EventID, sentinel.ErrNotFound)
	}
	if ev.Status != p.From || !changeevent.CanTransition(p.From, p.To) {
		return fmt.Errorf("event %s is %s: %w: %s -> %s", p.EventID, ev.Status, changeevent.ErrInvalidTransition, p.From, p.To)
	}
	ev.Status = p.To
	ev.Confidence = p.Confidence
	if p.Reason != "" {
		ev.Reason = p.Reason
	}
	ev.UpdatedAt = e.Timestamp
	s.events[p.EventID] = ev
	return nil
}
