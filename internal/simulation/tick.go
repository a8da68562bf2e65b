package simulation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"custodywatch/internal/changeevent"
	"custodywatch/internal/diff"
	"custodywatch/internal/health"
	"custodywatch/internal/jurisdiction"
	"custodywatch/internal/snapshot"
	"custodywatch/pkg/platform/audit"
)

var tracer = otel.Tracer("custodywatch.simulation")

// Outcome classifies what the observation step of a tick did.
type Outcome string

const (
	OutcomeObserved    Outcome = "observed"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeNoRoster    Outcome = "no_roster"
)

// TickResult describes one tick.
type TickResult struct {
	Tick           uint64
	At             time.Time
	JurisdictionID string
	PersonID       string
	Outcome        Outcome
	Snapshot       *snapshot.Snapshot
	Diff           *diff.Diff
	Event          *changeevent.ChangeEvent
	Transitions    []EventTransition
	// Health is set when the tick changed the county's health.
	Health  *health.CountyHealth
	Entries []audit.Entry
}

type notifications struct {
	transitions []EventTransition
	events      []changeevent.ChangeEvent
	health      []health.CountyHealth
}

// Tick runs one full cycle. The simulated clock advances even when the tick
// fails. Panics are recovered into ErrTickFailed.
func (s *Service) Tick(ctx context.Context) (res TickResult, err error) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	tick, at := s.clock.Advance()
	res = TickResult{Tick: tick, At: at}

	ctx, span := tracer.Start(ctx, "simulation.Tick", trace.WithAttributes(
		attribute.Int64("simulation.tick", int64(tick)),
	))
	started := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: tick %d: panic: %v", ErrTickFailed, tick, r)
			s.logger.ErrorContext(ctx, "tick panicked",
				"tick", tick,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
		span.SetAttributes(
			attribute.String("simulation.jurisdiction_id", res.JurisdictionID),
			attribute.String("simulation.outcome", string(res.Outcome)),
			attribute.Int("simulation.entries", len(res.Entries)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "tick failed")
		}
		span.End()
		s.metrics.ObserveTick(time.Since(started), err != nil)
	}()

	var out notifications
	runErr := s.runTick(ctx, &res, &out)
	s.dispatch(ctx, out)
	if runErr != nil {
		return res, fmt.Errorf("%w: tick %d: %w", ErrTickFailed, tick, runErr)
	}
	return res, nil
}

func (s *Service) runTick(ctx context.Context, res *TickResult, out *notifications) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.verificationPass(ctx, res, out); err != nil {
		return err
	}

	ids := s.directory.IDs()
	jid := ids[s.picks.IntN(len(ids))]
	seed := s.picks.Uint64()
	res.JurisdictionID = jid

	src, ok := s.directory.Source(jid)
	if !ok {
		panic(fmt.Sprintf("jurisdiction %s listed but has no source", jid))
	}

	person, ok := s.picker.Pick(jid, seed)
	if !ok {
		res.Outcome = OutcomeNoRoster
		s.logger.DebugContext(ctx, "no roster for jurisdiction", "jurisdiction_id", jid, "tick", res.Tick)
		return nil
	}
	res.PersonID = person.PersonID

	key := snapshot.Key{Source: src, PersonID: person.PersonID}
	var prior *snapshot.Snapshot
	if p, ok := s.last[key]; ok {
		prior = &p
	}

	snap, err := s.observer.Observe(src, person, prior, res.At)
	if err != nil {
		if !errors.Is(err, snapshot.ErrSourceUnavailable) {
			return fmt.Errorf("observe %s: %w", src, err)
		}
		return s.observationFailed(ctx, res, out, src, person.PersonID, err)
	}
	res.Outcome = OutcomeObserved
	res.Snapshot = &snap
	s.metrics.IncObservation(jid, health.OutcomeSuccess.String())

	var event *changeevent.ChangeEvent
	if prior != nil {
		d := diff.Compute(*prior, snap)
		res.Diff = &d
		event = s.scorer.Score(d, s.tracker.Get(jid), res.At)
	}

	s.recordHealth(jid, health.OutcomeSuccess, res, out)

	if err := s.append(ctx, res, audit.ActionSnapshotTaken, newSnapshotTaken(snap)); err != nil {
		return err
	}
	s.last[key] = snap

	switch {
	case prior == nil:
		return nil
	case event == nil:
		return s.append(ctx, res, audit.ActionDiffComputed, diffComputedPayload{
			FromSnapshotID: prior.ID,
			ToSnapshotID:   snap.ID,
			JurisdictionID: jid,
			PersonID:       person.PersonID,
		})
	}

	action := audit.ActionEventEmitted
	if event.Status == changeevent.StatusRejected {
		action = audit.ActionEventRejected
	}
	if err := s.append(ctx, res, action, newEventPayload(*event)); err != nil {
		return err
	}

	if _, dup := s.events[event.ID]; dup {
		panic(fmt.Sprintf("duplicate change event %s", event.ID))
	}
	s.events[event.ID] = *event
	s.order = append(s.order, event.ID)
	res.Event = event
	out.events = append(out.events, *event)

	s.metrics.IncEvent(string(event.Status))
	s.metrics.SetPendingEvents(s.pendingCount())
	s.logger.InfoContext(ctx, "change event emitted",
		"event_id", event.ID,
		"jurisdiction_id", jid,
		"person_id", person.PersonID,
		"status", event.Status,
		"confidence", event.Confidence,
	)
	return nil
}

func (s *Service) observationFailed(ctx context.Context, res *TickResult, out *notifications, src jurisdiction.SourceRef, personID string, cause error) error {
	res.Outcome = OutcomeUnavailable
	s.metrics.IncObservation(src.JurisdictionID, health.OutcomeFailure.String())

	h := s.recordHealth(src.JurisdictionID, health.OutcomeFailure, res, out)
	s.logger.WarnContext(ctx, "observation failed",
		"jurisdiction_id", src.JurisdictionID,
		"person_id", personID,
		"status", h.Status,
		"consecutive_failures", h.ConsecutiveFailures,
	)
	return s.append(ctx, res, audit.ActionObservationFailed, observationFailedPayload{
		JurisdictionID:      src.JurisdictionID,
		SourceKind:          string(src.SourceKind),
		PersonID:            personID,
		Error:               cause.Error(),
		Status:              h.Status,
		ConsecutiveFailures: h.ConsecutiveFailures,
	})
}

func (s *Service) recordHealth(jid string, outcome health.Outcome, res *TickResult, out *notifications) health.CountyHealth {
	h, changed := s.tracker.Record(jid, outcome, res.At)
	if changed {
		res.Health = &h
		out.health = append(out.health, h)
		s.metrics.SetCountyStatus(jid, statusLevel(h.Status))
	}
	return h
}

// verificationPass advances every pending event one stage, oldest first.
func (s *Service) verificationPass(ctx context.Context, res *TickResult, out *notifications) error {
	for _, id := range s.order {
		e := s.events[id]
		if e.Status.IsTerminal() {
			continue
		}

		next, err := s.advance(e, res.At)
		if err != nil {
			return err
		}

		action := audit.ActionEventAdvanced
		if next.Status == changeevent.StatusRejected {
			action = audit.ActionEventRejected
		}
		if err := s.append(ctx, res, action, eventAdvancedPayload{
			EventID:    id,
			From:       e.Status,
			To:         next.Status,
			Confidence: next.Confidence,
			Reason:     next.Reason,
		}); err != nil {
			return err
		}

		s.events[id] = next
		tr := EventTransition{EventID: id, From: e.Status, To: next.Status, At: res.At, Event: next}
		res.Transitions = append(res.Transitions, tr)
		out.transitions = append(out.transitions, tr)
		s.metrics.IncTransition(string(next.Status))
		s.logger.DebugContext(ctx, "change event advanced", "event_id", id, "from", e.Status, "to", next.Status)
	}
	s.metrics.SetPendingEvents(s.pendingCount())
	return nil
}

// advance computes an event's next stage. Resolve confirms the person is on
// the roster; leaving Verify re-scores against the county's current health.
func (s *Service) advance(e changeevent.ChangeEvent, at time.Time) (changeevent.ChangeEvent, error) {
	switch e.Status {
	case changeevent.StatusIntake:
		if _, ok := s.picker.Lookup(e.Source.JurisdictionID, e.PersonID); !ok {
			return e.Reject("person not found on roster", at)
		}
		return e.Transition(changeevent.StatusResolve, at)
	case changeevent.StatusResolve:
		return e.Transition(changeevent.StatusVerify, at)
	case changeevent.StatusVerify:
		rescored := s.scorer.Rescore(e, s.tracker.Get(e.Source.JurisdictionID), at)
		if !s.scorer.Accepts(rescored.Confidence) {
			return rescored.Reject(fmt.Sprintf("confidence %.2f below %.2f on verification",
				rescored.Confidence, s.scorer.Policy().RejectBelow), at)
		}
		return rescored.Transition(changeevent.StatusStable, at)
	}
	return e, fmt.Errorf("advance %s: %w: status %s", e.ID, changeevent.ErrInvalidTransition, e.Status)
}

func (s *Service) append(ctx context.Context, res *TickResult, action audit.ActionType, payload any) error {
	entry, err := s.audit.Append(ctx, action, payload, s.cfg.ActorID)
	if err != nil {
		return fmt.Errorf("append %s: %w", action, err)
	}
	res.Entries = append(res.Entries, entry)
	return nil
}

// dispatch notifies subscribers after the tick's state is committed. A
// panicking handler is logged and skipped; it never fails the tick.
func (s *Service) dispatch(ctx context.Context, out notifications) {
	for _, tr := range out.transitions {
		s.onTransition.publish(tr, s.subscriberPanicked(ctx, "event_transition"))
	}
	for _, e := range out.events {
		s.onEvent.publish(e, s.subscriberPanicked(ctx, "change_event"))
	}
	for _, h := range out.health {
		s.onHealth.publish(h, s.subscriberPanicked(ctx, "health_update"))
	}
}

func (s *Service) subscriberPanicked(ctx context.Context, subscription string) func(any) {
	return func(p any) {
		s.metrics.IncSubscriberPanic(subscription)
		s.logger.ErrorContext(ctx, "subscriber panicked",
			"subscription", subscription,
			"panic", fmt.Sprint(p),
			"stack", string(debug.Stack()),
		)
	}
}

func statusLevel(st health.Status) int {
	switch st {
	case health.StatusDegraded:
		return 1
	case health.StatusOffline:
		return 2
	}
	return 0
}
