package simulation

import (
	"context"
	"fmt"
	"time"

	"custodywatch/pkg/platform/audit"
	"custodywatch/pkg/platform/sentinel"
)

const minTickDelay = time.Millisecond

// Start records simulation_started and launches the clock goroutine. The
// loop stops when ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.done != nil {
		return fmt.Errorf("simulation already running: %w", sentinel.ErrInvalidState)
	}

	if _, err := s.audit.Append(ctx, audit.ActionSimulationStarted, simulationStartedPayload{
		Seed:          s.cfg.Seed,
		TickInterval:  s.cfg.TickInterval.String(),
		Jurisdictions: s.directory.IDs(),
		Tick:          s.clock.Ticks(),
	}, s.cfg.ActorID); err != nil {
		return fmt.Errorf("start simulation: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)

	s.logger.InfoContext(ctx, "simulation started",
		"seed", s.cfg.Seed,
		"tick_interval", s.cfg.TickInterval,
		"jurisdictions", s.directory.Len(),
	)
	return nil
}

// Stop halts the clock and waits for an in-flight tick to finish. A tick
// whose timer already fired but has not started is cancelled. After Stop
// returns no tick runs. It then records simulation_stopped.
func (s *Service) Stop(ctx context.Context) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.done == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil

	s.mu.RLock()
	events := len(s.order)
	s.mu.RUnlock()
	ticks := s.clock.Ticks()

	if _, err := s.audit.Append(ctx, audit.ActionSimulationStopped, simulationStoppedPayload{
		Tick:   ticks,
		Events: events,
	}, s.cfg.ActorID); err != nil {
		return fmt.Errorf("stop simulation: %w", err)
	}
	s.logger.InfoContext(ctx, "simulation stopped", "ticks", ticks, "events", events)
	return nil
}

// Running reports whether the clock goroutine is active.
func (s *Service) Running() bool {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.done != nil
}

func (s *Service) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(s.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		// The timer and cancellation can be ready together; cancellation wins.
		if ctx.Err() != nil {
			return
		}

		// A started tick runs to completion so its entries are never split.
		if _, err := s.Tick(context.WithoutCancel(ctx)); err != nil {
			s.logger.ErrorContext(ctx, "tick skipped", "error", err)
		}
		timer.Reset(s.nextDelay())
	}
}

// nextDelay draws the wall-clock delay to the next tick from the cadence
// stream, which is separate from the streams that shape events.
func (s *Service) nextDelay() time.Duration {
	d := s.cfg.TickInterval
	if j := s.cfg.TickJitter; j > 0 {
		d += time.Duration(s.cadence.Int64N(int64(2*j)+1)) - j
	}
	return max(d, minTickDelay)
}
