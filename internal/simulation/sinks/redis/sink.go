// Package redis mirrors county health and recent change events into Redis
// for dashboards that should not query the simulator directly.
package redis

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"custodywatch/internal/changeevent"
	"custodywatch/internal/health"
	"custodywatch/internal/simulation/sinks"
	"custodywatch/pkg/platform/circuit"
)

const (
	sinkName             = "redis"
	defaultFlushInterval = time.Second
)

// Writer persists one batch of mirror updates.
type Writer interface {
	Write(ctx context.Context, counties []health.CountyHealth, events []changeevent.Summary) error
}

// Sink coalesces health updates per county, so only the latest state of each
// county is written, and buffers event summaries in arrival order.
type Sink struct {
	writer  Writer
	breaker *circuit.Breaker
	logger  *slog.Logger
	metrics *sinks.Metrics

	mu       sync.Mutex
	counties map[string]health.CountyHealth
	events   *sinks.RingBuffer[changeevent.Summary]

	notify        chan struct{}
	flushInterval time.Duration
}

// Option configures the Sink.
type Option func(*Sink)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func WithMetrics(m *sinks.Metrics) Option {
	return func(s *Sink) {
		s.metrics = m
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Sink) {
		s.breaker = b
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// New creates a sink writing through w.
func New(w Writer, opts ...Option) *Sink {
	s := &Sink{
		writer:        w,
		breaker:       circuit.New(sinkName, circuit.WithFailureThreshold(3)),
		logger:        slog.New(slog.DiscardHandler),
		counties:      make(map[string]health.CountyHealth),
		events:        sinks.NewRingBuffer[changeevent.Summary](256),
		notify:        make(chan struct{}, 1),
		flushInterval: defaultFlushInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleHealthUpdate records the latest state of a county. It never blocks
// on the network.
func (s *Sink) HandleHealthUpdate(h health.CountyHealth) {
	s.mu.Lock()
	s.counties[h.JurisdictionID] = h
	s.mu.Unlock()
	s.wake()
}

// HandleChangeEvent queues an event summary.
func (s *Sink) HandleChangeEvent(e changeevent.ChangeEvent) {
	if s.events.Enqueue(e.Summarize()) {
		s.metrics.IncDropped(sinkName)
	}
	s.wake()
}

func (s *Sink) wake() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Run flushes until ctx is cancelled, then makes one final attempt.
func (s *Sink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			_ = s.Flush(flushCtx)
			cancel()
			return nil
		case <-s.notify:
		case <-ticker.C:
		}
		_ = s.Flush(ctx)
	}
}

// Flush writes pending county states and events as one batch. On failure the
// batch stays pending, unless a newer state for the same county arrived.
func (s *Sink) Flush(ctx context.Context) error {
	if !s.breaker.Allow() {
		return nil
	}

	s.mu.Lock()
	pending := s.counties
	s.counties = make(map[string]health.CountyHealth)
	s.mu.Unlock()

	events, end := s.events.Peek(s.events.Len())
	if len(pending) == 0 && len(events) == 0 {
		return nil
	}

	counties := make([]health.CountyHealth, 0, len(pending))
	for _, h := range pending {
		counties = append(counties, h)
	}
	sort.Slice(counties, func(i, j int) bool { return counties[i].JurisdictionID < counties[j].JurisdictionID })

	if err := s.writer.Write(ctx, counties, events); err != nil {
		s.requeue(pending)
		s.metrics.IncFailures(sinkName)
		if _, change := s.breaker.RecordFailure(); change.Opened {
			s.metrics.SetCircuitState(sinkName, true)
			s.logger.WarnContext(ctx, "redis sink circuit opened", "error", err)
		}
		return err
	}

	s.events.Commit(end)
	s.metrics.AddDelivered(sinkName, len(counties)+len(events))
	if _, change := s.breaker.RecordSuccess(); change.Closed {
		s.metrics.SetCircuitState(sinkName, false)
		s.logger.InfoContext(ctx, "redis sink circuit closed")
	}
	return nil
}

func (s *Sink) requeue(batch map[string]health.CountyHealth) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, h := range batch {
		if _, newer := s.counties[id]; !newer {
			s.counties[id] = h
		}
	}
}
