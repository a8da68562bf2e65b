// Package kafka publishes change-event summaries to a Kafka topic, keyed by
// event ID so a compacted topic keeps each event's latest status.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"custodywatch/internal/changeevent"
	"custodywatch/internal/simulation/sinks"
	"custodywatch/pkg/platform/circuit"
)

const (
	sinkName             = "kafka"
	defaultBatchSize     = 64
	defaultFlushInterval = 500 * time.Millisecond
)

// Producer writes one keyed record.
type Producer interface {
	Produce(ctx context.Context, key, value []byte) error
}

// Sink buffers summaries handed over by the tick loop and delivers them from
// its own goroutine. Delivery failures trip a circuit breaker; records stay
// buffered (oldest evicted on overflow) until the breaker admits a probe.
type Sink struct {
	producer      Producer
	buffer        *sinks.RingBuffer[changeevent.Summary]
	breaker       *circuit.Breaker
	notify        chan struct{}
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger
	metrics       *sinks.Metrics
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

func WithBufferSize(n int) Option {
	return func(s *Sink) {
		s.buffer = sinks.NewRingBuffer[changeevent.Summary](n)
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.flushInterval = d
		}
	}
}

// New creates a sink writing through producer.
func New(producer Producer, opts ...Option) *Sink {
	s := &Sink{
		producer:      producer,
		buffer:        sinks.NewRingBuffer[changeevent.Summary](0),
		breaker:       circuit.New(sinkName, circuit.WithFailureThreshold(3)),
		notify:        make(chan struct{}, 1),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		logger:        slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HandleChangeEvent queues an emitted or advanced event. It never blocks.
func (s *Sink) HandleChangeEvent(e changeevent.ChangeEvent) {
	if s.buffer.Enqueue(e.Summarize()) {
		s.metrics.IncDropped(sinkName)
	}
	s.metrics.SetPending(sinkName, s.buffer.Len())
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of undelivered summaries.
func (s *Sink) Pending() int {
	return s.buffer.Len()
}

// Run delivers buffered summaries until ctx is cancelled, then makes one
// final attempt with a short grace period.
func (s *Sink) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			s.Flush(flushCtx)
			cancel()
			return nil
		case <-s.notify:
		case <-ticker.C:
		}
		s.Flush(ctx)
	}
}

// Flush delivers as much of the buffer as the breaker allows. Summaries are
// removed only once the broker has acknowledged them.
func (s *Sink) Flush(ctx context.Context) {
	for s.buffer.Len() > 0 && s.breaker.Allow() {
		batch, end := s.buffer.Peek(s.batchSize)
		delivered := 0
		for _, sum := range batch {
			if err := s.publish(ctx, sum); err != nil {
				s.metrics.IncFailures(sinkName)
				_, change := s.breaker.RecordFailure()
				if change.Opened {
					s.metrics.SetCircuitState(sinkName, true)
					s.logger.WarnContext(ctx, "kafka sink circuit opened", "pending", s.buffer.Len(), "error", err)
				}
				break
			}
			if _, change := s.breaker.RecordSuccess(); change.Closed {
				s.metrics.SetCircuitState(sinkName, false)
				s.logger.InfoContext(ctx, "kafka sink circuit closed")
			}
			delivered++
		}
		s.buffer.Commit(end - uint64(len(batch)-delivered))
		s.metrics.AddDelivered(sinkName, delivered)
		s.metrics.SetPending(sinkName, s.buffer.Len())
		if delivered < len(batch) {
			return
		}
	}
}

func (s *Sink) publish(ctx context.Context, sum changeevent.Summary) error {
	value, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	return s.producer.Produce(ctx, []byte(sum.EventID), value)
}
