package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the simulation loop. A nil *Metrics
// records nothing.
type Metrics struct {
	Ticks         prometheus.Counter
	TickFailures  prometheus.Counter
	TickDuration  prometheus.Histogram
	Observations  *prometheus.CounterVec
	Events        *prometheus.CounterVec
	Transitions   *prometheus.CounterVec
	CountyStatus  *prometheus.GaugeVec
	PendingEvents prometheus.Gauge

	// SubscriberPanics counts handlers that panicked, by subscription.
	SubscriberPanics *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Ticks: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodywatch_simulation_ticks_total",
			Help: "Total number of simulation ticks run",
		}),
		TickFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodywatch_simulation_tick_failures_total",
			Help: "Total number of ticks that failed and were skipped",
		}),
		TickDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "custodywatch_simulation_tick_duration_seconds",
			Help:    "Wall time spent processing one tick",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		Observations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodywatch_simulation_observations_total",
			Help: "Observations attempted, by jurisdiction and outcome",
		}, []string{"jurisdiction_id", "outcome"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodywatch_simulation_events_emitted_total",
			Help: "Change events emitted, by initial status",
		}, []string{"status"}),
		Transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodywatch_simulation_event_transitions_total",
			Help: "Change event status advances, by target status",
		}, []string{"status"}),
		CountyStatus: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "custodywatch_simulation_county_status",
			Help: "County source status (0=online, 1=degraded, 2=offline)",
		}, []string{"jurisdiction_id"}),
		PendingEvents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "custodywatch_simulation_pending_events",
			Help: "Change events not yet in a terminal status",
		}),
		SubscriberPanics: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodywatch_simulation_subscriber_panics_total",
			Help: "Subscriber handlers that panicked, by subscription",
		}, []string{"subscription"}),
	}
}

func (m *Metrics) ObserveTick(d time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
	if failed {
		m.TickFailures.Inc()
	}
}

func (m *Metrics) IncObservation(jurisdictionID, outcome string) {
	if m == nil {
		return
	}
	m.Observations.WithLabelValues(jurisdictionID, outcome).Inc()
}

func (m *Metrics) IncEvent(status string) {
	if m == nil {
		return
	}
	m.Events.WithLabelValues(status).Inc()
}

func (m *Metrics) IncTransition(status string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(status).Inc()
}

// SetCountyStatus records a county's status as its ordinal.
func (m *Metrics) SetCountyStatus(jurisdictionID string, level int) {
	if m == nil {
		return
	}
	m.CountyStatus.WithLabelValues(jurisdictionID).Set(float64(level))
}

func (m *Metrics) SetPendingEvents(n int) {
	if m == nil {
		return
	}
	m.PendingEvents.Set(float64(n))
}

func (m *Metrics) IncSubscriberPanic(subscription string) {
	if m == nil {
		return
	}
	m.SubscriberPanics.WithLabelValues(subscription).Inc()
}
