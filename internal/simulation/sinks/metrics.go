package sinks

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds delivery metrics for all sinks, labelled by sink name.
// A nil *Metrics records nothing.
type Metrics struct {
	Delivered    *prometheus.CounterVec
	Failures     *prometheus.CounterVec
	Dropped      *prometheus.CounterVec
	CircuitState *prometheus.GaugeVec
	Pending      *prometheus.GaugeVec
}

// NewMetrics creates sink metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodywatch_sink_delivered_total",
			Help: "Total number of records delivered downstream",
		}, []string{"sink"}),
		Failures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodywatch_sink_failures_total",
			Help: "Total number of failed delivery attempts",
		}, []string{"sink"}),
		Dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodywatch_sink_dropped_total",
			Help: "Total number of records evicted from a full buffer",
		}, []string{"sink"}),
		CircuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "custodywatch_sink_circuit_breaker_state",
			Help: "Current circuit breaker state (0=closed/healthy, 1=open/unhealthy)",
		}, []string{"sink"}),
		Pending: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "custodywatch_sink_pending",
			Help: "Records buffered awaiting delivery",
		}, []string{"sink"}),
	}
}

func (m *Metrics) AddDelivered(sink string, n int) {
	if m == nil {
		return
	}
	m.Delivered.WithLabelValues(sink).Add(float64(n))
}

func (m *Metrics) IncFailures(sink string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(sink).Inc()
}

func (m *Metrics) IncDropped(sink string) {
	if m == nil {
		return
	}
	m.Dropped.WithLabelValues(sink).Inc()
}

func (m *Metrics) SetPending(sink string, n int) {
	if m == nil {
		return
	}
	m.Pending.WithLabelValues(sink).Set(float64(n))
}

// SetCircuitState sets the circuit breaker state gauge.
func (m *Metrics) SetCircuitState(sink string, open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitState.WithLabelValues(sink).Set(1)
	} else {
		m.CircuitState.WithLabelValues(sink).Set(0)
	}
}
