package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the audit ledger. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Appended        *prometheus.CounterVec
	PersistFailures prometheus.Counter
	ChainLength     prometheus.Gauge
	ChainIntact     prometheus.Gauge
}

// NewMetrics creates ledger metrics registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Appended: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "custodywatch_audit_entries_appended_total",
			Help: "Total number of audit entries appended, by action category",
		}, []string{"category", "action"}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "custodywatch_audit_persist_failures_total",
			Help: "Total number of audit appends rejected because the store write failed",
		}),
		ChainLength: factory.NewGauge(prometheus.GaugeOpts{
			Name: "custodywatch_audit_chain_length",
			Help: "Number of entries in the audit chain",
		}),
		ChainIntact: factory.NewGauge(prometheus.GaugeOpts{
			Name: "custodywatch_audit_chain_intact",
			Help: "Result of the last chain verification (1=intact, 0=broken)",
		}),
	}
}

// ObserveAppend records a successful append.
func (m *Metrics) ObserveAppend(action ActionType, length int) {
	if m == nil {
		return
	}
	m.Appended.WithLabelValues(string(action.Category()), string(action)).Inc()
	m.ChainLength.Set(float64(length))
}

// SetChainLength records the chain length after a load.
func (m *Metrics) SetChainLength(length int) {
	if m == nil {
		return
	}
	m.ChainLength.Set(float64(length))
}

// IncPersistFailures increments the persist failures counter.
func (m *Metrics) IncPersistFailures() {
	if m == nil {
		return
	}
	m.PersistFailures.Inc()
}

// SetChainIntact records the last verification result.
func (m *Metrics) SetChainIntact(intact bool) {
	if m == nil {
		return
	}
	if intact {
		m.ChainIntact.Set(1)
	} else {
		m.ChainIntact.Set(0)
	}
}
