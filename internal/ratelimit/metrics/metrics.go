package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Decisions    *prometheus.CounterVec
	FailOpen     *prometheus.CounterVec
	Refunds      *prometheus.CounterVec
	CircuitState prometheus.Gauge
}

func New() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corridor_ratelimit_decisions_total",
			Help: "Admission decisions by policy and outcome",
		}, []string{"policy", "outcome"}),
		FailOpen: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corridor_ratelimit_fail_open_total",
			Help: "Requests admitted without consulting the counter store",
		}, []string{"policy", "reason"}),
		Refunds: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corridor_ratelimit_refunds_total",
			Help: "Admissions refunded after a successful response",
		}, []string{"policy"}),
		CircuitState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "corridor_ratelimit_store_circuit_open",
			Help: "1 while the counter store circuit breaker is open",
		}),
	}
}

func (m *Metrics) RecordDecision(policy string, allowed bool) {
	outcome := "allowed"
	if !allowed {
		outcome = "rejected"
	}
	m.Decisions.WithLabelValues(policy, outcome).Inc()
}

func (m *Metrics) RecordFailOpen(policy, reason string) {
	m.FailOpen.WithLabelValues(policy, reason).Inc()
}

func (m *Metrics) RecordRefund(policy string) {
	m.Refunds.WithLabelValues(policy).Inc()
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if open {
		m.CircuitState.Set(1)
		return
	}
	m.CircuitState.Set(0)
}
