package emitter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Deliveries   *prometheus.CounterVec
	Latency      prometheus.Histogram
	CircuitState prometheus.Gauge
}

func NewMetrics() *Metrics {
	return &Metrics{
		Deliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corridor_audit_deliveries_total",
			Help: "Audit records by outcome (delivered, failed, local, dropped_*)",
		}, []string{"outcome"}),
		Latency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "corridor_audit_delivery_duration_ms",
			Help:    "Time spent posting one audit record",
			Buckets: []float64{5, 25, 100, 250, 500, 1000, 3000},
		}),
		CircuitState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "corridor_audit_circuit_open",
			Help: "1 while audit delivery is short-circuited",
		}),
	}
}

func (m *Metrics) record(outcome string) {
	if m == nil {
		return
	}
	m.Deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observe(d time.Duration) {
	if m == nil {
		return
	}
	m.Latency.Observe(float64(d.Milliseconds()))
}

func (m *Metrics) setCircuit(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitState.Set(1)
		return
	}
	m.CircuitState.Set(0)
}
