package eventbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers both bus roles. Construct once per process.
type Metrics struct {
	Published      *prometheus.CounterVec
	Consumed       *prometheus.CounterVec
	Reconnects     *prometheus.CounterVec
	ConsumerState  prometheus.Gauge
	HandleDuration prometheus.Histogram
}

func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corridor_eventbus_published_total",
			Help: "Publish attempts by event type and outcome",
		}, []string{"event_type", "outcome"}),
		Consumed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corridor_eventbus_consumed_total",
			Help: "Deliveries by routing key and outcome (acked, rejected)",
		}, []string{"routing_key", "outcome"}),
		Reconnects: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "corridor_eventbus_reconnects_total",
			Help: "Broker connection attempts by role and outcome",
		}, []string{"role", "outcome"}),
		ConsumerState: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "corridor_eventbus_consumer_state",
			Help: "0=disconnected 1=connecting 2=declaring_topology 3=consuming",
		}),
		HandleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "corridor_eventbus_handle_duration_ms",
			Help:    "Time spent handling one delivery",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 1000, 3000},
		}),
	}
}

func (m *Metrics) recordPublish(t EventType, outcome string) {
	if m == nil {
		return
	}
	m.Published.WithLabelValues(string(t), outcome).Inc()
}

func (m *Metrics) recordConsume(routingKey, outcome string) {
	if m == nil {
		return
	}
	m.Consumed.WithLabelValues(routingKey, outcome).Inc()
}

func (m *Metrics) recordConnect(role string, ok bool) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.Reconnects.WithLabelValues(role, outcome).Inc()
}

func (m *Metrics) setConsumerState(s ConsumerState) {
	if m == nil {
		return
	}
	m.ConsumerState.Set(float64(s))
}

func (m *Metrics) observeHandle(ms float64) {
	if m == nil {
		return
	}
	m.HandleDuration.Observe(ms)
}
