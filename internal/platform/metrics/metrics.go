// Package metrics exposes the Prometheus registry over HTTP. Module-level
// collectors are registered by each module's own metrics file via promauto.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds process-level collectors.
type Metrics struct {
	BuildInfo *prometheus.GaugeVec
}

// New creates and registers process-level metrics.
func New(service, environment string) *Metrics {
	m := &Metrics{
		BuildInfo: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "corridor_service_info",
			Help: "Static information about the running service",
		}, []string{"service", "environment"}),
	}
	m.BuildInfo.WithLabelValues(service, environment).Set(1)
	return m
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
