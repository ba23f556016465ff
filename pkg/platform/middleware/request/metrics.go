package request

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	EndpointLatency *prometheus.HistogramVec
}

// NewMetrics registers the latency histogram with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegisterer(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		EndpointLatency: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardvault_http_endpoint_latency_seconds",
			Help:    "Latency of simulator HTTP endpoints in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),
	}
}

func (m *Metrics) ObserveEndpointLatency(endpoint, method string, durationSeconds float64) {
	m.EndpointLatency.WithLabelValues(endpoint, method).Observe(durationSeconds)
}
