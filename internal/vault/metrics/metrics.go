// Package metrics provides Prometheus metrics for vault calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess         = "success"
	OutcomeFailure         = "failure"
	OutcomeRejectedLocally = "rejected_locally"
	OutcomeError           = "error"
)

// Metrics contains the vault client metrics.
type Metrics struct {
	RequestsTotal          *prometheus.CounterVec   // Calls by operation and outcome
	FailuresTotal          *prometheus.CounterVec   // Business failures by operation and reason
	TransportErrorsTotal   *prometheus.CounterVec   // Hard errors by operation and category
	RequestDurationSeconds *prometheus.HistogramVec // Remote call latency by operation
}

// New registers the metrics with the default Prometheus registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics with reg.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardvault_requests_total",
			Help: "Total number of vault operations by operation and outcome",
		}, []string{"operation", "outcome"}),

		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardvault_failures_total",
			Help: "Total number of rejected vault operations by failure reason",
		}, []string{"operation", "reason"}),

		TransportErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "cardvault_transport_errors_total",
			Help: "Total number of vault calls that ended without a trustworthy reply",
		}, []string{"operation", "category"}),

		RequestDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cardvault_request_duration_seconds",
			Help:    "Duration of remote vault calls",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
	}
}

// RecordSuccess records an accepted operation.
func (m *Metrics) RecordSuccess(operation string) {
	m.RequestsTotal.WithLabelValues(operation, OutcomeSuccess).Inc()
}

// RecordFailure records a business rejection. Local rejections never reach the vault.
func (m *Metrics) RecordFailure(operation, reason string, local bool) {
	outcome := OutcomeFailure
	if local {
		outcome = OutcomeRejectedLocally
	}
	m.RequestsTotal.WithLabelValues(operation, outcome).Inc()
	m.FailuresTotal.WithLabelValues(operation, reason).Inc()
}

// RecordError records a hard transport error.
func (m *Metrics) RecordError(operation, category string) {
	m.RequestsTotal.WithLabelValues(operation, OutcomeError).Inc()
	m.TransportErrorsTotal.WithLabelValues(operation, category).Inc()
}

// ObserveDuration records the latency of one remote call.
func (m *Metrics) ObserveDuration(operation string, d time.Duration) {
	m.RequestDurationSeconds.WithLabelValues(operation).Observe(d.Seconds())
}
