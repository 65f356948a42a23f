package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pollyhq/ratekeeper/pkg/constants"
)

// Check result labels.
const (
	ResultAllowed  = "allowed"
	ResultRejected = "rejected"
	ResultError    = "error"
)

// Metrics manages the Prometheus metrics of the service.
type Metrics struct {
	ChecksTotal         *prometheus.CounterVec
	RejectionsTotal     *prometheus.CounterVec
	StoreErrorsTotal    prometheus.Counter
	CheckDuration       *prometheus.HistogramVec
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the metrics on reg. Production wiring
// passes prometheus.DefaultRegisterer; tests pass a fresh registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratekeeper_checks_total",
				Help: "Total number of rate limit checks by operation and result.",
			},
			[]string{"operation", "result"},
		),
		RejectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratekeeper_rejections_total",
				Help: "Total number of rejected requests by operation and limit type.",
			},
			[]string{"operation", "type"},
		),
		StoreErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ratekeeper_store_errors_total",
				Help: "Total number of counter store failures absorbed by the fail policy.",
			},
		),
		CheckDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratekeeper_check_duration_seconds",
				Help:    "Latency of rate limit checks.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ratekeeper_http_requests_total",
				Help: "Total number of HTTP requests.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ratekeeper_http_request_duration_seconds",
				Help:    "Latency of HTTP requests.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
	}
}

// RecordCheck records the outcome and latency of one limiter check.
func (m *Metrics) RecordCheck(operation, result string, duration time.Duration) {
	m.ChecksTotal.WithLabelValues(operation, result).Inc()
	m.CheckDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordRejection records a rejected request.
func (m *Metrics) RecordRejection(operation string, limitType constants.LimitType) {
	m.RejectionsTotal.WithLabelValues(operation, string(limitType)).Inc()
}

// RecordStoreError records an absorbed counter store failure.
func (m *Metrics) RecordStoreError() {
	m.StoreErrorsTotal.Inc()
}
