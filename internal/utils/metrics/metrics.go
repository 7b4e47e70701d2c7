package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Cancellation workflow metrics
	CancellationRequestsTotal  *prometheus.CounterVec
	CancellationDecisionsTotal *prometheus.CounterVec
	RefundAmount               *prometheus.HistogramVec
	RefundsCompletedTotal      *prometheus.CounterVec

	// Collaborator metrics
	PolicyCacheTotal          *prometheus.CounterVec
	NotificationFailuresTotal *prometheus.CounterVec
}

// New creates a new Metrics instance registered with the default registry.
func New(namespace string) *Metrics {
	return NewWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new Metrics instance registered with reg.
func NewWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "storefront"
	}
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "http",
				Name:      "requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),

		CancellationRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cancellation",
				Name:      "requests_total",
				Help:      "Cancellation requests by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		CancellationDecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "cancellation",
				Name:      "decisions_total",
				Help:      "Admin decisions on cancellation requests",
			},
			[]string{"action"},
		),
		RefundAmount: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "refund",
				Name:      "amount_minor",
				Help:      "Approved refund amounts in minor currency units",
				Buckets:   prometheus.ExponentialBuckets(1000, 4, 8),
			},
			[]string{"type"},
		),
		RefundsCompletedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "refund",
				Name:      "completed_total",
				Help:      "Completed refunds by source of the refund id",
			},
			[]string{"source"},
		),

		PolicyCacheTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "policy",
				Name:      "cache_total",
				Help:      "Refund policy cache lookups by result",
			},
			[]string{"result"},
		),
		NotificationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "notification",
				Name:      "failures_total",
				Help:      "Customer notifications that could not be delivered",
			},
			[]string{"event"},
		),
	}
}

// --- Convenience methods ---

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, statusCodeToString(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordCancellationRequest records the outcome of a RequestCancellation call.
func (m *Metrics) RecordCancellationRequest(cancellationType, outcome string) {
	if m == nil {
		return
	}
	if cancellationType == "" {
		cancellationType = "unknown"
	}
	m.CancellationRequestsTotal.WithLabelValues(cancellationType, outcome).Inc()
}

// RecordDecision records an admin approve/reject decision and, for approvals, the refund amount.
func (m *Metrics) RecordDecision(action, cancellationType string, refundAmount int64) {
	if m == nil {
		return
	}
	m.CancellationDecisionsTotal.WithLabelValues(action).Inc()
	if refundAmount > 0 {
		m.RefundAmount.WithLabelValues(cancellationType).Observe(float64(refundAmount))
	}
}

// RecordRefundCompleted records a completed refund.
func (m *Metrics) RecordRefundCompleted(source string) {
	if m == nil {
		return
	}
	m.RefundsCompletedTotal.WithLabelValues(source).Inc()
}

// RecordPolicyCache records a policy cache lookup result (hit, miss, error).
func (m *Metrics) RecordPolicyCache(result string) {
	if m == nil {
		return
	}
	m.PolicyCacheTotal.WithLabelValues(result).Inc()
}

// RecordNotificationFailure records a failed customer notification.
func (m *Metrics) RecordNotificationFailure(event string) {
	if m == nil {
		return
	}
	m.NotificationFailuresTotal.WithLabelValues(event).Inc()
}

// statusCodeToString converts an HTTP status code to a string category.
func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
