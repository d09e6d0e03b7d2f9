package gateway

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	decisionsTotal     *prometheus.CounterVec
	blockedTotal       *prometheus.CounterVec
	classifierDuration prometheus.Histogram
	auditFailures      prometheus.Counter
	auditDropped       prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a metrics instance backed by a private registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_http_requests_total",
				Help: "Total HTTP requests by method, path and status",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "HTTP request duration by path",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"path"},
		),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_decisions_total",
				Help: "Mediation outcomes by action",
			},
			[]string{"action"},
		),
		blockedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_blocked_total",
				Help: "Blocked requests by risk category",
			},
			[]string{"category"},
		),
		classifierDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gateway_classifier_duration_seconds",
				Help:    "Risk classifier call duration",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		auditFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_audit_failures_total",
				Help: "Audit records that could not be persisted",
			},
		),
		auditDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_audit_dropped_total",
				Help: "Audit records dropped because the queue was full",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.decisionsTotal,
		m.blockedTotal,
		m.classifierDuration,
		m.auditFailures,
		m.auditDropped,
	)
	return m
}

// RecordHTTPRequest records one completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path).Observe(duration.Seconds())
}

// RecordDecision records one mediation outcome. category is empty for
// allowed traffic.
func (m *Metrics) RecordDecision(action, category string) {
	m.decisionsTotal.WithLabelValues(action).Inc()
	if category != "" {
		m.blockedTotal.WithLabelValues(category).Inc()
	}
}

// ObserveClassifier records the duration of one classifier call.
func (m *Metrics) ObserveClassifier(d time.Duration) {
	m.classifierDuration.Observe(d.Seconds())
}

// AuditFailures exposes the persistence-failure counter for the audit logger.
func (m *Metrics) AuditFailures() prometheus.Counter { return m.auditFailures }

// AuditDropped exposes the queue-drop counter for the audit logger.
func (m *Metrics) AuditDropped() prometheus.Counter { return m.auditDropped }

// Handler returns the /metrics endpoint handler for the private registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
