package telemetry

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dbapi"

// Metrics holds the server's Prometheus collectors on a private registry.
// A nil *Metrics, or one built with enabled=false, records nothing.
type Metrics struct {
	registry *prometheus.Registry

	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	failures        *prometheus.CounterVec
}

func NewMetrics(enabled bool) *Metrics {
	if !enabled {
		return &Metrics{}
	}
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_failures_total",
				Help:      "Failed database operations by error kind",
			},
			[]string{"route", "kind"},
		),
	}
	registry.MustRegister(m.requests, m.requestDuration, m.failures)
	return m
}

// Enabled reports whether m records anything.
func (m *Metrics) Enabled() bool {
	return m != nil && m.registry != nil
}

// RecordRequest counts one served request.
func (m *Metrics) RecordRequest(route, method string, status int, duration time.Duration) {
	if !m.Enabled() {
		return
	}
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordFailure counts a rejected or failed operation by error kind.
func (m *Metrics) RecordFailure(route, kind string) {
	if !m.Enabled() {
		return
	}
	m.failures.WithLabelValues(route, kind).Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if !m.Enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
