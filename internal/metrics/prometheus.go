// Package metrics provides Prometheus metrics for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
	poolCacheHits      prometheus.Counter
	poolCacheMisses    prometheus.Counter
	activePools        prometheus.Gauge
	provisionTotal     prometheus.Counter
	provisionFailures  prometheus.Counter
	reapedPools        prometheus.Counter
	guestSessionsTotal prometheus.Counter
}

var globalMetrics *Metrics

// NewMetrics creates and registers Prometheus metrics. Registration happens
// once per process; later calls return the same instance.
func NewMetrics() *Metrics {
	if globalMetrics != nil {
		return globalMetrics
	}

	globalMetrics = &Metrics{
		requestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "todovault_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		requestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "todovault_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		poolCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "todovault_pool_cache_hits_total",
				Help: "Pool cache lookups served from memory",
			},
		),
		poolCacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "todovault_pool_cache_misses_total",
				Help: "Pool cache lookups requiring reconciliation",
			},
		),
		activePools: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "todovault_active_pools",
				Help: "Number of live tenant pools in the cache",
			},
		),
		provisionTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "todovault_provision_total",
				Help: "Total store provisioning attempts",
			},
		),
		provisionFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "todovault_provision_failures_total",
				Help: "Failed store provisioning attempts",
			},
		),
		reapedPools: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "todovault_reaped_pools_total",
				Help: "Tenant pools closed by the idle reaper",
			},
		),
		guestSessionsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "todovault_guest_sessions_total",
				Help: "Guest sessions started",
			},
		),
	}

	return globalMetrics
}

// RecordRequest records an HTTP request.
func (m *Metrics) RecordRequest(method, path, status string, durationSeconds float64) {
	m.requestsTotal.WithLabelValues(method, path, status).Inc()
	m.requestDuration.WithLabelValues(method, path, status).Observe(durationSeconds)
}

// RecordCacheHit records a pool cache hit.
func (m *Metrics) RecordCacheHit() { m.poolCacheHits.Inc() }

// RecordCacheMiss records a pool cache miss.
func (m *Metrics) RecordCacheMiss() { m.poolCacheMisses.Inc() }

// SetActivePools updates the live pool gauge.
func (m *Metrics) SetActivePools(n int) { m.activePools.Set(float64(n)) }

// RecordProvision records a provisioning attempt.
func (m *Metrics) RecordProvision(success bool) {
	m.provisionTotal.Inc()
	if !success {
		m.provisionFailures.Inc()
	}
}

// RecordReaped records pools closed by the reaper.
func (m *Metrics) RecordReaped(n int) { m.reapedPools.Add(float64(n)) }

// RecordGuestSession records a started guest session.
func (m *Metrics) RecordGuestSession() { m.guestSessionsTotal.Inc() }
