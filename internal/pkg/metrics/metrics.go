// Package metrics provides Prometheus metrics for the app status service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "kubilitics"

var (
	// HTTPRequestTotal counts requests by method, path, status.
	HTTPRequestTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by method, path, and status.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2.5, 10), // 1ms to ~9.3s
		},
		[]string{"method", "path"},
	)

	// StatusComputeDurationSeconds covers one full refresh: fetch, correlate, aggregate.
	StatusComputeDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "status_compute_duration_seconds",
			Help:      "Application status refresh duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)

	NodePulseTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_pulse_total",
			Help:      "Computed node pulses by node type and pulse.",
		},
		[]string{"type", "pulse"},
	)

	SearchQueryDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "search_query_duration_seconds",
			Help:      "Search backend query duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2.5, 8),
		},
		[]string{"query"},
	)

	SearchQueryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "search_query_failures_total",
			Help:      "Search backend queries that failed and were treated as no data.",
		},
		[]string{"query"},
	)

	// SearchCircuitBreakerState: 0 closed, 1 open, 2 half-open.
	SearchCircuitBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "search_circuit_breaker_state",
			Help:      "Search backend circuit breaker state (0=closed, 1=open, 2=half-open).",
		},
	)

	StaleRefreshDiscardedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stale_refresh_discarded_total",
			Help:      "Refresh results discarded because a newer refresh had started.",
		},
	)

	CorrelationDroppedRecordsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "correlation_dropped_records_total",
			Help:      "Related records that matched no topology node.",
		},
	)

	StatusCacheHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_cache_hits_total",
			Help:      "Total number of status cache hits.",
		},
	)

	StatusCacheMissesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_cache_misses_total",
			Help:      "Total number of status cache misses.",
		},
	)

	WebSocketConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections_active",
			Help:      "Number of active WebSocket connections.",
		},
	)
)
