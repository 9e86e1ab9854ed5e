// Package metrics exposes the Prometheus instrumentation of the summary service:
// upstream calls, retries and rate limiting, cache efficiency, payload anomalies
// and summary latency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Upstream API
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_requests_total",
			Help: "Total number of vendor API requests by resource and outcome",
		},
		[]string{"resource", "outcome"}, // success, error, rate_limited, rejected
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Vendor API request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"resource"},
	)

	RetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_retry_attempts_total",
			Help: "Total number of retries after a rate-limit response",
		},
		[]string{"label"},
	)

	RetriesExhausted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "upstream_retries_exhausted_total",
			Help: "Total number of calls that ran out of retry budget",
		},
		[]string{"label"},
	)

	BatchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "batch_item_failures_total",
			Help: "Total number of failed items in per-device batches",
		},
		[]string{"label"},
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	// Cache
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits by category",
		},
		[]string{"category"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses by category",
		},
		[]string{"category"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache entries removed on expiry or when a category is full",
		},
		[]string{"category"},
	)

	// Payload decoding
	UnrecognizedShapes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payload_unrecognized_shapes_total",
			Help: "Total number of payload elements that matched no known shape",
		},
		[]string{"family"},
	)

	// Summary
	SummaryRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "summary_requests_total",
			Help: "Total number of summary requests by status",
		},
		[]string{"status"}, // completed, partial, error
	)

	SummaryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "summary_duration_seconds",
			Help:    "End-to-end summary assembly time in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		},
	)

	TopologySources = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "topology_builds_total",
			Help: "Total number of topology builds by source",
		},
		[]string{"source"}, // primary, fallback, empty
	)
)
