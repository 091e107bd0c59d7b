// Package metrics provides centralized Prometheus metrics for the module.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Executor metrics mirror the in-process metrics ledger so the counters are
// scrapeable without calling GetMetrics.
var (
	// RequestsTotal counts endpoint requests by method, endpoint and outcome.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerlink_requests_total",
			Help: "Total number of endpoint requests by outcome",
		},
		[]string{"method", "endpoint", "outcome"},
	)

	// RequestDuration measures end-to-end request duration in seconds,
	// including retries and backoff sleeps.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledgerlink_request_duration_seconds",
			Help:    "Endpoint request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// RetriesTotal counts backoff retries by method and endpoint.
	RetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerlink_retries_total",
			Help: "Total number of retry attempts",
		},
		[]string{"method", "endpoint"},
	)

	// BackoffQueueDepth tracks the number of calls parked on the backoff queue.
	BackoffQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledgerlink_backoff_queue_depth",
			Help: "Number of calls currently waiting on the backoff queue",
		},
	)

	// RateLimitedTotal counts calls parked because the quota was exhausted.
	RateLimitedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledgerlink_rate_limited_total",
			Help: "Total number of calls deferred by rate limiting",
		},
	)
)

// Health monitor metrics.
var (
	// HealthScore is the current aggregate health score (0-100).
	HealthScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledgerlink_health_score",
			Help: "Aggregate health score across all probes (0-100)",
		},
	)

	// ProbeStatus reports the latest status per probe (0 unhealthy, 1
	// degraded, 2 healthy).
	ProbeStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledgerlink_probe_status",
			Help: "Latest probe status (0=unhealthy, 1=degraded, 2=healthy)",
		},
		[]string{"service"},
	)

	// ActiveAlerts tracks the number of unresolved alerts by severity.
	ActiveAlerts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledgerlink_active_alerts",
			Help: "Number of unresolved alerts by severity",
		},
		[]string{"severity"},
	)

	// HealthCycleDuration measures health monitoring cycle duration.
	HealthCycleDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledgerlink_health_cycle_duration_seconds",
			Help:    "Duration of a full health monitoring cycle in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
		},
	)

	// PublishesTotal counts publish cycles by outcome
	// (confirmed, rejected, exhausted).
	PublishesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledgerlink_publishes_total",
			Help: "Total number of publish cycles by outcome",
		},
		[]string{"outcome"},
	)
)
