// Package health implements the health monitoring subsystem: independent
// probes run in parallel each cycle, their results aggregate into a single
// score, and threshold breaches raise deduplicated alerts.
package health

import "time"

// Status is the health state of a probe target or of the whole system.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one probe in one monitoring cycle. It is
// immutable after creation and appended to the history buffer.
type CheckResult struct {
	Service             string         `json:"service"`
	Status              Status         `json:"status"`
	ResponseTime        time.Duration  `json:"response_time"`
	Timestamp           time.Time      `json:"timestamp"`
	Details             map[string]any `json:"details,omitempty"`
	Error               string         `json:"error,omitempty"`
	ConsecutiveFailures int            `json:"consecutive_failures"`
}

// SystemHealth is the aggregated outcome of one monitoring cycle. The prior
// value remains queryable as a cached snapshot between cycles.
type SystemHealth struct {
	Status           Status        `json:"status"`
	Checks           []CheckResult `json:"checks"`
	Score            int           `json:"score"`
	UptimePercentage float64       `json:"uptime_percentage"`
	Alerts           []Alert       `json:"alerts"`
	CheckedAt        time.Time     `json:"checked_at"`
}

// Severity ranks an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Alert types raised by the monitor.
const (
	AlertSlowResponse        = "slow-response"
	AlertConsecutiveFailures = "consecutive-failures"
	AlertServiceUnhealthy    = "service-unhealthy"
)

// Alert records a threshold breach. At most one unresolved alert exists per
// (service, type) pair at any time.
type Alert struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	Service    string    `json:"service"`
	CreatedAt  time.Time `json:"created_at"`
	Resolved   bool      `json:"resolved"`
	ResolvedAt time.Time `json:"resolved_at,omitzero"`
}

// Trend summarizes the direction of recent cycle scores.
type Trend string

const (
	TrendImproving Trend = "improving"
	TrendStable    Trend = "stable"
	TrendDeclining Trend = "declining"
)

// Statistics aggregates recent cycles for the statistics accessor.
type Statistics struct {
	UptimePercentage float64       `json:"uptime_percentage"`
	AvgResponseTime  time.Duration `json:"avg_response_time"`
	Trend            Trend         `json:"trend"`
	CyclesObserved   int           `json:"cycles_observed"`
	ActiveAlertCount int           `json:"active_alert_count"`
}
