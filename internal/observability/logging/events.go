package logging

import (
	"context"
	"log/slog"
	"time"
)

// Event is a structured log event with a fixed shape per kind. The core emits
// these instead of ad-hoc key/value payloads so the logging contract is
// statically checkable.
type Event interface {
	// Kind returns the event kind tag, e.g. "request_start".
	Kind() string

	// Attrs returns the event's structured attributes.
	Attrs() []slog.Attr
}

// Emit logs an event at the given level with its kind tag.
func Emit(logger *slog.Logger, level slog.Level, ev Event) {
	attrs := append([]slog.Attr{slog.String("event", ev.Kind())}, ev.Attrs()...)
	logger.LogAttrs(context.Background(), level, ev.Kind(), attrs...)
}

// RequestStart is emitted when a request is dispatched to the endpoint.
type RequestStart struct {
	Method   string
	Endpoint string
	Attempt  int
}

func (e RequestStart) Kind() string { return "request_start" }

func (e RequestStart) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("method", e.Method),
		slog.String("endpoint", e.Endpoint),
		slog.Int("attempt", e.Attempt),
	}
}

// RequestDone is emitted when a dispatch completes, successfully or not.
type RequestDone struct {
	Method   string
	Endpoint string
	Status   int
	Elapsed  time.Duration
	Err      error
}

func (e RequestDone) Kind() string { return "request_done" }

func (e RequestDone) Attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("method", e.Method),
		slog.String("endpoint", e.Endpoint),
		slog.Int("status", e.Status),
		slog.Duration("elapsed", e.Elapsed),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("error", e.Err))
	}
	return attrs
}

// Retry is emitted before a backoff sleep.
type Retry struct {
	Method   string
	Endpoint string
	Attempt  int
	Max      int
	Delay    time.Duration
	Err      error
}

func (e Retry) Kind() string { return "retry" }

func (e Retry) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("method", e.Method),
		slog.String("endpoint", e.Endpoint),
		slog.Int("attempt", e.Attempt),
		slog.Int("max_attempts", e.Max),
		slog.Duration("delay", e.Delay),
		slog.Any("error", e.Err),
	}
}

// RateLimited is emitted when a call is parked on the backoff queue.
type RateLimited struct {
	Method   string
	Endpoint string
	ResetAt  time.Time
	Queued   int
}

func (e RateLimited) Kind() string { return "rate_limited" }

func (e RateLimited) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("method", e.Method),
		slog.String("endpoint", e.Endpoint),
		slog.Time("reset_at", e.ResetAt),
		slog.Int("queued", e.Queued),
	}
}

// HealthCheck is emitted once per probe per monitoring cycle.
type HealthCheck struct {
	Service      string
	Status       string
	ResponseTime time.Duration
	Err          error
}

func (e HealthCheck) Kind() string { return "health_check" }

func (e HealthCheck) Attrs() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("service", e.Service),
		slog.String("status", e.Status),
		slog.Duration("response_time", e.ResponseTime),
	}
	if e.Err != nil {
		attrs = append(attrs, slog.Any("error", e.Err))
	}
	return attrs
}

// AlertRaised is emitted when a new alert is created.
type AlertRaised struct {
	ID       string
	Service  string
	Type     string
	Severity string
	Message  string
}

func (e AlertRaised) Kind() string { return "alert_raised" }

func (e AlertRaised) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.String("alert_id", e.ID),
		slog.String("service", e.Service),
		slog.String("type", e.Type),
		slog.String("severity", e.Severity),
		slog.String("message", e.Message),
	}
}

// MetricsReset is emitted with the prior snapshot when counters are zeroed.
type MetricsReset struct {
	Requests  int64
	Successes int64
	Errors    int64
	AvgMs     float64
}

func (e MetricsReset) Kind() string { return "metrics_reset" }

func (e MetricsReset) Attrs() []slog.Attr {
	return []slog.Attr{
		slog.Int64("requests", e.Requests),
		slog.Int64("successes", e.Successes),
		slog.Int64("errors", e.Errors),
		slog.Float64("avg_response_ms", e.AvgMs),
	}
}
