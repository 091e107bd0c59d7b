package executor

import (
	"log/slog"
	"sync"
	"time"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/observability/logging"
)

// Metrics is a point-in-time snapshot of the executor's counters together
// with the derived rates.
type Metrics struct {
	RequestCount      int64     `json:"request_count"`
	SuccessCount      int64     `json:"success_count"`
	ErrorCount        int64     `json:"error_count"`
	AvgResponseTimeMs float64   `json:"avg_response_time_ms"`
	LastRequestAt     time.Time `json:"last_request_at"`
	ErrorRate         float64   `json:"error_rate"`
	UptimePercentage  float64   `json:"uptime_percentage"`
}

// Ledger holds the executor's running counters. A single mutex guards all
// fields: the executor mutates them from arbitrary caller goroutines while
// health probes read snapshots concurrently.
type Ledger struct {
	mu        sync.Mutex
	requests  int64
	successes int64
	errors    int64
	avgMs     float64
	last      time.Time

	clk    clock.Clock
	logger *slog.Logger
}

// NewLedger creates an empty metrics ledger.
func NewLedger(clk clock.Clock, logger *slog.Logger) *Ledger {
	return &Ledger{clk: clk, logger: logger}
}

// record registers a completed call. The running average is updated
// incrementally: avg += (sample - avg) / n. Only terminal outcomes are
// recorded; a transient failure that is later retried to success counts
// once, as a success.
func (l *Ledger) record(elapsed time.Duration, success bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.requests++
	if success {
		l.successes++
	} else {
		l.errors++
	}
	sample := float64(elapsed.Milliseconds())
	l.avgMs += (sample - l.avgMs) / float64(l.requests)
	l.last = l.clk.Now()
}

// Snapshot returns the current counters plus derived rates.
func (l *Ledger) Snapshot() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()

	m := Metrics{
		RequestCount:      l.requests,
		SuccessCount:      l.successes,
		ErrorCount:        l.errors,
		AvgResponseTimeMs: l.avgMs,
		LastRequestAt:     l.last,
	}
	if l.requests > 0 {
		m.ErrorRate = float64(l.errors) / float64(l.requests)
		m.UptimePercentage = float64(l.successes) / float64(l.requests)
	}
	return m
}

// Reset logs the prior snapshot and zeroes all counters.
func (l *Ledger) Reset() {
	l.mu.Lock()
	prior := logging.MetricsReset{
		Requests:  l.requests,
		Successes: l.successes,
		Errors:    l.errors,
		AvgMs:     l.avgMs,
	}
	l.requests = 0
	l.successes = 0
	l.errors = 0
	l.avgMs = 0
	l.last = time.Time{}
	l.mu.Unlock()

	logging.Emit(l.logger, slog.LevelInfo, prior)
}
