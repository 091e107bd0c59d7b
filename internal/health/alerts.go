package health

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/observability/logging"
	"ledgerlink/internal/observability/metrics"
)

// ErrAlertNotFound is returned by Resolve for an unknown alert ID.
var ErrAlertNotFound = errors.New("alert not found")

// AlertRegistry owns the lifecycle of alerts: creation with (service, type)
// deduplication, explicit resolution, and periodic purging of resolved
// alerts past the retention window.
type AlertRegistry struct {
	mu     sync.Mutex
	alerts map[string]*Alert

	clk     clock.Clock
	logger  *slog.Logger
	onRaise func(Alert)
}

// NewAlertRegistry creates an empty registry.
func NewAlertRegistry(clk clock.Clock, logger *slog.Logger) *AlertRegistry {
	return &AlertRegistry{
		alerts: make(map[string]*Alert),
		clk:    clk,
		logger: logger,
	}
}

// OnRaise registers a callback invoked for each newly created alert.
// Deduplicated raises do not fire it. Set before the first Raise; the
// callback runs on the raising goroutine, so hand off anything slow.
func (r *AlertRegistry) OnRaise(fn func(Alert)) {
	r.onRaise = fn
}

// Raise creates an alert unless an unresolved alert for the same
// (service, type) pair already exists, in which case the existing alert is
// returned and no duplicate is created.
func (r *AlertRegistry) Raise(service, alertType string, severity Severity, message string) Alert {
	r.mu.Lock()
	for _, a := range r.alerts {
		if !a.Resolved && a.Service == service && a.Type == alertType {
			existing := *a
			r.mu.Unlock()
			return existing
		}
	}

	a := &Alert{
		ID:        uuid.NewString(),
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		Service:   service,
		CreatedAt: r.clk.Now(),
	}
	r.alerts[a.ID] = a
	r.updateGaugesLocked()
	created := *a
	r.mu.Unlock()

	logging.Emit(r.logger, slog.LevelWarn, logging.AlertRaised{
		ID:       created.ID,
		Service:  created.Service,
		Type:     created.Type,
		Severity: string(created.Severity),
		Message:  created.Message,
	})
	if r.onRaise != nil {
		r.onRaise(created)
	}
	return created
}

// Resolve marks an alert resolved. Resolved alerts remain queryable until a
// cleanup pass purges them past the retention window.
func (r *AlertRegistry) Resolve(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.alerts[id]
	if !ok {
		return ErrAlertNotFound
	}
	if !a.Resolved {
		a.Resolved = true
		a.ResolvedAt = r.clk.Now()
		r.updateGaugesLocked()
	}
	return nil
}

// ResolveFor resolves the unresolved alert for a (service, type) pair, if
// any. Used by the monitor when a condition clears.
func (r *AlertRegistry) ResolveFor(service, alertType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.alerts {
		if !a.Resolved && a.Service == service && a.Type == alertType {
			a.Resolved = true
			a.ResolvedAt = r.clk.Now()
		}
	}
	r.updateGaugesLocked()
}

// All returns every alert still retained, newest first.
func (r *AlertRegistry) All() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Active returns unresolved alerts, newest first.
func (r *AlertRegistry) Active() []Alert {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Alert, 0, len(r.alerts))
	for _, a := range r.alerts {
		if !a.Resolved {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

// Purge removes resolved alerts whose resolution is older than the
// retention window and returns how many were removed.
func (r *AlertRegistry) Purge(retention time.Duration) int {
	cutoff := r.clk.Now().Add(-retention)
	r.mu.Lock()
	defer r.mu.Unlock()
	var purged int
	for id, a := range r.alerts {
		if a.Resolved && a.ResolvedAt.Before(cutoff) {
			delete(r.alerts, id)
			purged++
		}
	}
	if purged > 0 {
		r.logger.Info("purged resolved alerts", slog.Int("count", purged))
	}
	return purged
}

// updateGaugesLocked refreshes the active-alert gauges. Caller holds the lock.
func (r *AlertRegistry) updateGaugesLocked() {
	counts := map[Severity]int{}
	for _, a := range r.alerts {
		if !a.Resolved {
			counts[a.Severity]++
		}
	}
	for _, sev := range []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical} {
		metrics.ActiveAlerts.WithLabelValues(string(sev)).Set(float64(counts[sev]))
	}
}
