package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/observability/logging"
	"ledgerlink/internal/observability/metrics"
	"ledgerlink/internal/resilience"
)

// Config holds the monitor configuration.
type Config struct {
	// Interval between monitoring cycles.
	Interval time.Duration

	// ProbeTimeout bounds each individual probe.
	ProbeTimeout time.Duration

	// DegradedAfter downgrades a healthy probe result to degraded when its
	// response time exceeds this threshold.
	DegradedAfter time.Duration

	// SlowAlertAfter raises a medium slow-response alert when a probe's
	// response time exceeds this threshold.
	SlowAlertAfter time.Duration

	// FailureAlertAfter raises a high alert when a service's consecutive
	// failure streak reaches this count.
	FailureAlertAfter int

	// HistoryCycles bounds the history ring buffer.
	HistoryCycles int

	// AlertRetention is how long resolved alerts stay queryable.
	AlertRetention time.Duration

	// CleanupInterval is how often resolved alerts are purged.
	CleanupInterval time.Duration
}

// DefaultConfig returns a production-leaning monitor configuration.
func DefaultConfig() Config {
	return Config{
		Interval:          30 * time.Second,
		ProbeTimeout:      10 * time.Second,
		DegradedAfter:     2 * time.Second,
		SlowAlertAfter:    5 * time.Second,
		FailureAlertAfter: 3,
		HistoryCycles:     200,
		AlertRetention:    time.Hour,
		CleanupInterval:   5 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return &resilience.ConfigurationError{Field: "Interval", Reason: "must be positive"}
	}
	if c.ProbeTimeout <= 0 {
		return &resilience.ConfigurationError{Field: "ProbeTimeout", Reason: "must be positive"}
	}
	if c.FailureAlertAfter < 1 {
		return &resilience.ConfigurationError{Field: "FailureAlertAfter", Reason: "must be at least 1"}
	}
	if c.HistoryCycles < 1 {
		return &resilience.ConfigurationError{Field: "HistoryCycles", Reason: "must be at least 1"}
	}
	if c.AlertRetention <= 0 {
		return &resilience.ConfigurationError{Field: "AlertRetention", Reason: "must be positive"}
	}
	if c.CleanupInterval <= 0 {
		return &resilience.ConfigurationError{Field: "CleanupInterval", Reason: "must be positive"}
	}
	return nil
}

// Monitor runs the configured probes every cycle, aggregates their results
// into a SystemHealth snapshot and manages alerts and history.
//
// A cycle walks Idle -> Probing -> Aggregating -> Alerting -> Idle. Ticks
// arriving while a cycle is still in flight are skipped rather than queued:
// overlapping cycles would double-count consecutive failures and race on
// the history buffer.
type Monitor struct {
	cfg    Config
	probes []Probe
	clk    clock.Clock
	logger *slog.Logger

	alerts  *AlertRegistry
	history *History

	mu       sync.RWMutex
	last     *SystemHealth
	failures map[string]int

	inFlight atomic.Bool
}

// NewMonitor constructs a monitor over the given probes. At least one probe
// is required.
func NewMonitor(clk clock.Clock, logger *slog.Logger, cfg Config, probes ...Probe) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(probes) == 0 {
		return nil, &resilience.ConfigurationError{Field: "probes", Reason: "at least one probe is required"}
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		cfg:      cfg,
		probes:   probes,
		clk:      clk,
		logger:   logger,
		alerts:   NewAlertRegistry(clk, logger),
		history:  NewHistory(cfg.HistoryCycles),
		failures: make(map[string]int),
	}, nil
}

// OnAlert registers a callback invoked once per newly raised alert,
// typically to hand it to a notification channel. Set it before Run.
func (m *Monitor) OnAlert(fn func(Alert)) {
	m.alerts.OnRaise(fn)
}

// Run drives monitoring cycles and alert cleanup until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	cycle := m.clk.NewTicker(m.cfg.Interval)
	defer cycle.Stop()
	cleanup := m.clk.NewTicker(m.cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cycle.C():
			m.PerformHealthCheck(ctx)
		case <-cleanup.C():
			m.alerts.Purge(m.cfg.AlertRetention)
		}
	}
}

// PerformHealthCheck runs one full monitoring cycle synchronously and
// returns the resulting snapshot. If a cycle is already in flight the
// cached snapshot is returned instead (skip-if-running).
func (m *Monitor) PerformHealthCheck(ctx context.Context) SystemHealth {
	if !m.inFlight.CompareAndSwap(false, true) {
		m.logger.Debug("health cycle already in flight, skipping")
		return m.LastStatus()
	}
	defer m.inFlight.Store(false)

	started := m.clk.Now()
	results := m.probeAll(ctx)
	snapshot := m.aggregate(results)
	m.raiseAlerts(results)
	snapshot.Alerts = m.alerts.Active()

	m.history.Append(CycleRecord{
		Timestamp: snapshot.CheckedAt,
		Score:     snapshot.Score,
		Results:   results,
	})
	snapshot.UptimePercentage = m.history.Uptime() * 100

	m.mu.Lock()
	m.last = &snapshot
	m.mu.Unlock()

	metrics.HealthScore.Set(float64(snapshot.Score))
	metrics.HealthCycleDuration.Observe(m.clk.Now().Sub(started).Seconds())
	return snapshot
}

// LastStatus returns the cached snapshot from the most recent cycle without
// recomputing. Before the first cycle it reports an empty healthy snapshot.
func (m *Monitor) LastStatus() SystemHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.last == nil {
		return SystemHealth{Status: StatusHealthy, Score: 100, UptimePercentage: 100}
	}
	return *m.last
}

// History returns up to limit most recent cycle results, oldest first.
func (m *Monitor) History(limit int) []CycleRecord {
	return m.history.Recent(limit)
}

// Statistics aggregates uptime, response time and trend across the history
// buffer.
func (m *Monitor) Statistics() Statistics {
	return Statistics{
		UptimePercentage: m.history.Uptime() * 100,
		AvgResponseTime:  m.history.AvgResponseTime(),
		Trend:            m.history.Trend(),
		CyclesObserved:   m.history.Len(),
		ActiveAlertCount: len(m.alerts.Active()),
	}
}

// Alerts returns every retained alert, newest first.
func (m *Monitor) Alerts() []Alert {
	return m.alerts.All()
}

// ResolveAlert marks an alert resolved by ID.
func (m *Monitor) ResolveAlert(id string) error {
	return m.alerts.Resolve(id)
}

// probeAll fans out every probe concurrently and settles all of them: a
// probe that fails, panics or times out becomes an unhealthy result and
// never suppresses the others.
func (m *Monitor) probeAll(ctx context.Context) []CheckResult {
	results := make([]CheckResult, len(m.probes))
	var wg sync.WaitGroup
	for i, p := range m.probes {
		wg.Add(1)
		go func(i int, p Probe) {
			defer wg.Done()
			results[i] = m.runProbe(ctx, p)
		}(i, p)
	}
	wg.Wait()

	m.mu.Lock()
	for i := range results {
		name := results[i].Service
		if results[i].Status == StatusHealthy {
			m.failures[name] = 0
		} else {
			m.failures[name]++
		}
		results[i].ConsecutiveFailures = m.failures[name]
	}
	m.mu.Unlock()

	for _, r := range results {
		metrics.ProbeStatus.WithLabelValues(r.Service).Set(statusGauge(r.Status))
		logging.Emit(m.logger, slog.LevelDebug, logging.HealthCheck{
			Service:      r.Service,
			Status:       string(r.Status),
			ResponseTime: r.ResponseTime,
			Err:          resultErr(r),
		})
	}
	return results
}

// runProbe executes one probe with its own timeout and converts every
// failure mode, including a panic, into a result.
func (m *Monitor) runProbe(ctx context.Context, p Probe) (result CheckResult) {
	started := m.clk.Now()
	result = CheckResult{
		Service:   p.Name(),
		Timestamp: started,
	}
	defer func() {
		if rec := recover(); rec != nil {
			result.Status = StatusUnhealthy
			result.Error = fmt.Sprintf("probe panicked: %v", rec)
			result.ResponseTime = m.clk.Now().Sub(started)
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()

	type outcome struct {
		details map[string]any
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("probe panicked: %v", rec)}
			}
		}()
		details, err := p.Check(probeCtx)
		done <- outcome{details: details, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-probeCtx.Done():
		out = outcome{err: probeTimeoutErr(p.Name(), m.cfg.ProbeTimeout)}
	}

	result.ResponseTime = m.clk.Now().Sub(started)
	result.Details = out.details
	result.Status = m.classify(out.err, result.ResponseTime)
	if out.err != nil {
		result.Error = out.err.Error()
	}
	return result
}

// classify derives the probe status from its error and response time.
func (m *Monitor) classify(err error, responseTime time.Duration) Status {
	switch {
	case err == nil:
		if m.cfg.DegradedAfter > 0 && responseTime > m.cfg.DegradedAfter {
			return StatusDegraded
		}
		return StatusHealthy
	case isDegradedErr(err):
		return StatusDegraded
	default:
		return StatusUnhealthy
	}
}

// aggregate computes the weighted score and overall status:
// score = round((100*healthy + 50*degraded + 0*unhealthy) / total).
func (m *Monitor) aggregate(results []CheckResult) SystemHealth {
	var healthy, degraded, unhealthy int
	for _, r := range results {
		switch r.Status {
		case StatusHealthy:
			healthy++
		case StatusDegraded:
			degraded++
		default:
			unhealthy++
		}
	}

	total := len(results)
	score := 100
	if total > 0 {
		score = int(math.Round(float64(100*healthy+50*degraded) / float64(total)))
	}

	overall := StatusHealthy
	switch {
	case unhealthy > 0:
		overall = StatusUnhealthy
	case degraded > 0:
		overall = StatusDegraded
	}

	return SystemHealth{
		Status:    overall,
		Checks:    results,
		Score:     score,
		CheckedAt: m.clk.Now(),
	}
}

// raiseAlerts applies the alert policy to this cycle's results, deduped by
// the registry, and clears alerts whose condition has passed.
func (m *Monitor) raiseAlerts(results []CheckResult) {
	for _, r := range results {
		if m.cfg.SlowAlertAfter > 0 {
			if r.ResponseTime > m.cfg.SlowAlertAfter {
				m.alerts.Raise(r.Service, AlertSlowResponse, SeverityMedium,
					fmt.Sprintf("response time %s exceeds threshold %s", r.ResponseTime, m.cfg.SlowAlertAfter))
			} else {
				m.alerts.ResolveFor(r.Service, AlertSlowResponse)
			}
		}

		if r.ConsecutiveFailures >= m.cfg.FailureAlertAfter {
			m.alerts.Raise(r.Service, AlertConsecutiveFailures, SeverityHigh,
				fmt.Sprintf("%d consecutive failures", r.ConsecutiveFailures))
		}

		if r.Status == StatusUnhealthy {
			m.alerts.Raise(r.Service, AlertServiceUnhealthy, SeverityCritical,
				fmt.Sprintf("service unhealthy: %s", r.Error))
		} else if r.Status == StatusHealthy {
			m.alerts.ResolveFor(r.Service, AlertServiceUnhealthy)
			m.alerts.ResolveFor(r.Service, AlertConsecutiveFailures)
		}
	}
}

func statusGauge(s Status) float64 {
	switch s {
	case StatusHealthy:
		return 2
	case StatusDegraded:
		return 1
	default:
		return 0
	}
}

func isDegradedErr(err error) bool {
	return errors.Is(err, ErrDegraded)
}

func resultErr(r CheckResult) error {
	if r.Error == "" {
		return nil
	}
	return fmt.Errorf("%s", r.Error)
}
