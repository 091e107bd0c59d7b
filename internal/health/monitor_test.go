package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgerlink/internal/clock"
)

func testMonLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMonConfig() Config {
	return Config{
		Interval:          30 * time.Second,
		ProbeTimeout:      time.Second,
		DegradedAfter:     500 * time.Millisecond,
		SlowAlertAfter:    time.Second,
		FailureAlertAfter: 2,
		HistoryCycles:     50,
		AlertRetention:    time.Hour,
		CleanupInterval:   time.Minute,
	}
}

func staticProbe(name string, err error) Probe {
	return ProbeFunc{ProbeName: name, Fn: func(context.Context) (map[string]any, error) {
		return map[string]any{"probe": name}, err
	}}
}

func newTestMonitor(t *testing.T, cfg Config, probes ...Probe) *Monitor {
	t.Helper()
	m, err := NewMonitor(clock.New(), testMonLogger(), cfg, probes...)
	require.NoError(t, err)
	return m
}

func TestPerformHealthCheck_AllHealthy(t *testing.T) {
	m := newTestMonitor(t, testMonConfig(),
		staticProbe("a", nil),
		staticProbe("b", nil),
	)

	got := m.PerformHealthCheck(context.Background())

	assert.Equal(t, StatusHealthy, got.Status)
	assert.Equal(t, 100, got.Score)
	assert.Len(t, got.Checks, 2)
	assert.Empty(t, got.Alerts)
	assert.Equal(t, 100.0, got.UptimePercentage)
}

func TestPerformHealthCheck_ScoreRoundsHalfUp(t *testing.T) {
	// 2 healthy + 1 degraded + 1 unhealthy: (200 + 50) / 4 = 62.5 -> 63.
	m := newTestMonitor(t, testMonConfig(),
		staticProbe("a", nil),
		staticProbe("b", nil),
		staticProbe("c", fmt.Errorf("slow: %w", ErrDegraded)),
		staticProbe("d", errors.New("connection refused")),
	)

	got := m.PerformHealthCheck(context.Background())

	assert.Equal(t, 63, got.Score)
	assert.Equal(t, StatusUnhealthy, got.Status, "one unhealthy probe dominates")
}

func TestPerformHealthCheck_DegradedOverall(t *testing.T) {
	m := newTestMonitor(t, testMonConfig(),
		staticProbe("a", nil),
		staticProbe("b", fmt.Errorf("marginal: %w", ErrDegraded)),
	)

	got := m.PerformHealthCheck(context.Background())

	assert.Equal(t, StatusDegraded, got.Status)
	assert.Equal(t, 75, got.Score)
}

func TestPerformHealthCheck_SlowProbeDegradesAndAlerts(t *testing.T) {
	cfg := testMonConfig()
	cfg.DegradedAfter = 10 * time.Millisecond
	cfg.SlowAlertAfter = 10 * time.Millisecond

	slow := ProbeFunc{ProbeName: "slow", Fn: func(ctx context.Context) (map[string]any, error) {
		time.Sleep(50 * time.Millisecond)
		return nil, nil
	}}
	m := newTestMonitor(t, cfg, slow)

	got := m.PerformHealthCheck(context.Background())

	assert.Equal(t, StatusDegraded, got.Status)
	require.Len(t, got.Alerts, 1)
	assert.Equal(t, AlertSlowResponse, got.Alerts[0].Type)
	assert.Equal(t, SeverityMedium, got.Alerts[0].Severity)
}

func TestPerformHealthCheck_SlowResponseAlertResolvesOnRecovery(t *testing.T) {
	cfg := testMonConfig()
	cfg.DegradedAfter = 10 * time.Millisecond
	cfg.SlowAlertAfter = 10 * time.Millisecond

	var sluggish atomic.Bool
	sluggish.Store(true)
	flaky := ProbeFunc{ProbeName: "ledger", Fn: func(ctx context.Context) (map[string]any, error) {
		if sluggish.Load() {
			time.Sleep(50 * time.Millisecond)
		}
		return nil, nil
	}}
	m := newTestMonitor(t, cfg, flaky)

	got := m.PerformHealthCheck(context.Background())
	require.Len(t, got.Alerts, 1)
	require.Equal(t, AlertSlowResponse, got.Alerts[0].Type)

	sluggish.Store(false)
	got = m.PerformHealthCheck(context.Background())
	assert.Empty(t, got.Alerts, "recovered response time should resolve the slow-response alert")

	all := m.Alerts()
	require.Len(t, all, 1)
	assert.True(t, all[0].Resolved)
}

func TestPerformHealthCheck_FailureStreakAlerts(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	flaky := ProbeFunc{ProbeName: "ledger", Fn: func(context.Context) (map[string]any, error) {
		if failing.Load() {
			return nil, errors.New("connection refused")
		}
		return nil, nil
	}}
	m := newTestMonitor(t, testMonConfig(), flaky)

	first := m.PerformHealthCheck(context.Background())
	assert.Equal(t, 1, first.Checks[0].ConsecutiveFailures)

	second := m.PerformHealthCheck(context.Background())
	assert.Equal(t, 2, second.Checks[0].ConsecutiveFailures)

	types := map[string]Severity{}
	for _, a := range second.Alerts {
		types[a.Type] = a.Severity
	}
	assert.Equal(t, SeverityCritical, types[AlertServiceUnhealthy])
	assert.Equal(t, SeverityHigh, types[AlertConsecutiveFailures], "streak of 2 meets the threshold")

	// Recovery clears the streak and resolves both alerts.
	failing.Store(false)
	third := m.PerformHealthCheck(context.Background())
	assert.Equal(t, 0, third.Checks[0].ConsecutiveFailures)
	assert.Empty(t, third.Alerts)
}

func TestPerformHealthCheck_SkipsWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	var runs atomic.Int32
	blocking := ProbeFunc{ProbeName: "slow", Fn: func(ctx context.Context) (map[string]any, error) {
		runs.Add(1)
		<-release
		return nil, nil
	}}
	cfg := testMonConfig()
	cfg.ProbeTimeout = 10 * time.Second
	m := newTestMonitor(t, cfg, blocking)

	done := make(chan SystemHealth, 1)
	go func() {
		done <- m.PerformHealthCheck(context.Background())
	}()
	for runs.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	// Second invocation overlaps the first: served from cache, no new cycle.
	cached := m.PerformHealthCheck(context.Background())
	assert.Equal(t, 100, cached.Score, "pre-first-cycle cache is empty healthy")

	close(release)
	<-done
	assert.Equal(t, int32(1), runs.Load())
	assert.Len(t, m.History(0), 1)
}

func TestPerformHealthCheck_ProbePanicIsUnhealthy(t *testing.T) {
	panicky := ProbeFunc{ProbeName: "boom", Fn: func(context.Context) (map[string]any, error) {
		panic("probe exploded")
	}}
	m := newTestMonitor(t, testMonConfig(), panicky, staticProbe("ok", nil))

	got := m.PerformHealthCheck(context.Background())

	assert.Equal(t, StatusUnhealthy, got.Status)
	var boom CheckResult
	for _, c := range got.Checks {
		if c.Service == "boom" {
			boom = c
		}
	}
	assert.Equal(t, StatusUnhealthy, boom.Status)
	assert.Contains(t, boom.Error, "panicked")
}

func TestPerformHealthCheck_ProbeTimeout(t *testing.T) {
	cfg := testMonConfig()
	cfg.ProbeTimeout = 20 * time.Millisecond
	stuck := ProbeFunc{ProbeName: "stuck", Fn: func(ctx context.Context) (map[string]any, error) {
		<-ctx.Done()
		time.Sleep(time.Second)
		return nil, nil
	}}
	m := newTestMonitor(t, cfg, stuck)

	got := m.PerformHealthCheck(context.Background())

	require.Len(t, got.Checks, 1)
	assert.Equal(t, StatusUnhealthy, got.Checks[0].Status)
	assert.Contains(t, got.Checks[0].Error, "timed out")
}

func TestLastStatus_BeforeFirstCycle(t *testing.T) {
	m := newTestMonitor(t, testMonConfig(), staticProbe("a", nil))

	got := m.LastStatus()

	assert.Equal(t, StatusHealthy, got.Status)
	assert.Equal(t, 100, got.Score)
	assert.Equal(t, 100.0, got.UptimePercentage)
	assert.Empty(t, got.Checks)
}

func TestStatistics(t *testing.T) {
	m := newTestMonitor(t, testMonConfig(),
		staticProbe("a", nil),
		staticProbe("b", errors.New("down")),
	)

	m.PerformHealthCheck(context.Background())
	m.PerformHealthCheck(context.Background())

	stats := m.Statistics()
	assert.Equal(t, 2, stats.CyclesObserved)
	assert.InDelta(t, 50.0, stats.UptimePercentage, 0.001)
	assert.Equal(t, TrendStable, stats.Trend)
	// Unhealthy alert plus the consecutive-failures alert from the second cycle.
	assert.Equal(t, 2, stats.ActiveAlertCount)
}

func TestMonitor_RunCyclesOnTicks(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	var runs atomic.Int32
	counting := ProbeFunc{ProbeName: "count", Fn: func(context.Context) (map[string]any, error) {
		runs.Add(1)
		return nil, nil
	}}
	m, err := NewMonitor(clk, testMonLogger(), testMonConfig(), counting)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(stopped)
	}()

	// Nudge virtual time until the interval tick lands and the cycle runs.
	deadline := time.Now().Add(5 * time.Second)
	for runs.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no cycle ran on tick")
		}
		clk.Advance(30 * time.Second)
		time.Sleep(2 * time.Millisecond)
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on context cancellation")
	}
}

func TestNewMonitor_Validation(t *testing.T) {
	_, err := NewMonitor(nil, nil, testMonConfig())
	assert.Error(t, err, "at least one probe required")

	bad := testMonConfig()
	bad.Interval = 0
	_, err = NewMonitor(nil, nil, bad, staticProbe("a", nil))
	assert.Error(t, err)

	bad = testMonConfig()
	bad.FailureAlertAfter = 0
	_, err = NewMonitor(nil, nil, bad, staticProbe("a", nil))
	assert.Error(t, err)
}
