package executor

import (
	"math"
	"testing"
	"time"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/transport"
)

func TestLedger_RunningAverage(t *testing.T) {
	clk := clock.NewFake(time.Now())
	l := NewLedger(clk, testLogger())

	l.record(100*time.Millisecond, true)
	l.record(200*time.Millisecond, true)
	l.record(300*time.Millisecond, false)

	m := l.Snapshot()
	if m.RequestCount != 3 || m.SuccessCount != 2 || m.ErrorCount != 1 {
		t.Errorf("unexpected counters: %+v", m)
	}
	if math.Abs(m.AvgResponseTimeMs-200) > 0.001 {
		t.Errorf("expected average 200ms, got %v", m.AvgResponseTimeMs)
	}
	if math.Abs(m.ErrorRate-1.0/3.0) > 0.001 {
		t.Errorf("expected error rate 1/3, got %v", m.ErrorRate)
	}
	if math.Abs(m.UptimePercentage-2.0/3.0) > 0.001 {
		t.Errorf("expected uptime 2/3, got %v", m.UptimePercentage)
	}
}

func TestLedger_EmptySnapshot(t *testing.T) {
	l := NewLedger(clock.NewFake(time.Now()), testLogger())

	m := l.Snapshot()
	if m.RequestCount != 0 || m.ErrorRate != 0 || m.UptimePercentage != 0 {
		t.Errorf("expected zero snapshot, got %+v", m)
	}
}

func TestLedger_LastRequestAt(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	l := NewLedger(clk, testLogger())

	l.record(10*time.Millisecond, true)
	clk.Advance(time.Minute)
	l.record(10*time.Millisecond, true)

	if got := l.Snapshot().LastRequestAt; !got.Equal(start.Add(time.Minute)) {
		t.Errorf("expected last request at %v, got %v", start.Add(time.Minute), got)
	}
}

func TestLedger_Reset(t *testing.T) {
	l := NewLedger(clock.NewFake(time.Now()), testLogger())
	l.record(100*time.Millisecond, true)
	l.record(100*time.Millisecond, false)

	l.Reset()

	m := l.Snapshot()
	if m.RequestCount != 0 || m.SuccessCount != 0 || m.ErrorCount != 0 {
		t.Errorf("expected cleared counters, got %+v", m)
	}
	if m.AvgResponseTimeMs != 0 || !m.LastRequestAt.IsZero() {
		t.Errorf("expected cleared average and timestamp, got %+v", m)
	}
}

func TestRateLimitState(t *testing.T) {
	now := time.Now()
	s := NewRateLimitState()

	// No quota observed yet means unlimited.
	if s.Limited(now) {
		t.Error("fresh state must not be limited")
	}

	s.Update(&transport.RateLimitInfo{Remaining: 0, ResetAt: now.Add(time.Minute)})
	if !s.Limited(now) {
		t.Error("expected limited with zero remaining before reset")
	}
	if s.Limited(now.Add(2 * time.Minute)) {
		t.Error("expected unlimited once the reset time has passed")
	}

	s.Update(&transport.RateLimitInfo{Remaining: 5, ResetAt: now.Add(time.Minute)})
	if s.Limited(now) {
		t.Error("expected unlimited with remaining quota")
	}

	// Responses without quota headers leave the state untouched.
	s.Update(nil)
	if remaining, _ := s.Snapshot(); remaining != 5 {
		t.Errorf("expected remaining 5 after nil update, got %d", remaining)
	}
}
