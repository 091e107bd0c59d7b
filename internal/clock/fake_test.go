package clock

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFake_NowAdvances(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	if got := f.Now(); !got.Equal(start) {
		t.Errorf("expected %v, got %v", start, got)
	}

	f.Advance(5 * time.Second)
	if got := f.Now(); !got.Equal(start.Add(5 * time.Second)) {
		t.Errorf("expected %v, got %v", start.Add(5*time.Second), got)
	}
}

func TestFake_SleepFiresOnAdvance(t *testing.T) {
	f := NewFake(time.Now())

	done := make(chan error, 1)
	go func() {
		done <- f.Sleep(context.Background(), 10*time.Second)
	}()

	// Wait for the sleeper to register before advancing.
	for f.SleepCount() == 0 {
		time.Sleep(time.Millisecond)
	}

	f.Advance(9 * time.Second)
	select {
	case <-done:
		t.Fatal("sleep returned before its deadline")
	case <-time.After(10 * time.Millisecond):
	}

	f.Advance(time.Second)
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sleep did not fire after deadline")
	}
}

func TestFake_SleepCancellation(t *testing.T) {
	f := NewFake(time.Now())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- f.Sleep(ctx, time.Hour)
	}()

	for f.SleepCount() == 0 {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sleep did not observe cancellation")
	}
}

func TestFake_SleepDurations(t *testing.T) {
	f := NewFake(time.Now())

	go f.Sleep(context.Background(), time.Second)
	go func() {
		for f.SleepCount() < 1 {
			time.Sleep(time.Millisecond)
		}
		f.Sleep(context.Background(), 2*time.Second)
	}()

	for f.SleepCount() < 2 {
		time.Sleep(time.Millisecond)
	}
	f.Advance(2 * time.Second)

	got := f.SleepDurations()
	if len(got) != 2 || got[0] != time.Second || got[1] != 2*time.Second {
		t.Errorf("unexpected sleep durations: %v", got)
	}
}

func TestFake_After(t *testing.T) {
	f := NewFake(time.Now())
	ch := f.After(time.Minute)

	select {
	case <-ch:
		t.Fatal("After fired before advance")
	default:
	}

	f.Advance(time.Minute)
	select {
	case <-ch:
	default:
		t.Fatal("After did not fire on advance")
	}
}

func TestFake_Ticker(t *testing.T) {
	f := NewFake(time.Now())
	ticker := f.NewTicker(time.Second)
	defer ticker.Stop()

	f.Advance(time.Second)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire on first interval")
	}

	// Multiple intervals within one advance coalesce into the buffered tick.
	f.Advance(3 * time.Second)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire after multi-interval advance")
	}
}

func TestReal_SleepReturnsAfterDuration(t *testing.T) {
	clk := New()
	start := time.Now()
	if err := clk.Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Errorf("sleep returned after %v, expected at least 10ms", elapsed)
	}
}
