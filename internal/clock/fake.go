package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a manually advanced Clock for deterministic tests. Sleepers and
// tickers only fire when Advance moves virtual time past their deadline.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*fakeWaiter
	tickers []*fakeTicker
	slept   []time.Duration
}

type fakeWaiter struct {
	deadline time.Time
	ch       chan time.Time
}

// NewFake returns a Fake clock starting at the given time.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	f.mu.Lock()
	f.slept = append(f.slept, d)
	w := &fakeWaiter{deadline: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.waiters = append(f.waiters, w)
	f.mu.Unlock()

	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &fakeWaiter{deadline: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.waiters = append(f.waiters, w)
	return w.ch
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := &fakeTicker{interval: d, next: f.now.Add(d), ch: make(chan time.Time, 1)}
	f.tickers = append(f.tickers, t)
	return t
}

// Advance moves virtual time forward, firing any sleeps, After channels and
// ticker ticks whose deadline falls within the advanced window.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	now := f.now

	var pending []*fakeWaiter
	for _, w := range f.waiters {
		if !w.deadline.After(now) {
			w.ch <- now
		} else {
			pending = append(pending, w)
		}
	}
	f.waiters = pending

	for _, t := range f.tickers {
		for !t.next.After(now) {
			select {
			case t.ch <- t.next:
			default:
			}
			t.next = t.next.Add(t.interval)
		}
	}
	f.mu.Unlock()
}

// SleepCount returns how many Sleep calls have been observed.
func (f *Fake) SleepCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.slept)
}

// SleepDurations returns the durations passed to Sleep, in call order.
func (f *Fake) SleepDurations() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]time.Duration, len(f.slept))
	copy(out, f.slept)
	return out
}

type fakeTicker struct {
	interval time.Duration
	next     time.Time
	ch       chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               {}
