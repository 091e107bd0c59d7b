// Package clock provides an injectable time source so that retry backoff and
// health-cycle scheduling are deterministic under test.
package clock

import (
	"context"
	"time"
)

// Clock abstracts the time operations used by the resilience and health
// packages. Production code uses Real; tests use Fake with virtual time.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep blocks for the given duration or until the context is done,
	// whichever comes first. It returns the context error on cancellation.
	Sleep(ctx context.Context, d time.Duration) error

	// After returns a channel that receives the current time after d.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a ticker firing every d.
	NewTicker(d time.Duration) Ticker
}

// Ticker is the subset of time.Ticker the scheduling loops need.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Real is a Clock backed by the time package.
type Real struct{}

// New returns the production clock.
func New() Clock {
	return Real{}
}

func (Real) Now() time.Time { return time.Now() }

func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (Real) After(d time.Duration) <-chan time.Time { return time.After(d) }

func (Real) NewTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

type realTicker struct {
	t *time.Ticker
}

func (rt realTicker) C() <-chan time.Time { return rt.t.C }
func (rt realTicker) Stop()               { rt.t.Stop() }
