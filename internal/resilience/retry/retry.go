// Package retry provides exponential backoff with jitter for transient
// failures. The schedule is shared by the request executor and the
// transaction publisher so both retry paths behave identically.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/resilience"
)

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the maximum number of attempts, including the first.
	MaxAttempts int

	// InitialDelay is the delay before the first retry.
	InitialDelay time.Duration

	// MaxDelay caps the computed delay.
	MaxDelay time.Duration

	// Multiplier is the exponential backoff multiplier.
	Multiplier float64

	// MaxJitter is the upper bound of the random jitter added to each
	// delay to avoid synchronized retry storms.
	MaxJitter time.Duration
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxJitter:    1 * time.Second,
	}
}

// ReadConfig returns configuration for read calls. Aggressive retry for
// transient network issues.
func ReadConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		MaxJitter:    1 * time.Second,
	}
}

// PublishConfig returns configuration for the submit-then-confirm write
// cycle. Moderate retry: every attempt costs a full confirmation wait.
func PublishConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 2 * time.Second,
		MaxDelay:     20 * time.Second,
		Multiplier:   2.0,
		MaxJitter:    1 * time.Second,
	}
}

// Validate checks the configuration and returns a ConfigurationError on the
// first invalid field.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return &resilience.ConfigurationError{Field: "MaxAttempts", Reason: "must be at least 1"}
	}
	if c.InitialDelay <= 0 {
		return &resilience.ConfigurationError{Field: "InitialDelay", Reason: "must be positive"}
	}
	if c.MaxDelay < c.InitialDelay {
		return &resilience.ConfigurationError{Field: "MaxDelay", Reason: "must be >= InitialDelay"}
	}
	if c.Multiplier < 1.0 {
		return &resilience.ConfigurationError{Field: "Multiplier", Reason: "must be >= 1.0"}
	}
	return nil
}

// DelayFor computes the backoff delay before retry number attempt (1-based):
// min(InitialDelay * Multiplier^(attempt-1) + jitter, MaxDelay).
func (c Config) DelayFor(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(c.InitialDelay)
	for i := 1; i < attempt; i++ {
		delay *= c.Multiplier
		if delay >= float64(c.MaxDelay) {
			delay = float64(c.MaxDelay)
			break
		}
	}
	d := time.Duration(delay) + jitter(c.MaxJitter)
	if d > c.MaxDelay {
		d = c.MaxDelay
	}
	return d
}

// WithBackoff executes fn with retry and exponential backoff. Transient
// errors (per resilience.IsTransient) are retried up to cfg.MaxAttempts;
// anything else aborts immediately. Sleeps go through the injected clock.
func WithBackoff(ctx context.Context, clk clock.Clock, cfg Config, fn func() error) error {
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn()

		if lastErr == nil {
			if attempt > 1 {
				slog.Info("operation succeeded after retry",
					slog.Int("attempt", attempt))
			}
			return nil
		}

		if !resilience.IsTransient(lastErr) {
			slog.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt),
				slog.Any("error", lastErr))
			return lastErr
		}

		if attempt == cfg.MaxAttempts {
			break
		}

		delay := cfg.DelayFor(attempt)
		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))

		if err := clk.Sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry aborted: %w", err)
		}
	}

	return fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

// jitter returns a random duration in [0, max).
//
// #nosec G404 -- math/rand is fine here; backoff jitter does not need
// cryptographic randomness.
func jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}
