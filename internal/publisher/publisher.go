// Package publisher implements the write path: submit a transaction, wait
// for its confirmation, and retry the whole cycle on transient failure.
//
// The unit of retry is deliberately the entire submit-then-confirm cycle. A
// submission that times out before confirmation may already be in flight, so
// retrying only the submit step would risk duplicate commits; the caller's
// idempotency key lets the receiving system treat a resubmission as a no-op
// duplicate instead.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/executor"
	"ledgerlink/internal/observability/metrics"
	"ledgerlink/internal/observability/tracing"
	"ledgerlink/internal/resilience"
	"ledgerlink/internal/resilience/retry"
	"ledgerlink/internal/transport"
)

// Config holds the publisher configuration.
type Config struct {
	// Endpoint is the remote submit operation.
	Endpoint string

	// Method is the submit verb. Defaults to "SUBMIT".
	Method string

	// ConfirmTimeout bounds the confirmation wait, independently from the
	// submit timeout.
	ConfirmTimeout time.Duration

	// Retry is the backoff schedule for whole-cycle retries.
	Retry retry.Config
}

// DefaultConfig returns a production-leaning publisher configuration.
func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		Method:         "SUBMIT",
		ConfirmTimeout: 60 * time.Second,
		Retry:          retry.PublishConfig(),
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return &resilience.ConfigurationError{Field: "Endpoint", Reason: "must not be empty"}
	}
	if c.ConfirmTimeout <= 0 {
		return &resilience.ConfigurationError{Field: "ConfirmTimeout", Reason: "must be positive"}
	}
	return c.Retry.Validate()
}

// Publisher wraps the executor with submit-then-confirm semantics.
type Publisher struct {
	cfg       Config
	exec      *executor.Executor
	transport transport.Transport
	clk       clock.Clock
	logger    *slog.Logger
}

// New constructs a publisher on top of an executor. Submissions go through
// the executor's single-attempt path (the publisher owns the retry budget
// for the whole cycle); confirmations go straight to the transport with
// their own timeout.
func New(exec *executor.Executor, t transport.Transport, clk clock.Clock, logger *slog.Logger, cfg Config) (*Publisher, error) {
	if exec == nil {
		return nil, &resilience.ConfigurationError{Field: "executor", Reason: "must not be nil"}
	}
	if t == nil {
		return nil, &resilience.ConfigurationError{Field: "transport", Reason: "must not be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Method == "" {
		cfg.Method = "SUBMIT"
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{cfg: cfg, exec: exec, transport: t, clk: clk, logger: logger}, nil
}

// NewIdempotencyKey returns a fresh caller-chosen identifier for a publish.
func NewIdempotencyKey() string {
	return uuid.NewString()
}

// Publish submits the payload and waits for its confirmation.
//
// Outcomes:
//   - confirmed-accepted: the confirmation is returned.
//   - confirmed-rejected (reverted): a PermanentError, immediately, no
//     retry and no backoff sleep.
//   - no confirmation observed (submit failure, confirm timeout or network
//     error): the whole cycle is retried with backoff up to the budget, then
//     an ExhaustedError carrying the last cause.
//
// The idempotency key must be stable across retries of the same logical
// write; use NewIdempotencyKey to mint one per payload.
func (p *Publisher) Publish(ctx context.Context, payload []byte, idempotencyKey string) (*transport.Confirmation, error) {
	if idempotencyKey == "" {
		return nil, &resilience.ConfigurationError{Field: "idempotencyKey", Reason: "must not be empty"}
	}

	req := transport.Request{
		Method:         p.cfg.Method,
		Endpoint:       p.cfg.Endpoint,
		Payload:        payload,
		IdempotencyKey: idempotencyKey,
	}

	var lastErr *cycleError
	for attempt := 1; ; attempt++ {
		conf, err := p.cycle(ctx, req)
		if err == nil {
			if attempt > 1 {
				p.logger.Info("publish succeeded after retry",
					slog.Int("attempt", attempt),
					slog.String("handle", conf.Handle))
			}
			metrics.PublishesTotal.WithLabelValues("confirmed").Inc()
			return conf, nil
		}

		var cErr *cycleError
		if !errors.As(err, &cErr) {
			// Sleep aborted by ctx; propagate as-is.
			return nil, err
		}

		if cErr.permanent {
			if cErr.stage == stageSubmit {
				p.exec.RecordFailure(req, cErr.elapsed)
			}
			metrics.PublishesTotal.WithLabelValues("rejected").Inc()
			return nil, &resilience.PermanentError{
				StatusCode: cErr.statusCode,
				Endpoint:   p.cfg.Endpoint,
				Attempts:   attempt,
				Err:        cErr.err,
			}
		}
		lastErr = cErr

		if attempt >= p.cfg.Retry.MaxAttempts {
			if lastErr.stage == stageSubmit {
				p.exec.RecordFailure(req, lastErr.elapsed)
			}
			metrics.PublishesTotal.WithLabelValues("exhausted").Inc()
			return nil, &resilience.ExhaustedError{
				Method:   req.Method,
				Endpoint: req.Endpoint,
				Attempts: attempt,
				Err:      lastErr.err,
			}
		}

		delay := p.cfg.Retry.DelayFor(attempt)
		p.logger.Warn("publish cycle failed, retrying",
			slog.Int("attempt", attempt),
			slog.Int("max_attempts", p.cfg.Retry.MaxAttempts),
			slog.String("stage", string(lastErr.stage)),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr.err))
		if serr := p.clk.Sleep(ctx, delay); serr != nil {
			return nil, fmt.Errorf("publish aborted: %w", serr)
		}
	}
}

type cycleStage string

const (
	stageSubmit  cycleStage = "submit"
	stageConfirm cycleStage = "confirm"
)

// cycleError is the classified outcome of one submit-then-confirm pass.
// elapsed is the measured submit time, threaded through so a terminal
// failure is recorded with its real duration.
type cycleError struct {
	stage      cycleStage
	permanent  bool
	statusCode int
	elapsed    time.Duration
	err        error
}

func (e *cycleError) Error() string {
	return fmt.Sprintf("publish %s failed: %v", e.stage, e.err)
}

func (e *cycleError) Unwrap() error { return e.err }

// cycle performs one submit-then-confirm pass.
func (p *Publisher) cycle(ctx context.Context, req transport.Request) (*transport.Confirmation, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "publisher.cycle")
	defer span.End()

	submitStart := p.clk.Now()
	resp, err := p.exec.Submit(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		submitElapsed := p.clk.Now().Sub(submitStart)
		if resilience.IsTransient(err) {
			return nil, &cycleError{stage: stageSubmit, elapsed: submitElapsed, err: err}
		}
		return nil, &cycleError{
			stage:      stageSubmit,
			permanent:  true,
			statusCode: statusCode(err),
			elapsed:    submitElapsed,
			err:        err,
		}
	}
	if resp.Handle == "" {
		return nil, &cycleError{
			stage:     stageSubmit,
			permanent: true,
			err:       errors.New("submit accepted but returned no handle"),
		}
	}

	confirmCtx, cancel := context.WithTimeout(ctx, p.cfg.ConfirmTimeout)
	defer cancel()
	conf, err := p.transport.Confirm(confirmCtx, resp.Handle)
	if err != nil {
		// No confirmation observed: the write may or may not be in
		// flight. Safe to retry the whole cycle thanks to the
		// idempotency key.
		return nil, &cycleError{stage: stageConfirm, err: err}
	}
	if !conf.Accepted {
		return nil, &cycleError{
			stage:     stageConfirm,
			permanent: true,
			err:       fmt.Errorf("transaction rejected: %s", conf.Reason),
		}
	}
	return conf, nil
}

func statusCode(err error) int {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
