// Package executor implements the resilient request executor: failure
// classification, retry with exponential backoff, and queueing of calls
// while the endpoint's rate limit is exhausted.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/observability/logging"
	"ledgerlink/internal/observability/metrics"
	"ledgerlink/internal/observability/tracing"
	"ledgerlink/internal/resilience"
	"ledgerlink/internal/resilience/circuitbreaker"
	"ledgerlink/internal/resilience/retry"
	"ledgerlink/internal/transport"
)

// Config holds the executor configuration.
type Config struct {
	// Retry is the backoff schedule for transient failures.
	Retry retry.Config

	// DispatchTimeout bounds a single delivery attempt. Zero disables the
	// per-attempt timeout (the transport may still enforce its own).
	DispatchTimeout time.Duration

	// QueueCapacity bounds the backoff queue. Zero means unbounded, which
	// matches the source behavior; bounded queues return ErrQueueOverflow.
	QueueCapacity int

	// PaceRPS, when positive, smooths outbound dispatches to this many
	// requests per second with PaceBurst allowance.
	PaceRPS   float64
	PaceBurst int

	// Breaker, when non-nil, wires a circuit breaker around delivery.
	Breaker *circuitbreaker.Config
}

// DefaultConfig returns a production-leaning executor configuration.
func DefaultConfig() Config {
	return Config{
		Retry:           retry.DefaultConfig(),
		DispatchTimeout: 30 * time.Second,
	}
}

// Validate checks the configuration, returning a ConfigurationError on the
// first invalid field.
func (c Config) Validate() error {
	if err := c.Retry.Validate(); err != nil {
		return err
	}
	if c.DispatchTimeout < 0 {
		return &resilience.ConfigurationError{Field: "DispatchTimeout", Reason: "must not be negative"}
	}
	if c.QueueCapacity < 0 {
		return &resilience.ConfigurationError{Field: "QueueCapacity", Reason: "must not be negative"}
	}
	if c.PaceRPS < 0 {
		return &resilience.ConfigurationError{Field: "PaceRPS", Reason: "must not be negative"}
	}
	if c.PaceRPS > 0 && c.PaceBurst < 1 {
		return &resilience.ConfigurationError{Field: "PaceBurst", Reason: "must be at least 1 when pacing is enabled"}
	}
	return nil
}

// Executor is the retry/backoff/classification engine for calls to the
// remote endpoint. Construct it explicitly with New; there is no package
// level instance.
type Executor struct {
	cfg       Config
	transport transport.Transport
	clk       clock.Clock
	logger    *slog.Logger

	ledger  *Ledger
	limits  *RateLimitState
	queue   *backoffQueue
	retries *retryTable

	send    DispatchFunc
	pacer   *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
}

// New constructs an executor. Middlewares wrap every delivery attempt in the
// order given. The returned executor is inert until Run is started for the
// backoff queue's drain loop.
func New(t transport.Transport, clk clock.Clock, logger *slog.Logger, cfg Config, mws ...Middleware) (*Executor, error) {
	if t == nil {
		return nil, &resilience.ConfigurationError{Field: "transport", Reason: "must not be nil"}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Executor{
		cfg:       cfg,
		transport: t,
		clk:       clk,
		logger:    logger,
		ledger:    NewLedger(clk, logger),
		limits:    NewRateLimitState(),
		retries:   newRetryTable(),
	}
	if cfg.PaceRPS > 0 {
		e.pacer = rate.NewLimiter(rate.Limit(cfg.PaceRPS), cfg.PaceBurst)
	}
	if cfg.Breaker != nil {
		e.breaker = circuitbreaker.New(*cfg.Breaker)
	}
	e.send = chain(e.deliver, mws)
	e.queue = newBackoffQueue(cfg.QueueCapacity, e.limits, e.send, clk, logger)
	return e, nil
}

// Run drives the backoff queue's drain loop until ctx is done. It must be
// running for rate-limited calls to resume; start it once, in its own
// goroutine.
func (e *Executor) Run(ctx context.Context) {
	e.queue.run(ctx)
}

// Execute performs a call with the default transient/permanent
// classification.
func (e *Executor) Execute(ctx context.Context, req transport.Request) (*transport.Response, error) {
	return e.ExecuteWith(ctx, req, nil)
}

// ExecuteWith performs a call with a caller-supplied retry predicate. A nil
// predicate falls back to resilience.IsTransient.
//
// Transient failures are retried with exponential backoff up to the
// configured budget; the caller only ever sees a success, a PermanentError,
// or an ExhaustedError carrying the last cause.
func (e *Executor) ExecuteWith(ctx context.Context, req transport.Request, pred resilience.RetryPredicate) (*transport.Response, error) {
	if pred == nil {
		pred = resilience.IsTransient
	}
	key := retryKey{method: req.Method, endpoint: req.Endpoint}
	started := e.clk.Now()

	for {
		attempt := e.retries.get(key) + 1
		logging.Emit(e.logger, slog.LevelDebug, logging.RequestStart{
			Method:   req.Method,
			Endpoint: req.Endpoint,
			Attempt:  attempt,
		})

		resp, measured, err := e.dispatch(ctx, req)
		elapsed := attemptElapsed(resp, measured)

		if err == nil {
			e.recordOutcome(req, elapsed, started, "success")
			e.ledger.record(elapsed, true)
			e.limits.Update(resp.RateLimit)
			e.retries.clear(key)
			return resp, nil
		}

		// A 429 often carries the fresh reset time on the error itself.
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) {
			e.limits.Update(statusErr.RateLimit)
		}

		// A cancelled caller is not an endpoint failure: propagate the raw
		// ctx error and leave the ledger untouched.
		if ctx.Err() != nil {
			e.retries.clear(key)
			return nil, ctx.Err()
		}

		if !pred(err) {
			e.recordOutcome(req, elapsed, started, "permanent")
			e.ledger.record(elapsed, false)
			e.retries.clear(key)
			return nil, &resilience.PermanentError{
				StatusCode: statusCode(err),
				Endpoint:   req.Endpoint,
				Attempts:   attempt,
				Err:        err,
			}
		}

		failures := e.retries.inc(key)
		if failures >= e.cfg.Retry.MaxAttempts {
			e.recordOutcome(req, elapsed, started, "exhausted")
			e.ledger.record(elapsed, false)
			e.retries.clear(key)
			return nil, &resilience.ExhaustedError{
				Method:   req.Method,
				Endpoint: req.Endpoint,
				Attempts: failures,
				Err:      err,
			}
		}

		delay := e.cfg.Retry.DelayFor(failures)
		metrics.RetriesTotal.WithLabelValues(req.Method, req.Endpoint).Inc()
		logging.Emit(e.logger, slog.LevelWarn, logging.Retry{
			Method:   req.Method,
			Endpoint: req.Endpoint,
			Attempt:  failures,
			Max:      e.cfg.Retry.MaxAttempts,
			Delay:    delay,
			Err:      err,
		})
		if serr := e.clk.Sleep(ctx, delay); serr != nil {
			return nil, fmt.Errorf("retry aborted: %w", serr)
		}
	}
}

// Submit performs a single delivery attempt with no internal retries. The
// write path owns the retry budget for its whole submit-then-confirm cycle,
// so the executor must not retry the submit step on its own.
//
// A success updates the ledger and rate-limit state like any other call. A
// failure is returned unrecorded: the caller decides whether its cycle is
// terminal and reports that via RecordFailure, keeping errorCount a count of
// terminal outcomes only.
func (e *Executor) Submit(ctx context.Context, req transport.Request) (*transport.Response, error) {
	logging.Emit(e.logger, slog.LevelDebug, logging.RequestStart{
		Method:   req.Method,
		Endpoint: req.Endpoint,
		Attempt:  1,
	})
	started := e.clk.Now()
	resp, _, err := e.dispatch(ctx, req)
	if err != nil {
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) {
			e.limits.Update(statusErr.RateLimit)
		}
		return nil, err
	}
	e.recordOutcome(req, resp.Elapsed, started, "success")
	e.ledger.record(resp.Elapsed, true)
	e.limits.Update(resp.RateLimit)
	return resp, nil
}

// RecordFailure registers the terminal failure of a caller-owned cycle in
// the ledger and the Prometheus mirror.
func (e *Executor) RecordFailure(req transport.Request, elapsed time.Duration) {
	metrics.RequestsTotal.WithLabelValues(req.Method, req.Endpoint, "error").Inc()
	e.ledger.record(elapsed, false)
}

// Metrics returns a snapshot of the running counters and derived rates.
func (e *Executor) Metrics() Metrics {
	return e.ledger.Snapshot()
}

// ResetMetrics logs the prior snapshot and zeroes all counters.
func (e *Executor) ResetMetrics() {
	e.ledger.Reset()
}

// RateLimit returns the last observed quota state.
func (e *Executor) RateLimit() (remaining int, resetAt time.Time) {
	return e.limits.Snapshot()
}

// QueueDepth returns the number of calls currently parked on the backoff
// queue.
func (e *Executor) QueueDepth() int {
	return e.queue.depth()
}

// RetryCount returns the current retry counter for a (method, endpoint)
// pair. Zero means no retry sequence is in progress.
func (e *Executor) RetryCount(method, endpoint string) int {
	return e.retries.get(retryKey{method: method, endpoint: endpoint})
}

// dispatch routes one attempt either directly to delivery or, while the
// quota is exhausted, through the backoff queue where the caller suspends
// until the drain loop reaches this entry. The returned duration is the
// attempt's delivery time, excluding any time parked on the queue.
func (e *Executor) dispatch(ctx context.Context, req transport.Request) (*transport.Response, time.Duration, error) {
	if e.limits.Limited(e.clk.Now()) {
		_, resetAt := e.limits.Snapshot()
		ch, err := e.queue.enqueue(ctx, req)
		if err != nil {
			return nil, 0, err
		}
		metrics.RateLimitedTotal.Inc()
		logging.Emit(e.logger, slog.LevelInfo, logging.RateLimited{
			Method:   req.Method,
			Endpoint: req.Endpoint,
			ResetAt:  resetAt,
			Queued:   e.queue.depth(),
		})
		select {
		case res := <-ch:
			return res.resp, attemptElapsed(res.resp, 0), res.err
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	started := e.clk.Now()
	resp, err := e.send(ctx, req)
	return resp, e.clk.Now().Sub(started), err
}

// deliver is the innermost dispatch: pacing, per-attempt timeout, circuit
// breaker, then the transport.
func (e *Executor) deliver(ctx context.Context, req transport.Request) (*transport.Response, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "executor.dispatch")
	defer span.End()

	if e.pacer != nil {
		if err := e.pacer.Wait(ctx); err != nil {
			return nil, err
		}
	}
	if e.cfg.DispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.DispatchTimeout)
		defer cancel()
	}

	started := e.clk.Now()
	var resp *transport.Response
	var err error
	if e.breaker != nil {
		var v interface{}
		v, err = e.breaker.Execute(func() (interface{}, error) {
			return e.transport.Do(ctx, req)
		})
		if r, ok := v.(*transport.Response); ok {
			resp = r
		}
	} else {
		resp, err = e.transport.Do(ctx, req)
	}

	elapsed := e.clk.Now().Sub(started)
	if resp != nil && resp.Elapsed == 0 {
		resp.Elapsed = elapsed
	}
	logging.Emit(e.logger, slog.LevelDebug, logging.RequestDone{
		Method:   req.Method,
		Endpoint: req.Endpoint,
		Status:   statusOf(resp, err),
		Elapsed:  elapsed,
		Err:      err,
	})
	return resp, err
}

// attemptElapsed prefers the transport-reported duration, falling back to
// the measured delivery time when the attempt never produced a response.
func attemptElapsed(resp *transport.Response, measured time.Duration) time.Duration {
	if resp != nil && resp.Elapsed > 0 {
		return resp.Elapsed
	}
	return measured
}

// recordOutcome updates the Prometheus mirror for a finished call.
func (e *Executor) recordOutcome(req transport.Request, elapsed time.Duration, started time.Time, outcome string) {
	metrics.RequestsTotal.WithLabelValues(req.Method, req.Endpoint, outcome).Inc()
	total := e.clk.Now().Sub(started)
	if total <= 0 {
		total = elapsed
	}
	metrics.RequestDuration.WithLabelValues(req.Method, req.Endpoint).Observe(total.Seconds())
}

func statusOf(resp *transport.Response, err error) int {
	if resp != nil {
		return resp.StatusCode
	}
	return statusCode(err)
}

func statusCode(err error) int {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}
