package executor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/observability/metrics"
	"ledgerlink/internal/resilience"
	"ledgerlink/internal/transport"
)

// dispatchResult carries the outcome of a drained dispatch back to the
// suspended caller.
type dispatchResult struct {
	resp *transport.Response
	err  error
}

type queueEntry struct {
	ctx    context.Context
	req    transport.Request
	result chan dispatchResult
}

// backoffQueue is the FIFO holding calls blocked on rate limiting. The drain
// loop dispatches entries in enqueue order while the quota allows, and
// re-arms itself on a timer when entries remain after a pass.
type backoffQueue struct {
	mu      sync.Mutex
	entries []*queueEntry

	capacity int // 0 = unbounded
	limiter  *RateLimitState
	dispatch func(ctx context.Context, req transport.Request) (*transport.Response, error)
	clk      clock.Clock
	logger   *slog.Logger

	wake chan struct{}
}

func newBackoffQueue(
	capacity int,
	limiter *RateLimitState,
	dispatch func(ctx context.Context, req transport.Request) (*transport.Response, error),
	clk clock.Clock,
	logger *slog.Logger,
) *backoffQueue {
	return &backoffQueue{
		capacity: capacity,
		limiter:  limiter,
		dispatch: dispatch,
		clk:      clk,
		logger:   logger,
		wake:     make(chan struct{}, 1),
	}
}

// enqueue appends a suspended call. When the queue is bounded and full it
// returns ErrQueueOverflow as a backpressure signal instead of growing
// without limit.
func (q *backoffQueue) enqueue(ctx context.Context, req transport.Request) (<-chan dispatchResult, error) {
	e := &queueEntry{ctx: ctx, req: req, result: make(chan dispatchResult, 1)}

	q.mu.Lock()
	if q.capacity > 0 && len(q.entries) >= q.capacity {
		q.mu.Unlock()
		return nil, resilience.ErrQueueOverflow
	}
	q.entries = append(q.entries, e)
	depth := len(q.entries)
	q.mu.Unlock()

	metrics.BackoffQueueDepth.Set(float64(depth))

	// Nudge the drain loop without blocking.
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return e.result, nil
}

func (q *backoffQueue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

func (q *backoffQueue) pop() *queueEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.entries) == 0 {
		return nil
	}
	e := q.entries[0]
	q.entries = q.entries[1:]
	metrics.BackoffQueueDepth.Set(float64(len(q.entries)))
	return e
}

// run is the drain loop. It blocks until the context is done; on shutdown
// every pending entry is failed with the context error so no caller hangs.
func (q *backoffQueue) run(ctx context.Context) {
	var rearm <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			q.failPending(ctx.Err())
			return
		case <-q.wake:
		case <-rearm:
		}
		rearm = q.drainPass(ctx)
	}
}

// drainPass dispatches queued entries in FIFO order until the queue is empty
// or the quota runs out again. It returns a timer channel to re-arm on when
// entries remain, nil otherwise.
func (q *backoffQueue) drainPass(ctx context.Context) <-chan time.Time {
	for {
		now := q.clk.Now()
		if q.limiter.Limited(now) {
			if q.depth() == 0 {
				return nil
			}
			_, resetAt := q.limiter.Snapshot()
			wait := resetAt.Sub(now)
			if wait < time.Second {
				wait = time.Second
			}
			q.logger.Debug("backoff queue still limited, re-arming",
				slog.Int("depth", q.depth()),
				slog.Duration("wait", wait))
			return q.clk.After(wait)
		}

		e := q.pop()
		if e == nil {
			return nil
		}
		if e.ctx.Err() != nil {
			e.result <- dispatchResult{err: e.ctx.Err()}
			continue
		}
		resp, err := q.dispatch(e.ctx, e.req)
		e.result <- dispatchResult{resp: resp, err: err}

		select {
		case <-ctx.Done():
			q.failPending(ctx.Err())
			return nil
		default:
		}
	}
}

func (q *backoffQueue) failPending(err error) {
	q.mu.Lock()
	pending := q.entries
	q.entries = nil
	q.mu.Unlock()

	metrics.BackoffQueueDepth.Set(0)
	for _, e := range pending {
		e.result <- dispatchResult{err: err}
	}
}
