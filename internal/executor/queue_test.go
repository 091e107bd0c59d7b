package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ledgerlink/internal/clock"
	"ledgerlink/internal/resilience"
	"ledgerlink/internal/transport"
)

func limitedState(resetAt time.Time) *RateLimitState {
	s := NewRateLimitState()
	s.Update(&transport.RateLimitInfo{Remaining: 0, ResetAt: resetAt})
	return s
}

func TestBackoffQueue_DrainsInFIFOOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFake(start)
	limits := limitedState(start.Add(30 * time.Second))

	var mu sync.Mutex
	var order []string
	dispatch := func(ctx context.Context, req transport.Request) (*transport.Response, error) {
		mu.Lock()
		order = append(order, req.Endpoint)
		mu.Unlock()
		return &transport.Response{StatusCode: 200}, nil
	}

	q := newBackoffQueue(0, limits, dispatch, clk, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go q.run(ctx)

	var results []<-chan dispatchResult
	for _, ep := range []string{"/first", "/second", "/third"} {
		ch, err := q.enqueue(context.Background(), transport.Request{Method: "GET", Endpoint: ep})
		if err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
		results = append(results, ch)
	}
	if q.depth() != 3 {
		t.Fatalf("expected depth 3 while limited, got %d", q.depth())
	}

	// Advance virtual time past the reset until the drain loop's re-arm timer
	// fires and all entries complete.
	deadline := time.After(5 * time.Second)
	for _, ch := range results {
		for done := false; !done; {
			clk.Advance(31 * time.Second)
			select {
			case res := <-ch:
				if res.err != nil {
					t.Fatalf("unexpected dispatch error: %v", res.err)
				}
				done = true
			case <-deadline:
				t.Fatal("queue never drained")
			case <-time.After(5 * time.Millisecond):
			}
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 3 || order[0] != "/first" || order[1] != "/second" || order[2] != "/third" {
		t.Errorf("expected FIFO dispatch order, got %v", order)
	}
	if q.depth() != 0 {
		t.Errorf("expected empty queue after drain, got depth %d", q.depth())
	}
}

func TestBackoffQueue_Overflow(t *testing.T) {
	start := time.Now()
	clk := clock.NewFake(start)
	limits := limitedState(start.Add(time.Minute))

	dispatch := func(ctx context.Context, req transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: 200}, nil
	}
	q := newBackoffQueue(2, limits, dispatch, clk, testLogger())

	for i := 0; i < 2; i++ {
		if _, err := q.enqueue(context.Background(), transport.Request{Method: "GET", Endpoint: "/v1/balance"}); err != nil {
			t.Fatalf("enqueue %d failed: %v", i, err)
		}
	}

	_, err := q.enqueue(context.Background(), transport.Request{Method: "GET", Endpoint: "/v1/balance"})
	if !errors.Is(err, resilience.ErrQueueOverflow) {
		t.Errorf("expected ErrQueueOverflow, got %v", err)
	}
	if q.depth() != 2 {
		t.Errorf("expected depth to stay at capacity, got %d", q.depth())
	}
}

func TestBackoffQueue_ShutdownFailsPending(t *testing.T) {
	start := time.Now()
	clk := clock.NewFake(start)
	limits := limitedState(start.Add(time.Minute))

	dispatch := func(ctx context.Context, req transport.Request) (*transport.Response, error) {
		return &transport.Response{StatusCode: 200}, nil
	}
	q := newBackoffQueue(0, limits, dispatch, clk, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		q.run(ctx)
		close(done)
	}()

	ch1, err := q.enqueue(context.Background(), transport.Request{Method: "GET", Endpoint: "/a"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	ch2, err := q.enqueue(context.Background(), transport.Request{Method: "GET", Endpoint: "/b"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("drain loop did not stop")
	}

	for i, ch := range []<-chan dispatchResult{ch1, ch2} {
		select {
		case res := <-ch:
			if !errors.Is(res.err, context.Canceled) {
				t.Errorf("entry %d: expected context.Canceled, got %v", i, res.err)
			}
		case <-time.After(time.Second):
			t.Fatalf("entry %d never failed on shutdown", i)
		}
	}
	if q.depth() != 0 {
		t.Errorf("expected empty queue after shutdown, got depth %d", q.depth())
	}
}

func TestBackoffQueue_SkipsCancelledEntries(t *testing.T) {
	start := time.Now()
	clk := clock.NewFake(start)
	limits := NewRateLimitState() // never limited

	var dispatched int
	dispatch := func(ctx context.Context, req transport.Request) (*transport.Response, error) {
		dispatched++
		return &transport.Response{StatusCode: 200}, nil
	}
	q := newBackoffQueue(0, limits, dispatch, clk, testLogger())

	entryCtx, entryCancel := context.WithCancel(context.Background())
	entryCancel()
	ch, err := q.enqueue(entryCtx, transport.Request{Method: "GET", Endpoint: "/a"})
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	q.drainPass(context.Background())

	select {
	case res := <-ch:
		if !errors.Is(res.err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", res.err)
		}
	default:
		t.Fatal("cancelled entry was not failed")
	}
	if dispatched != 0 {
		t.Errorf("cancelled entry must not be dispatched, got %d dispatches", dispatched)
	}
}
