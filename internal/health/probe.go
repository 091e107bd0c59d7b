package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ledgerlink/internal/executor"
	"ledgerlink/internal/transport"
)

// ErrDegraded marks a probe outcome that is marginal rather than broken:
// slow but functioning, or a not-yet-authorized response that is
// semantically healthy. Probes wrap it to report degraded instead of
// unhealthy.
var ErrDegraded = errors.New("degraded")

// Probe checks one service or subsystem. Check returns opaque details for
// the result; a returned error downgrades the result to unhealthy (or
// degraded when it wraps ErrDegraded) without ever aborting the cycle.
type Probe interface {
	Name() string
	Check(ctx context.Context) (map[string]any, error)
}

// ProbeFunc adapts a function to the Probe interface.
type ProbeFunc struct {
	ProbeName string
	Fn        func(ctx context.Context) (map[string]any, error)
}

func (p ProbeFunc) Name() string { return p.ProbeName }

func (p ProbeFunc) Check(ctx context.Context) (map[string]any, error) {
	return p.Fn(ctx)
}

// ExecutorProbe reads the executor's metrics ledger and judges the request
// path by its error rate and staleness.
type ExecutorProbe struct {
	Exec *executor.Executor

	// DegradedErrorRate and UnhealthyErrorRate are the error-rate bands.
	// Defaults: 0.1 and 0.5.
	DegradedErrorRate  float64
	UnhealthyErrorRate float64
}

func (p *ExecutorProbe) Name() string { return "executor" }

func (p *ExecutorProbe) Check(_ context.Context) (map[string]any, error) {
	degraded := p.DegradedErrorRate
	if degraded == 0 {
		degraded = 0.1
	}
	unhealthy := p.UnhealthyErrorRate
	if unhealthy == 0 {
		unhealthy = 0.5
	}

	m := p.Exec.Metrics()
	details := map[string]any{
		"request_count": m.RequestCount,
		"error_rate":    m.ErrorRate,
		"avg_ms":        m.AvgResponseTimeMs,
		"queue_depth":   p.Exec.QueueDepth(),
	}
	if m.RequestCount == 0 {
		// Nothing dispatched yet: not evidence of a problem.
		return details, nil
	}
	if m.ErrorRate >= unhealthy {
		return details, fmt.Errorf("error rate %.2f over threshold %.2f", m.ErrorRate, unhealthy)
	}
	if m.ErrorRate >= degraded {
		return details, fmt.Errorf("error rate %.2f: %w", m.ErrorRate, ErrDegraded)
	}
	return details, nil
}

// EndpointProbe pings the remote endpoint through the transport.
type EndpointProbe struct {
	ProbeName string
	Transport transport.Transport
	Method    string
	Endpoint  string
}

func (p *EndpointProbe) Name() string { return p.ProbeName }

func (p *EndpointProbe) Check(ctx context.Context) (map[string]any, error) {
	resp, err := p.Transport.Do(ctx, transport.Request{Method: p.Method, Endpoint: p.Endpoint})
	if err != nil {
		var statusErr *transport.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == 401 {
			// Not yet authorized: the endpoint is up, we just lack
			// credentials. Marginal, not broken.
			return map[string]any{"status": statusErr.StatusCode}, fmt.Errorf("unauthorized: %w", ErrDegraded)
		}
		return nil, err
	}
	return map[string]any{"status": resp.StatusCode, "elapsed": resp.Elapsed.String()}, nil
}

// QueueProbe watches the backoff queue depth as a backpressure signal.
type QueueProbe struct {
	Exec *executor.Executor

	// DegradedDepth and UnhealthyDepth are the queue-depth bands.
	// Defaults: 10 and 100.
	DegradedDepth  int
	UnhealthyDepth int
}

func (p *QueueProbe) Name() string { return "backoff-queue" }

func (p *QueueProbe) Check(_ context.Context) (map[string]any, error) {
	degraded := p.DegradedDepth
	if degraded == 0 {
		degraded = 10
	}
	unhealthy := p.UnhealthyDepth
	if unhealthy == 0 {
		unhealthy = 100
	}

	depth := p.Exec.QueueDepth()
	remaining, resetAt := p.Exec.RateLimit()
	details := map[string]any{
		"depth":     depth,
		"remaining": remaining,
		"reset_at":  resetAt,
	}
	if depth >= unhealthy {
		return details, fmt.Errorf("queue depth %d over threshold %d", depth, unhealthy)
	}
	if depth >= degraded {
		return details, fmt.Errorf("queue depth %d: %w", depth, ErrDegraded)
	}
	return details, nil
}

// probeTimeoutErr is reported when a probe does not finish inside its
// timeout window.
func probeTimeoutErr(name string, timeout time.Duration) error {
	return fmt.Errorf("probe %s timed out after %s", name, timeout)
}
