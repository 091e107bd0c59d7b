package resilience

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"

	"ledgerlink/internal/transport"
)

// PermanentError marks a failure that will not change on retry. The executor
// propagates it immediately without sleeping.
type PermanentError struct {
	StatusCode int
	Endpoint   string
	Attempts   int
	Err        error
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("permanent failure on %s (status %d, attempt %d): %v",
		e.Endpoint, e.StatusCode, e.Attempts, e.Err)
}

func (e *PermanentError) Unwrap() error { return e.Err }

// ExhaustedError is raised after the retry budget for a call is spent. It
// carries the last transient cause.
type ExhaustedError struct {
	Method   string
	Endpoint string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted for %s %s after %d attempts: %v",
		e.Method, e.Endpoint, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// ConfigurationError reports invalid settings at construction time. It is
// never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// ErrQueueOverflow is the backpressure signal returned when a bounded backoff
// queue is full. Callers should shed load or try again later.
var ErrQueueOverflow = errors.New("backoff queue overflow")

// RetryPredicate decides whether an error from a dispatch is worth retrying.
type RetryPredicate func(err error) bool

// IsTransient is the default retry predicate: network errors and timeouts,
// connection-level syscall errors, and endpoint statuses 5xx, 429 and 408.
// Context cancellation is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var permErr *PermanentError
	var cfgErr *ConfigurationError
	if errors.As(err, &permErr) || errors.As(err, &cfgErr) || errors.Is(err, ErrQueueOverflow) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode >= 500 && statusErr.StatusCode < 600 {
			return true
		}
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		if statusErr.StatusCode == http.StatusRequestTimeout {
			return true
		}
		// Other 4xx are permanent.
		return false
	}

	// No response observed at all: assume the network ate it.
	return true
}
