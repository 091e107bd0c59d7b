// Package transport defines the collaborator boundary between the resilience
// core and the remote ledger endpoint. The core never speaks a wire protocol
// itself; it hands a Request to a Transport and interprets the outcome.
package transport

import (
	"context"
	"fmt"
	"time"
)

// Request describes a single call to the remote endpoint.
type Request struct {
	// Method is the operation verb (e.g. "GET", "POST", "SUBMIT").
	Method string

	// Endpoint identifies the remote operation, used together with Method
	// as the retry-counter key.
	Endpoint string

	// Payload is the opaque request body. The core does not interpret it.
	Payload []byte

	// IdempotencyKey, when set, lets the receiving system treat a
	// resubmission as a no-op duplicate.
	IdempotencyKey string
}

// RateLimitInfo carries the quota state extracted from a response.
type RateLimitInfo struct {
	Remaining int
	ResetAt   time.Time
}

// Response is the outcome of a successfully delivered request.
type Response struct {
	StatusCode int

	// Handle identifies a submitted write for later confirmation. Empty for
	// read calls.
	Handle string

	// RateLimit is non-nil when the response carried fresh quota headers.
	RateLimit *RateLimitInfo

	Body    []byte
	Elapsed time.Duration
}

// Confirmation is the terminal outcome of a submitted write.
type Confirmation struct {
	Handle string

	// Accepted is true when the write was committed, false when the remote
	// system rejected (reverted) it.
	Accepted bool

	// Reason describes a rejection. Empty on acceptance.
	Reason string
}

// Transport is implemented by the surrounding service. All methods must be
// safe for concurrent use.
type Transport interface {
	// Do delivers a request and returns the endpoint's response. A non-2xx
	// status is returned as a *StatusError, not a Response.
	Do(ctx context.Context, req Request) (*Response, error)

	// Confirm waits for the terminal outcome of a previously submitted
	// write. It must respect ctx for its timeout.
	Confirm(ctx context.Context, handle string) (*Confirmation, error)
}

// StatusError represents a non-success status from the remote endpoint.
type StatusError struct {
	StatusCode int
	Message    string

	// RateLimit is non-nil when the error response carried quota headers
	// (typical for 429 responses).
	RateLimit *RateLimitInfo
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("endpoint status %d: %s", e.StatusCode, e.Message)
}
