package executor

import (
	"context"

	"ledgerlink/internal/transport"
)

// DispatchFunc performs a single delivery attempt against the endpoint.
type DispatchFunc func(ctx context.Context, req transport.Request) (*transport.Response, error)

// Middleware wraps a dispatch with cross-cutting behavior (header injection,
// request logging, payload signing). The pipeline is fixed at construction:
// middlewares are applied in the order given, so the first middleware sees
// the request first and the response last.
type Middleware func(next DispatchFunc) DispatchFunc

// chain composes the middleware pipeline around base.
func chain(base DispatchFunc, mws []Middleware) DispatchFunc {
	out := base
	for i := len(mws) - 1; i >= 0; i-- {
		out = mws[i](out)
	}
	return out
}
