// Package tracing provides OpenTelemetry tracing integration for the
// resilience core. Spans are created around executor dispatches and publisher
// cycles; the surrounding service decides where spans are exported.
package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// tracer is the global tracer instance for the ledgerlink module.
var tracer = otel.Tracer("ledgerlink")

// GetTracer returns the global tracer for creating spans.
//
// Example usage:
//
//	ctx, span := tracing.GetTracer().Start(ctx, "executor.dispatch")
//	defer span.End()
func GetTracer() trace.Tracer {
	return tracer
}

// Init installs a default SDK tracer provider and returns a shutdown
// function. Callers that already configure a provider (with exporters,
// sampling, etc.) should skip Init and call otel.SetTracerProvider directly.
func Init() func(context.Context) error {
	tp := sdktrace.NewTracerProvider()
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
