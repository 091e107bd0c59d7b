// Package observability groups the module's observability infrastructure:
// structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// Subpackages:
//   - logging: slog-based JSON logging and typed log events
//   - metrics: Prometheus registry for executor, queue and health counters
//   - tracing: OpenTelemetry tracer for executor and publisher spans
//
// Example usage:
//
//	import (
//	    "ledgerlink/internal/observability/logging"
//	    "ledgerlink/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("monitor started")
//
//	    metrics.RequestsTotal.WithLabelValues("READ", "/v1/accounts", "success").Inc()
//	}
package observability
