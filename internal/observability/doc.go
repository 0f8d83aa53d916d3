// Package observability groups the logging, metrics, tracing and SLO
// packages of the service.
//
// Subpackages:
//   - logging: slog construction and the request-scoped logger in context
//   - metrics: Prometheus collectors and recorders for filter, analyser, quota and HTTP
//   - tracing: OpenTelemetry tracer provider, spans and the HTTP middleware
//   - slo: rolling availability and latency indicators of analyses
//
// Example usage:
//
//	import (
//	    "traceback-analyser/internal/observability/logging"
//	    "traceback-analyser/internal/observability/metrics"
//	)
//
//	func main() {
//	    logger := logging.NewLogger()
//	    logger.Info("application started")
//
//	    metrics.RecordFilter("java", 120, 14, time.Millisecond)
//	}
package observability
