// Package tracing provides OpenTelemetry spans for HTTP requests and for the
// analysis pipeline stages (quota check, filtering, LLM streaming).
//
// Without an exporter the SDK provider still assigns trace IDs, which the
// logging middleware and the X-Trace-Id header expose for correlation.
package tracing
