// Package metrics holds the service's Prometheus collectors and the helpers
// that record them.
//
// Collectors are registered with the default registry through promauto and
// exposed on /metrics. Callers use the Record* helpers rather than the
// collectors so label values stay consistent.
//
// Example usage:
//
//	stats := tracefilter.FilterWithStats(trace, variant, policy)
//	metrics.RecordFilter(variant.String(), stats.InputLines, stats.OutputLines, time.Since(start))
package metrics
