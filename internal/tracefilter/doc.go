// Package tracefilter compacts repetitive stack traces by collapsing runs of
// near-duplicate lines.
//
// A trace is prepared once (dedent and blank-line removal), then a run-length
// compactor is applied for a fixed number of passes. Lines are compared through
// a variant-specific normalization that hides volatile data such as source line
// numbers, but the emitted lines are always the original text.
//
// Every function in this package is a pure function of its arguments and is
// safe for concurrent use.
//
// Example:
//
//	compacted := tracefilter.Filter(trace, tracefilter.VariantJava, tracefilter.DefaultPolicy())
package tracefilter
