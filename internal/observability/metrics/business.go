package metrics

import (
	"strconv"
	"time"
)

// RecordHTTPRequest records one completed HTTP request. path must already be normalized.
func RecordHTTPRequest(method, path string, status, bytes int, duration time.Duration) {
	code := strconv.Itoa(status)
	HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
	HTTPRequestDuration.WithLabelValues(method, path, code).Observe(duration.Seconds())
	HTTPResponseSize.WithLabelValues(method, path).Observe(float64(bytes))
}

// RecordFilter records one compaction of inputLines down to outputLines.
func RecordFilter(variant string, inputLines, outputLines int, duration time.Duration) {
	FilterRunsTotal.WithLabelValues(variant).Inc()
	FilterInputLines.WithLabelValues(variant).Observe(float64(inputLines))
	FilterDuration.WithLabelValues(variant).Observe(duration.Seconds())
	FilterReductionRatio.WithLabelValues(variant).Observe(ReductionRatio(inputLines, outputLines))
}

// ReductionRatio returns the share of lines removed; 0 when there was no input.
func ReductionRatio(inputLines, outputLines int) float64 {
	if inputLines <= 0 {
		return 0
	}
	return float64(inputLines-outputLines) / float64(inputLines)
}

// RecordAnalysis counts one analysis. status is "success", "rejected" or "failure".
func RecordAnalysis(language, status string) {
	AnalysesTotal.WithLabelValues(language, status).Inc()
}

// RecordAnalyserRequest records the outcome and token usage of one LLM call.
func RecordAnalyserRequest(provider string, success bool, duration time.Duration, inputTokens, generatedTokens int) {
	status := "success"
	if !success {
		status = "failure"
	}
	AnalyserRequestDuration.WithLabelValues(provider, status).Observe(duration.Seconds())
	if inputTokens > 0 {
		AnalyserTokensTotal.WithLabelValues(provider, "input").Add(float64(inputTokens))
	}
	if generatedTokens > 0 {
		AnalyserTokensTotal.WithLabelValues(provider, "generated").Add(float64(generatedTokens))
	}
}

// RecordQuotaRejection counts a refused analysis; reason is "tokens" or "requests".
func RecordQuotaRejection(reason string) {
	QuotaRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordQuotaReset counts one completed quota reset.
func RecordQuotaReset() {
	QuotaResetsTotal.Inc()
}

// RecordDBQuery records the duration of a repository operation.
func RecordDBQuery(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
