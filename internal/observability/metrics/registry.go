package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// Buckets cover fast JSON endpoints up to long-lived analysis sessions.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Current number of HTTP requests being served",
		},
	)

	HTTPResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_response_size_bytes",
			Help:    "HTTP response size in bytes",
			Buckets: prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	WebSocketSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_sessions_active",
			Help: "Number of open analysis WebSocket sessions",
		},
	)
)

// Stack trace filtering metrics
var (
	FilterRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tracefilter_runs_total",
			Help: "Total number of stack trace compactions",
		},
		[]string{"variant"},
	)

	FilterInputLines = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracefilter_input_lines",
			Help:    "Number of non-blank lines handed to the compactor",
			Buckets: prometheus.ExponentialBuckets(4, 2, 12),
		},
		[]string{"variant"},
	)

	FilterReductionRatio = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracefilter_reduction_ratio",
			Help:    "Share of input lines removed by compaction (0 to 1)",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		},
		[]string{"variant"},
	)

	FilterDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tracefilter_duration_seconds",
			Help:    "Time spent compacting one stack trace",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"variant"},
	)
)

// Analyser metrics
var (
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyses_total",
			Help: "Total number of analyses by language and outcome",
		},
		[]string{"language", "status"},
	)

	AnalyserRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analyser_request_duration_seconds",
			Help:    "Duration of a streamed LLM analysis",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		},
		[]string{"provider", "status"},
	)

	AnalyserTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analyser_tokens_total",
			Help: "Tokens consumed by analyses",
		},
		[]string{"provider", "type"},
	)
)

// Quota metrics
var (
	QuotaRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quota_rejections_total",
			Help: "Analyses refused because a user quota was exhausted",
		},
		[]string{"reason"},
	)

	QuotaResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quota_resets_total",
			Help: "Number of scheduled quota resets",
		},
	)
)

// Database metrics
var (
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)
)
