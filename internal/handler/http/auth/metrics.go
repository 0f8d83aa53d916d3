package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	authRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_requests_total",
			Help: "Authentication requests by endpoint and result",
		},
		[]string{"endpoint", "result"}, // endpoint: bearer | token | websocket
	)

	authDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "auth_duration_seconds",
			Help:    "Authentication duration by endpoint",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		},
		[]string{"endpoint"},
	)

	tokenValidationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_token_validation_failures_total",
			Help: "Rejected tokens by reason",
		},
		[]string{"reason"},
	)

	userInfoCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_user_info_cache_total",
			Help: "User info cache lookups by result",
		},
		[]string{"result"}, // hit | miss | error
	)
)

func recordAuthRequest(endpoint, result string, start time.Time) {
	authRequestsTotal.WithLabelValues(endpoint, result).Inc()
	authDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}

// RecordWebSocketAuth counts a WebSocket handshake authentication.
func RecordWebSocketAuth(result string, start time.Time) {
	recordAuthRequest("websocket", result, start)
}

func recordValidationFailure(reason string) {
	tokenValidationFailures.WithLabelValues(reason).Inc()
}

func recordUserInfoCache(result string) {
	userInfoCacheTotal.WithLabelValues(result).Inc()
}
