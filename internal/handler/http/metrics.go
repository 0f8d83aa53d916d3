package http

import (
	"net/http"
	"time"

	"traceback-analyser/internal/handler/http/pathutil"
	"traceback-analyser/internal/handler/http/responsewriter"
	"traceback-analyser/internal/observability/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsMiddleware records request count, latency and response size per
// normalized path. WebSocket sessions are additionally tracked as a gauge.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		metrics.HTTPRequestsInFlight.Inc()
		defer metrics.HTTPRequestsInFlight.Dec()

		path := pathutil.NormalizePath(r.URL.Path)
		if path == "/ws" {
			metrics.WebSocketSessionsActive.Inc()
			defer metrics.WebSocketSessionsActive.Dec()
		}

		rw := responsewriter.Wrap(w)
		start := time.Now()
		next.ServeHTTP(rw, r)

		metrics.RecordHTTPRequest(r.Method, path, rw.StatusCode(), rw.BytesWritten(), time.Since(start))
	})
}

// MetricsHandler serves the Prometheus exposition format.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
