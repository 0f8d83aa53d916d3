package main

import (
	"database/sql"
	"log/slog"
	"net/http"

	"traceback-analyser/internal/config"
	hhttp "traceback-analyser/internal/handler/http"
	"traceback-analyser/internal/handler/http/auth"
	"traceback-analyser/internal/handler/http/requestid"
	"traceback-analyser/internal/handler/http/ws"
	"traceback-analyser/internal/infra/analyser"
	"traceback-analyser/internal/observability/tracing"
	"traceback-analyser/internal/resilience/circuitbreaker"
	"traceback-analyser/internal/usecase/quota"
)

type routerDeps struct {
	Config      config.AppConfig
	Logger      *slog.Logger
	DB          *sql.DB
	Store       auth.TokenStore
	Validator   *auth.Validator
	Issuer      *auth.Issuer
	Quota       auth.QuotaStatusReader
	Analysis    ws.Analyzer
	Breakers    []hhttp.BreakerReporter
	RateLimiter *hhttp.RateLimiter
}

// newRateLimiter keys on RemoteAddr unless proxy trust is configured.
func newRateLimiter(cfg config.AppConfig) *hhttp.RateLimiter {
	var extractor hhttp.IPExtractor = hhttp.RemoteAddrExtractor{}
	if cfg.TrustProxy {
		extractor = hhttp.NewTrustedProxyExtractor(cfg.TrustedProxies)
	}
	return hhttp.NewRateLimiter(cfg.RateLimit, cfg.RateLimitWindow, extractor)
}

// breakersOf collects the circuit breakers /health reports on.
func breakersOf(an analyser.Analyser, database *circuitbreaker.DB) []hhttp.BreakerReporter {
	breakers := []hhttp.BreakerReporter{database.Breaker()}
	if b, ok := an.(interface {
		Breaker() *circuitbreaker.CircuitBreaker
	}); ok {
		breakers = append(breakers, b.Breaker())
	}
	return breakers
}

// newRouter registers all routes and wraps them in the middleware chain:
// request ID, tracing, IP rate limit, recover, logging, body limit, metrics.
func newRouter(d routerDeps) http.Handler {
	bearer := auth.Bearer(d.Validator)
	userInfo := bearer(&auth.UserInfoHandler{Quota: d.Quota, Store: d.Store, TTL: d.Config.UserInfoTTL})

	mux := http.NewServeMux()
	mux.Handle("GET /ws", &ws.Handler{
		Analyzer:       d.Analysis,
		Validator:      d.Validator,
		Cache:          d.Store,
		Policy:         d.Config.Filter,
		ReadLimit:      d.Config.WSReadLimit,
		ReadTimeout:    d.Config.WSReadTimeout,
		OriginPatterns: d.Config.AllowedOrigins,
	})
	if d.Config.AuthIssuerEnabled {
		mux.Handle("/auth/token", auth.TokenHandler(d.Issuer))
	}
	mux.Handle("GET /user_info", userInfo)
	mux.Handle("GET /get_user_info", userInfo)
	mux.Handle("GET /logout", bearer(&auth.LogoutHandler{Store: d.Store}))

	mux.Handle("GET /health", &hhttp.HealthHandler{DB: d.DB, Cache: d.Store, Breakers: d.Breakers, Version: d.Config.Version})
	mux.Handle("GET /ready", &hhttp.ReadyHandler{DB: d.DB})
	mux.Handle("GET /live", &hhttp.LiveHandler{})
	mux.Handle("GET /metrics", hhttp.MetricsHandler())

	return hhttp.Chain(mux,
		requestid.Middleware,
		tracing.Middleware,
		d.RateLimiter.Limit,
		hhttp.Recover(d.Logger),
		hhttp.Logging(d.Logger),
		hhttp.LimitRequestBody(d.Config.MaxBodyBytes),
		hhttp.MetricsMiddleware,
	)
}

var _ auth.QuotaStatusReader = (*quota.Service)(nil)
