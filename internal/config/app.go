// Package config assembles the server configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"time"

	"traceback-analyser/internal/handler/http/auth"
	"traceback-analyser/internal/infra/analyser"
	"traceback-analyser/internal/infra/db"
	"traceback-analyser/internal/tracefilter"
	"traceback-analyser/internal/usecase/quota"
	pkgconfig "traceback-analyser/pkg/config"
)

// Server defaults.
const (
	DefaultHTTPAddr        = ":8080"
	DefaultMaxBodyBytes    = 1 << 20
	DefaultRateLimit       = 60
	DefaultRateLimitWindow = time.Minute
	DefaultRedisPrefix     = "traceback:"
	DefaultShutdownTimeout = 10 * time.Second
)

// WebSocket policy defaults; they match what the analysis endpoint always used.
const (
	DefaultWSSimilarityThreshold = 0.5
	DefaultWSMaxSimilarLines     = 2
	DefaultWSPasses              = 2
)

// RedisConfig selects the token store. An empty Addr keeps revocations and
// the user info cache in process memory.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// AppConfig is everything cmd/api needs.
type AppConfig struct {
	HTTPAddr        string
	Version         string
	MaxBodyBytes    int64
	ShutdownTimeout time.Duration

	// IP rate limit of the HTTP surface.
	RateLimit       int
	RateLimitWindow time.Duration
	// TrustProxy keys the limiter on X-Forwarded-For / X-Real-IP, but only
	// for requests whose peer is in TrustedProxies.
	TrustProxy     bool
	TrustedProxies []netip.Prefix

	Filter            tracefilter.Policy
	FilterWorkers     int
	DetailedResponses bool

	WSReadLimit    int64
	WSReadTimeout  time.Duration
	AllowedOrigins []string

	Analyser analyser.Config

	Quota              quota.Limits
	QuotaResetSchedule string

	Database db.ConnectionConfig
	Redis    RedisConfig

	UserInfoTTL time.Duration

	JWTSecret         string
	JWTTTL            time.Duration
	AuthIssuerEnabled bool

	TraceSampleRatio float64
}

// Load reads the configuration. When FILTER_POLICY_FILE names a YAML file its
// policy replaces the defaults and FILTER_* variables still override it.
func Load() (AppConfig, error) {
	policy := tracefilter.Policy{
		SimilarityThreshold: DefaultWSSimilarityThreshold,
		MaxSimilarLines:     DefaultWSMaxSimilarLines,
		Passes:              DefaultWSPasses,
	}
	if path := pkgconfig.GetEnvString("FILTER_POLICY_FILE", ""); path != "" {
		p, err := LoadPolicyFile(path, policy)
		if err != nil {
			configMetrics.recordValidationError("filter_policy_file")
			return AppConfig{}, err
		}
		policy = p
	}
	policy.SimilarityThreshold = pkgconfig.GetEnvFloat("FILTER_SIMILARITY_THRESHOLD", policy.SimilarityThreshold)
	policy.MaxSimilarLines = pkgconfig.GetEnvInt("FILTER_MAX_SIMILAR_LINES", policy.MaxSimilarLines)
	policy.Passes = pkgconfig.GetEnvInt("FILTER_PASSES", policy.Passes)

	proxies, err := pkgconfig.ParsePrefixes(pkgconfig.GetEnvStringList("RATE_LIMIT_TRUSTED_PROXIES", nil))
	if err != nil {
		configMetrics.recordValidationError("trusted_proxies")
		return AppConfig{}, wrap("RATE_LIMIT_TRUSTED_PROXIES", err)
	}

	limits := quota.DefaultLimits()
	limits.MaxTokenUsage = int64(pkgconfig.GetEnvInt("QUOTA_MAX_TOKEN_USAGE", int(limits.MaxTokenUsage)))
	limits.MaxRequests = pkgconfig.GetEnvInt("QUOTA_MAX_REQUESTS", limits.MaxRequests)

	cfg := AppConfig{
		HTTPAddr:        pkgconfig.GetEnvString("HTTP_ADDR", DefaultHTTPAddr),
		Version:         pkgconfig.GetEnvString("VERSION", "dev"),
		MaxBodyBytes:    int64(pkgconfig.GetEnvInt("HTTP_MAX_BODY_BYTES", DefaultMaxBodyBytes)),
		ShutdownTimeout: pkgconfig.GetEnvDuration("HTTP_SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),

		RateLimit:       pkgconfig.GetEnvInt("RATE_LIMIT_REQUESTS", DefaultRateLimit),
		RateLimitWindow: pkgconfig.GetEnvDuration("RATE_LIMIT_WINDOW", DefaultRateLimitWindow),
		TrustProxy:      pkgconfig.GetEnvBool("RATE_LIMIT_TRUST_PROXY", false),
		TrustedProxies:  proxies,

		Filter:            policy,
		FilterWorkers:     pkgconfig.GetEnvInt("ANALYSIS_FILTER_WORKERS", 0),
		DetailedResponses: pkgconfig.GetEnvBool("DETAILED_RESPONSES", false),

		WSReadLimit:    int64(pkgconfig.GetEnvInt("WS_READ_LIMIT", DefaultMaxBodyBytes)),
		WSReadTimeout:  pkgconfig.GetEnvDuration("WS_READ_TIMEOUT", 30*time.Second),
		AllowedOrigins: pkgconfig.GetEnvStringList("WS_ALLOWED_ORIGINS", nil),

		Analyser: analyser.LoadConfig(),

		Quota:              limits,
		QuotaResetSchedule: pkgconfig.GetEnvString("QUOTA_RESET_SCHEDULE", ""),

		Database: db.ConnectionConfigFromEnv(),
		Redis: RedisConfig{
			Addr:     pkgconfig.GetEnvString("REDIS_ADDR", ""),
			Password: pkgconfig.GetEnvString("REDIS_PASSWORD", ""),
			DB:       pkgconfig.GetEnvInt("REDIS_DB", 0),
			Prefix:   pkgconfig.GetEnvString("REDIS_KEY_PREFIX", DefaultRedisPrefix),
		},

		UserInfoTTL: pkgconfig.GetEnvDuration("USERINFO_CACHE_TTL", auth.DefaultUserInfoTTL),

		JWTSecret:         pkgconfig.GetEnvString("JWT_SECRET", ""),
		JWTTTL:            pkgconfig.GetEnvDuration("JWT_TTL", auth.DefaultTokenTTL),
		AuthIssuerEnabled: pkgconfig.GetEnvBool("AUTH_ISSUER_ENABLED", false),

		TraceSampleRatio: pkgconfig.GetEnvFloat("OTEL_TRACES_SAMPLER_RATIO", 1.0),
	}

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	configMetrics.recordLoad()
	return cfg, nil
}

// Validate fails closed on the first invalid setting.
func (c AppConfig) Validate() error {
	checks := []struct {
		field string
		err   error
	}{
		{"filter", c.Filter.Validate()},
		{"analyser", c.Analyser.Validate()},
		{"database", c.Database.Validate()},
		{"jwt_secret", auth.ValidateSecret(c.JWTSecret)},
		{"jwt_ttl", wrap("JWT_TTL", pkgconfig.ValidatePositiveDuration(c.JWTTTL))},
		{"userinfo_cache_ttl", wrap("USERINFO_CACHE_TTL", pkgconfig.ValidatePositiveDuration(c.UserInfoTTL))},
		{"quota_max_token_usage", wrap("QUOTA_MAX_TOKEN_USAGE", pkgconfig.ValidateMin(c.Quota.MaxTokenUsage, 0))},
		{"quota_max_requests", wrap("QUOTA_MAX_REQUESTS", pkgconfig.ValidateMin(c.Quota.MaxRequests, 0))},
		{"quota_reset_schedule", c.validateResetSchedule()},
		{"filter_workers", wrap("ANALYSIS_FILTER_WORKERS", pkgconfig.ValidateMin(c.FilterWorkers, 0))},
		{"http_addr", c.validateAddr()},
		{"max_body_bytes", wrap("HTTP_MAX_BODY_BYTES", pkgconfig.ValidateMin(c.MaxBodyBytes, 1))},
		{"rate_limit", wrap("RATE_LIMIT_REQUESTS", pkgconfig.ValidateMin(c.RateLimit, 1))},
		{"rate_limit_window", wrap("RATE_LIMIT_WINDOW", pkgconfig.ValidatePositiveDuration(c.RateLimitWindow))},
		{"trusted_proxies", c.validateTrustedProxies()},
		{"ws_read_limit", wrap("WS_READ_LIMIT", pkgconfig.ValidateMin(c.WSReadLimit, 1))},
		{"ws_read_timeout", wrap("WS_READ_TIMEOUT", pkgconfig.ValidatePositiveDuration(c.WSReadTimeout))},
		{"trace_sample_ratio", wrap("OTEL_TRACES_SAMPLER_RATIO", pkgconfig.ValidateRange(c.TraceSampleRatio, 0, 1))},
	}
	for _, check := range checks {
		if check.err != nil {
			configMetrics.recordValidationError(check.field)
			return check.err
		}
	}
	return nil
}

func (c AppConfig) validateResetSchedule() error {
	if c.QuotaResetSchedule == "" {
		return nil
	}
	return wrap("QUOTA_RESET_SCHEDULE", pkgconfig.ValidateCronSchedule(c.QuotaResetSchedule))
}

func (c AppConfig) validateTrustedProxies() error {
	if c.TrustProxy && len(c.TrustedProxies) == 0 {
		return errors.New("RATE_LIMIT_TRUST_PROXY is enabled but RATE_LIMIT_TRUSTED_PROXIES is empty")
	}
	return nil
}

func (c AppConfig) validateAddr() error {
	if c.HTTPAddr == "" {
		return errors.New("HTTP_ADDR is required")
	}
	return nil
}

func wrap(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", key, err)
}
