package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"traceback-analyser/internal/config"
	hhttp "traceback-analyser/internal/handler/http"
	"traceback-analyser/internal/handler/http/auth"
	"traceback-analyser/internal/infra/adapter/persistence/postgres"
	"traceback-analyser/internal/infra/adapter/persistence/sqlite"
	"traceback-analyser/internal/infra/analyser"
	"traceback-analyser/internal/infra/db"
	"traceback-analyser/internal/observability/logging"
	"traceback-analyser/internal/observability/tracing"
	"traceback-analyser/internal/repository"
	"traceback-analyser/internal/resilience/circuitbreaker"
	"traceback-analyser/internal/usecase/analysis"
	"traceback-analyser/internal/usecase/quota"
)

func main() {
	logger := initLogger()
	cfg := loadConfig(logger)

	shutdownTracing := tracing.Setup(cfg.TraceSampleRatio)
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Error("failed to flush traces", slog.Any("error", err))
		}
	}()

	database := initDatabase(logger, cfg.Database)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	store, closeStore := initTokenStore(logger, cfg.Redis)
	defer closeStore()

	components := setupServer(logger, cfg, database, store)
	runServer(logger, cfg, components)
}

// initLogger creates the JSON logger and makes it the default.
func initLogger() *slog.Logger {
	logger := logging.NewLogger()
	slog.SetDefault(logger)
	return logger
}

// loadConfig exits when the configuration is incomplete or unsafe.
func loadConfig(logger *slog.Logger) config.AppConfig {
	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration validation failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded",
		slog.String("analyser_provider", cfg.Analyser.Provider),
		slog.String("analyser_model", cfg.Analyser.Model),
		slog.String("database_driver", cfg.Database.Driver),
		slog.Bool("redis", cfg.Redis.Addr != ""),
		slog.Bool("rate_limit_trust_proxy", cfg.TrustProxy),
		slog.Int("trusted_proxies", len(cfg.TrustedProxies)),
		slog.Float64("similarity_threshold", cfg.Filter.SimilarityThreshold),
		slog.Int("max_similar_lines", cfg.Filter.MaxSimilarLines),
		slog.Int("passes", cfg.Filter.Passes))
	return cfg
}

// initDatabase opens the database and creates the users table.
func initDatabase(logger *slog.Logger, cfg db.ConnectionConfig) *sql.DB {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.Open(ctx, cfg)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	if err := db.MigrateUp(ctx, database, cfg.Driver); err != nil {
		logger.Error("failed to migrate database", slog.Any("error", err))
		os.Exit(1)
	}
	return database
}

// initTokenStore connects to Redis, or falls back to process memory when no
// address is configured. A configured but unreachable Redis is fatal.
func initTokenStore(logger *slog.Logger, cfg config.RedisConfig) (auth.TokenStore, func()) {
	if cfg.Addr == "" {
		logger.Warn("REDIS_ADDR not set: token revocations and user info cache are kept in memory")
		return auth.NewMemoryTokenStore(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	store := auth.NewRedisTokenStore(client, cfg.Prefix)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.Ping(ctx); err != nil {
		logger.Error("failed to connect to redis", slog.String("addr", cfg.Addr), slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("redis connection established", slog.String("addr", cfg.Addr))

	return store, func() {
		if err := client.Close(); err != nil {
			logger.Error("failed to close redis", slog.Any("error", err))
		}
	}
}

// newUserRepo picks the repository matching the database driver. Queries go
// through the database circuit breaker.
func newUserRepo(driver string, database *circuitbreaker.DB) repository.UserRepository {
	if driver == db.DriverSQLite {
		return sqlite.NewUserRepo(database)
	}
	return postgres.NewUserRepo(database)
}

// ServerComponents holds what runServer starts and stops.
type ServerComponents struct {
	Handler     http.Handler
	RateLimiter *hhttp.RateLimiter
	Quota       *quota.Service
}

// setupServer builds the services and the routed, instrumented handler.
func setupServer(logger *slog.Logger, cfg config.AppConfig, database *sql.DB, store auth.TokenStore) *ServerComponents {
	guarded := circuitbreaker.NewDB(database)
	quotaSvc := quota.NewService(newUserRepo(cfg.Database.Driver, guarded), cfg.Quota)

	an, err := analyser.New(cfg.Analyser)
	if err != nil {
		logger.Error("failed to create analyser", slog.Any("error", err))
		os.Exit(1)
	}

	analysisSvc := analysis.NewService(quotaSvc, an, analysis.Config{
		FilterWorkers:     cfg.FilterWorkers,
		DetailedResponses: cfg.DetailedResponses,
	})

	deps := routerDeps{
		Config:      cfg,
		Logger:      logger,
		DB:          database,
		Store:       store,
		Validator:   auth.NewValidator(cfg.JWTSecret, store),
		Issuer:      auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL),
		Quota:       quotaSvc,
		Analysis:    analysisSvc,
		Breakers:    breakersOf(an, guarded),
		RateLimiter: newRateLimiter(cfg),
	}
	if cfg.AuthIssuerEnabled {
		logger.Warn("token issuer enabled: POST /auth/token hands out tokens without credentials")
	}

	return &ServerComponents{
		Handler:     newRouter(deps),
		RateLimiter: deps.RateLimiter,
		Quota:       quotaSvc,
	}
}

// startQuotaReset schedules ResetAll. An empty schedule disables it.
func startQuotaReset(logger *slog.Logger, schedule string, svc *quota.Service) *cron.Cron {
	if schedule == "" {
		logger.Info("quota reset disabled")
		return nil
	}

	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger), cron.SkipIfStillRunning(cron.DefaultLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		if _, err := svc.ResetAll(ctx); err != nil {
			logger.Error("quota reset failed", slog.Any("error", err))
		}
	})
	if err != nil {
		logger.Error("invalid quota reset schedule", slog.String("schedule", schedule), slog.Any("error", err))
		os.Exit(1)
	}
	c.Start()
	logger.Info("quota reset scheduled", slog.String("schedule", schedule))
	return c
}

// runServer starts the HTTP server and handles graceful shutdown.
func runServer(logger *slog.Logger, cfg config.AppConfig, components *ServerComponents) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go components.RateLimiter.RunCleanup(ctx, cfg.RateLimitWindow)
	scheduler := startQuotaReset(logger, cfg.QuotaResetSchedule, components.Quota)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           components.Handler,
		ReadHeaderTimeout: 10 * time.Second, // Slowloris
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		logger.Info("server starting",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("version", cfg.Version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server...")

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", slog.Any("error", err))
	}
	// Hijacked WebSocket connections are not tracked by Shutdown; cancelling
	// the base context ends their sessions.
	cancel()
	logger.Info("server stopped")
}
