// Package quota enforces per-user token and request limits on analyses.
//
// Check runs before an analysis and AddUsage after it, so a user may overrun
// the token limit by the cost of the analysis that crosses it; the next
// request is then refused.
package quota

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"

	"traceback-analyser/internal/domain/entity"
	"traceback-analyser/internal/observability/metrics"
	"traceback-analyser/internal/observability/tracing"
	"traceback-analyser/internal/repository"
	"traceback-analyser/internal/resilience/retry"

	"go.opentelemetry.io/otel/attribute"
)

// Default limits per user between resets.
const (
	DefaultMaxTokenUsage = 40000
	DefaultMaxRequests   = 200
)

// Limits are the per-user ceilings. A limit of zero refuses every analysis.
type Limits struct {
	MaxTokenUsage int64
	MaxRequests   int
}

// DefaultLimits returns the default per-user limits.
func DefaultLimits() Limits {
	return Limits{MaxTokenUsage: DefaultMaxTokenUsage, MaxRequests: DefaultMaxRequests}
}

// Status is a user's usage next to its limits.
type Status struct {
	Email         string `json:"email"`
	RequestsCount int    `json:"requests_count"`
	TokenUsage    int64  `json:"token_usage"`
	MaxRequests   int    `json:"max_requests"`
	MaxTokenUsage int64  `json:"max_token_usage"`
}

// Service checks and records usage against a UserRepository. Transient
// repository errors are retried with Retry.
type Service struct {
	Repo   repository.UserRepository
	Limits Limits
	Retry  retry.Config
}

// NewService creates a quota service retrying with retry.DBConfig.
func NewService(repo repository.UserRepository, limits Limits) *Service {
	return &Service{Repo: repo, Limits: limits, Retry: retry.DBConfig()}
}

func (s *Service) retryConfig() retry.Config {
	if s.Retry.MaxAttempts < 1 {
		return retry.DBConfig()
	}
	return s.Retry
}

// Check returns the user for email, creating it on first use, or an
// *ExceededError when a limit is already reached. Tokens are checked first.
func (s *Service) Check(ctx context.Context, email string) (*entity.User, error) {
	ctx, span := tracing.Start(ctx, "quota.Check")
	defer span.End()

	var user *entity.User
	err := retry.WithBackoff(ctx, s.retryConfig(), func() error {
		var getErr error
		user, getErr = s.Repo.GetOrCreate(ctx, email)
		return getErr
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("check quota: %w", err)
	}
	span.SetAttributes(
		attribute.Int64("quota.token_usage", user.TokenUsage),
		attribute.Int("quota.requests_count", user.RequestsCount),
	)

	if user.TokenUsage >= s.Limits.MaxTokenUsage {
		metrics.RecordQuotaRejection("tokens")
		return user, &ExceededError{Kind: ErrTokenQuotaExceeded, Email: email, Used: user.TokenUsage, Limit: s.Limits.MaxTokenUsage}
	}
	if user.RequestsCount >= s.Limits.MaxRequests {
		metrics.RecordQuotaRejection("requests")
		return user, &ExceededError{Kind: ErrRequestQuotaExceeded, Email: email, Used: int64(user.RequestsCount), Limit: int64(s.Limits.MaxRequests)}
	}
	return user, nil
}

// AddUsage charges one request and tokens to the user.
func (s *Service) AddUsage(ctx context.Context, email string, tokens int) (*entity.User, error) {
	ctx, span := tracing.Start(ctx, "quota.AddUsage")
	defer span.End()
	span.SetAttributes(attribute.Int("quota.tokens", tokens))

	if tokens < 0 {
		tokens = 0
	}
	// The increment may already be applied when a connection breaks
	// mid-query, so only a refused connection is safe to retry.
	var user *entity.User
	err := retry.WithBackoff(ctx, s.retryConfig(), func() error {
		var addErr error
		user, addErr = s.Repo.AddUsage(ctx, email, tokens)
		if addErr != nil && !errors.Is(addErr, syscall.ECONNREFUSED) {
			return retry.Permanent(addErr)
		}
		return addErr
	})
	if err != nil {
		tracing.RecordError(span, err)
		return nil, fmt.Errorf("add usage: %w", err)
	}

	slog.InfoContext(ctx, "usage recorded",
		slog.String("email", email),
		slog.Int("tokens", tokens),
		slog.Int64("token_usage", user.TokenUsage),
		slog.Int("requests_count", user.RequestsCount))
	return user, nil
}

// Status returns the user's counters and limits without creating the user.
func (s *Service) Status(ctx context.Context, email string) (Status, error) {
	st := Status{Email: email, MaxRequests: s.Limits.MaxRequests, MaxTokenUsage: s.Limits.MaxTokenUsage}

	var user *entity.User
	err := retry.WithBackoff(ctx, s.retryConfig(), func() error {
		var getErr error
		user, getErr = s.Repo.Get(ctx, email)
		return getErr
	})
	switch {
	case err == nil:
		st.RequestsCount, st.TokenUsage = user.RequestsCount, user.TokenUsage
	case errors.Is(err, entity.ErrNotFound):
		// a user who never analysed anything has zero usage
	default:
		return Status{}, fmt.Errorf("quota status: %w", err)
	}
	return st, nil
}

// ResetAll zeroes every user's counters.
func (s *Service) ResetAll(ctx context.Context) (int64, error) {
	ctx, span := tracing.Start(ctx, "quota.ResetAll")
	defer span.End()

	var n int64
	err := retry.WithBackoff(ctx, s.retryConfig(), func() error {
		var resetErr error
		n, resetErr = s.Repo.ResetAll(ctx)
		return resetErr
	})
	if err != nil {
		tracing.RecordError(span, err)
		return 0, fmt.Errorf("reset quotas: %w", err)
	}
	metrics.RecordQuotaReset()
	slog.InfoContext(ctx, "quotas reset", slog.Int64("users", n))
	return n, nil
}
