// Package analyser streams an LLM explanation of a compacted stack trace.
//
// Every provider goes through the same guard rails: the prompt is measured
// against an input token budget, outbound calls are rate limited, and the
// stream is opened under a circuit breaker with retries. Once the first
// token has been handed to the caller nothing is retried.
package analyser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"

	"traceback-analyser/internal/domain/entity"
	"traceback-analyser/internal/observability/metrics"
	"traceback-analyser/internal/observability/tracing"
	"traceback-analyser/internal/resilience/circuitbreaker"
	"traceback-analyser/internal/resilience/retry"
	"traceback-analyser/internal/tracefilter"
)

var (
	// ErrInputTooLarge is returned when the prompt exceeds Config.InputMaxTokens.
	ErrInputTooLarge = errors.New("input text too large")

	// ErrUnavailable is returned while the provider's circuit breaker is open.
	ErrUnavailable = errors.New("analyser temporarily unavailable")
)

// Request is one trace to explain.
type Request struct {
	Variant tracefilter.Variant
	Trace   string

	// Temperature overrides Config.Temperature when non-nil.
	Temperature *float64
}

// Analyser streams generated tokens to emit and returns the usage of the
// exchange. An error from emit stops the stream and is returned as is.
type Analyser interface {
	Name() string
	Stream(ctx context.Context, req Request, emit func(token string) error) (entity.Usage, error)
}

// New builds the analyser selected by cfg.Provider.
func New(cfg Config) (Analyser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAI(cfg), nil
	case ProviderClaude:
		return NewClaude(cfg), nil
	default:
		return NewNoOp(), nil
	}
}

// tokenStream is an open provider stream. Recv returns io.EOF at the end.
type tokenStream interface {
	Recv() (string, error)
	// Usage reports provider counted tokens, if the provider sent them.
	Usage() (input, output int, ok bool)
	Close() error
}

type openFunc func(ctx context.Context, p Prompt, temperature float64) (tokenStream, error)

// runner holds the provider independent part of Stream.
type runner struct {
	provider string
	cfg      Config
	counter  TokenCounter
	limiter  *rate.Limiter
	breaker  *circuitbreaker.CircuitBreaker
	retryCfg retry.Config
}

func newRunner(cfg Config) runner {
	cbCfg := circuitbreaker.AnalyserConfig(cfg.Provider)
	cbCfg.IsSuccessful = func(err error) bool {
		return errors.Is(err, context.Canceled)
	}
	return runner{
		provider: cfg.Provider,
		cfg:      cfg,
		counter:  NewTiktokenCounter(""),
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker:  circuitbreaker.New(cbCfg),
		retryCfg: retry.AnalyserConfig(),
	}
}

// Breaker exposes the provider breaker for health reporting.
func (r *runner) Breaker() *circuitbreaker.CircuitBreaker {
	return r.breaker
}

func (r *runner) stream(ctx context.Context, req Request, emit func(string) error, open openFunc) (usage entity.Usage, err error) {
	ctx, span := tracing.Start(ctx, "analyser.Stream")
	defer span.End()
	span.SetAttributes(
		attribute.String("analyser.provider", r.provider),
		attribute.String("trace.variant", req.Variant.String()),
	)

	start := time.Now()
	defer func() {
		metrics.RecordAnalyserRequest(r.provider, err == nil, time.Since(start), usage.InputTokens, usage.GeneratedTokens)
		span.SetAttributes(
			attribute.Int("analyser.input_tokens", usage.InputTokens),
			attribute.Int("analyser.generated_tokens", usage.GeneratedTokens),
		)
		tracing.RecordError(span, err)
	}()

	prompt := BuildPrompt(req.Variant, req.Trace)
	usage.InputTokens = r.counter.CountPrompt(prompt)
	if usage.InputTokens > r.cfg.InputMaxTokens {
		return usage, fmt.Errorf("%w: %d tokens, limit %d", ErrInputTooLarge, usage.InputTokens, r.cfg.InputMaxTokens)
	}

	temperature := r.cfg.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if err := r.limiter.Wait(ctx); err != nil {
		return usage, fmt.Errorf("%s rate limit: %w", r.provider, err)
	}

	var s tokenStream
	err = retry.WithBackoff(ctx, r.retryCfg, func() error {
		var openErr error
		s, openErr = circuitbreaker.Do(r.breaker, func() (tokenStream, error) {
			return open(ctx, prompt, temperature)
		})
		if circuitbreaker.IsOpenError(openErr) {
			return retry.Permanent(fmt.Errorf("%w: %w", ErrUnavailable, openErr))
		}
		return openErr
	})
	if err != nil {
		slog.WarnContext(ctx, "analyser stream failed to start",
			slog.String("provider", r.provider),
			slog.String("circuit_state", r.breaker.State()),
			slog.String("error", err.Error()))
		return usage, fmt.Errorf("%s: %w", r.provider, err)
	}
	defer func() { _ = s.Close() }()

	for {
		token, recvErr := s.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return usage, fmt.Errorf("%s stream: %w", r.provider, recvErr)
		}
		if token == "" {
			continue
		}
		usage.GeneratedTokens++
		if err := emit(token); err != nil {
			return usage, err
		}
	}

	if in, out, ok := s.Usage(); ok {
		usage.InputTokens, usage.GeneratedTokens = in, out
	}

	slog.InfoContext(ctx, "analysis streamed",
		slog.String("provider", r.provider),
		slog.Int("input_tokens", usage.InputTokens),
		slog.Int("generated_tokens", usage.GeneratedTokens),
		slog.Int("total_tokens", usage.Total()),
		slog.Duration("duration", time.Since(start)))
	return usage, nil
}

// httpError converts a provider status code into a retry.HTTPError so that
// 429 and 5xx responses are retried.
func httpError(status int, msg string, err error) error {
	if status == 0 {
		return err
	}
	return &retry.HTTPError{StatusCode: status, Message: msg, Err: err}
}
