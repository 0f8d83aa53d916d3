// Package analysis runs the trace analysis pipeline: quota check, optional
// log prefix removal, compaction on a bounded worker pool, the LLM stream and
// usage accounting.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"traceback-analyser/internal/domain/entity"
	"traceback-analyser/internal/infra/analyser"
	"traceback-analyser/internal/observability/logging"
	"traceback-analyser/internal/observability/metrics"
	"traceback-analyser/internal/observability/slo"
	"traceback-analyser/internal/observability/tracing"
	"traceback-analyser/internal/tracefilter"
)

// QuotaService is the part of quota.Service the pipeline needs.
type QuotaService interface {
	Check(ctx context.Context, email string) (*entity.User, error)
	AddUsage(ctx context.Context, email string, tokens int) (*entity.User, error)
}

// Request is one analysis.
type Request struct {
	User     string
	Language string
	Trace    string
	Policy   tracefilter.Policy

	// Temperature overrides the analyser default when non-nil.
	Temperature *float64

	// ExtractLogPrefix strips a log line prefix shared by every line before
	// compaction.
	ExtractLogPrefix bool
}

// Config tunes the service.
type Config struct {
	// FilterWorkers bounds concurrent compactions; <= 0 means runtime.NumCPU().
	FilterWorkers int

	// DetailedResponses emits the filtering stage messages and the compacted
	// trace before the analysis tokens.
	DetailedResponses bool
}

// Service runs analyses.
type Service struct {
	quota    QuotaService
	analyser analyser.Analyser
	workers  *semaphore.Weighted
	detailed bool
}

// NewService creates an analysis service.
func NewService(q QuotaService, a analyser.Analyser, cfg Config) *Service {
	n := cfg.FilterWorkers
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &Service{
		quota:    q,
		analyser: a,
		workers:  semaphore.NewWeighted(int64(n)),
		detailed: cfg.DetailedResponses,
	}
}

var languagePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9+#._-]{0,31}$`)

// Analyze runs req and sends every message to emit. The returned error is an
// *Error; the caller reports it and sends Completed.
func (s *Service) Analyze(ctx context.Context, req Request, emit func(Message) error) (err error) {
	analysisID := uuid.NewString()
	logger := logging.FromContext(ctx).With(slog.String("analysis_id", analysisID))

	language := strings.TrimSpace(req.Language)
	variant := tracefilter.ParseVariant(language)

	ctx, span := tracing.Start(ctx, "analysis.Analyze")
	defer span.End()
	span.SetAttributes(
		attribute.String("analysis.id", analysisID),
		attribute.String("trace.variant", variant.String()),
	)

	start := time.Now()
	defer func() {
		if err == nil {
			metrics.RecordAnalysis(variant.String(), "success")
			slo.Default().Record(time.Since(start), false)
			return
		}
		ae := AsError(err)
		status := "failure"
		if ae.StatusCode < http.StatusInternalServerError {
			status = "rejected"
		}
		metrics.RecordAnalysis(variant.String(), status)
		slo.Default().Record(time.Since(start), status == "failure")
		tracing.RecordError(span, err)
		logger.WarnContext(ctx, "analysis failed",
			slog.Int("status_code", ae.StatusCode),
			slog.String("error", err.Error()))
		err = ae
	}()

	if language != "" && !languagePattern.MatchString(language) {
		return fmt.Errorf("%w: %q", ErrInvalidLanguage, truncate(language, 32))
	}

	if _, err := s.quota.Check(ctx, req.User); err != nil {
		return err
	}

	if s.detailed {
		if err := emit(running(StageFiltering, "Filtering traceback...")); err != nil {
			return err
		}
	}

	trace := req.Trace
	if req.ExtractLogPrefix {
		trace = tracefilter.ExtractStacktrace(trace)
	}

	compacted, err := s.compact(ctx, logger, trace, variant, req.Policy)
	if err != nil {
		return err
	}
	if compacted == "" {
		return ErrEmptyTrace
	}

	if s.detailed {
		if err := emit(running(StageFiltered, compacted)); err != nil {
			return err
		}
		if err := emit(running(StageAnalysing, "Analyzing...")); err != nil {
			return err
		}
	}

	usage, err := s.analyser.Stream(ctx, analyser.Request{
		Variant:     variant,
		Trace:       compacted,
		Temperature: req.Temperature,
	}, func(tok string) error {
		return emit(token(tok))
	})
	if err != nil {
		return analyserError(err)
	}

	if _, err := s.quota.AddUsage(ctx, req.User, usage.Total()); err != nil {
		return err
	}

	logger.InfoContext(ctx, "analysis completed",
		slog.String("variant", variant.String()),
		slog.Int("input_tokens", usage.InputTokens),
		slog.Int("generated_tokens", usage.GeneratedTokens))
	return nil
}

// compact runs the filter once a worker slot is free.
func (s *Service) compact(ctx context.Context, logger *slog.Logger, trace string, v tracefilter.Variant, p tracefilter.Policy) (string, error) {
	if err := s.workers.Acquire(ctx, 1); err != nil {
		return "", fmt.Errorf("wait for filter worker: %w", err)
	}
	defer s.workers.Release(1)

	_, span := tracing.Start(ctx, "tracefilter.Filter")
	defer span.End()

	start := time.Now()
	out, stats := tracefilter.FilterWithStats(trace, v, p)
	elapsed := time.Since(start)

	span.SetAttributes(
		attribute.Int("filter.input_lines", stats.InputLines),
		attribute.Int("filter.output_lines", stats.OutputLines),
	)
	metrics.RecordFilter(v.String(), stats.InputLines, stats.OutputLines, elapsed)
	logger.DebugContext(ctx, "trace compacted",
		slog.String("variant", v.String()),
		slog.Int("input_lines", stats.InputLines),
		slog.Any("pass_lines", stats.PassLines),
		slog.Int("output_lines", stats.OutputLines),
		slog.Duration("duration", elapsed))
	return out, nil
}

// analyserError maps provider failures that are not otherwise classified to
// 502.
func analyserError(err error) error {
	switch {
	case errors.Is(err, analyser.ErrInputTooLarge),
		errors.Is(err, analyser.ErrUnavailable),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{StatusCode: http.StatusBadGateway, Message: "Analysis failed", Err: err}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
