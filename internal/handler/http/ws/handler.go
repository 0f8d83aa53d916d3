// Package ws serves the trace analysis WebSocket.
//
// A session is three text frames from the client, in order:
//
//  1. {"token": "<jwt>", "extract_log_prefix": false}
//  2. the language of the trace ("java", "python", anything else is generic)
//  3. the trace itself
//
// The server answers with analysis messages, an error frame if the analysis
// failed, and always a final {"status":"completed"} before a normal close.
// Authentication failures are reported as a 403 error frame followed by a
// policy violation close.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"traceback-analyser/internal/handler/http/auth"
	"traceback-analyser/internal/handler/http/respond"
	"traceback-analyser/internal/observability/logging"
	"traceback-analyser/internal/tracefilter"
	"traceback-analyser/internal/usecase/analysis"
)

const (
	DefaultReadLimit   = 1 << 20
	DefaultReadTimeout = 30 * time.Second
)

// Analyzer runs one analysis and streams its messages.
type Analyzer interface {
	Analyze(ctx context.Context, req analysis.Request, emit func(analysis.Message) error) error
}

// TokenValidator checks the token of the first frame.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*auth.Claims, error)
}

// UserInfoInvalidator drops cached user info once usage changed.
type UserInfoInvalidator interface {
	DeleteUserInfo(ctx context.Context, email string) error
}

// Handler upgrades /ws requests and runs the session protocol.
type Handler struct {
	Analyzer  Analyzer
	Validator TokenValidator
	// Cache is optional.
	Cache UserInfoInvalidator

	// Policy is the compaction policy of every session.
	Policy tracefilter.Policy

	// ReadLimit caps the size of a single frame; <= 0 uses DefaultReadLimit.
	ReadLimit int64
	// ReadTimeout bounds the wait for each client frame; <= 0 uses DefaultReadTimeout.
	ReadTimeout time.Duration

	// OriginPatterns lists allowed cross origin hosts, see websocket.AcceptOptions.
	OriginPatterns []string
}

type handshake struct {
	Token            string `json:"token"`
	ExtractLogPrefix bool   `json:"extract_log_prefix"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.OriginPatterns})
	if err != nil {
		// Accept has already written the HTTP error.
		logging.FromContext(r.Context()).Info("websocket upgrade rejected", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = conn.CloseNow() }()

	limit := h.ReadLimit
	if limit <= 0 {
		limit = DefaultReadLimit
	}
	conn.SetReadLimit(limit)

	ctx := r.Context()
	logger := logging.FromContext(ctx)
	logger.Info("websocket accepted")

	s := &session{h: h, conn: conn, logger: logger}
	if err := s.run(ctx); err != nil {
		if status := websocket.CloseStatus(err); status != -1 {
			logger.Info("websocket closed by client", slog.Int("close_status", int(status)))
			return
		}
		if errors.Is(err, context.Canceled) {
			logger.Info("websocket request cancelled")
			return
		}
		logger.Warn("websocket session ended with error", slog.String("error", err.Error()))
	}
}

type session struct {
	h      *Handler
	conn   *websocket.Conn
	logger *slog.Logger
}

func (s *session) run(ctx context.Context) error {
	start := time.Now()

	first, err := s.read(ctx)
	if err != nil {
		return err
	}
	var hs handshake
	if err := json.Unmarshal(first, &hs); err != nil || hs.Token == "" {
		auth.RecordWebSocketAuth("missing", start)
		return s.reject(ctx, http.StatusForbidden, "No token")
	}

	claims, err := s.h.Validator.Validate(ctx, hs.Token)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) && !errors.Is(err, auth.ErrRevoked) {
			auth.RecordWebSocketAuth("error", start)
			s.logger.Error("websocket token check failed", slog.String("error", respond.SanitizeError(err)))
			return s.reject(ctx, http.StatusServiceUnavailable, "Authentication temporarily unavailable")
		}
		auth.RecordWebSocketAuth("failure", start)
		s.logger.Info("websocket got invalid token", slog.String("reason", err.Error()))
		return s.reject(ctx, http.StatusForbidden, "Invalid token")
	}
	auth.RecordWebSocketAuth("success", start)

	email := claims.Email()
	s.logger = s.logger.With(slog.String("user", email))
	ctx = logging.WithLogger(ctx, s.logger)

	language, err := s.read(ctx)
	if err != nil {
		return err
	}
	trace, err := s.read(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("got stacktrace to analyse",
		slog.String("language", string(language)),
		slog.Int("trace_bytes", len(trace)))

	analyzeErr := s.h.Analyzer.Analyze(ctx, analysis.Request{
		User:             email,
		Language:         string(language),
		Trace:            string(trace),
		Policy:           s.h.Policy,
		ExtractLogPrefix: hs.ExtractLogPrefix,
	}, func(m analysis.Message) error {
		return wsjson.Write(ctx, s.conn, m)
	})

	if analyzeErr != nil {
		if websocket.CloseStatus(analyzeErr) != -1 || ctx.Err() != nil {
			return analyzeErr
		}
		ae := analysis.AsError(analyzeErr)
		if err := wsjson.Write(ctx, s.conn, respond.NewErrorBody(ae.StatusCode, ae.Message)); err != nil {
			return err
		}
	} else if s.h.Cache != nil {
		if err := s.h.Cache.DeleteUserInfo(ctx, email); err != nil {
			s.logger.Warn("user info cache delete failed", slog.String("error", err.Error()))
		}
	}

	if err := wsjson.Write(ctx, s.conn, analysis.Completed()); err != nil {
		return err
	}
	return s.conn.Close(websocket.StatusNormalClosure, "")
}

// read returns the next text frame.
func (s *session) read(ctx context.Context) ([]byte, error) {
	timeout := s.h.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	typ, data, err := s.conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageText {
		_ = s.reject(ctx, http.StatusBadRequest, "Expected a text frame")
		return nil, errors.New("binary frame received")
	}
	return data, nil
}

// reject sends an error frame and closes with a policy violation.
func (s *session) reject(ctx context.Context, code int, msg string) error {
	if err := wsjson.Write(ctx, s.conn, respond.NewErrorBody(code, msg)); err != nil {
		return err
	}
	return s.conn.Close(websocket.StatusPolicyViolation, msg)
}
