// Package respond writes JSON responses and error bodies.
//
// Error bodies share the shape of the WebSocket error frame so clients parse
// one format: {"status":"error","status_code":413,"message":"..."}.
package respond

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// ErrorBody is the JSON body of every error response.
type ErrorBody struct {
	Status     string `json:"status"`
	StatusCode int    `json:"status_code"`
	Message    string `json:"message"`
}

// NewErrorBody builds the error body for code and message.
func NewErrorBody(code int, message string) ErrorBody {
	return ErrorBody{Status: "error", StatusCode: code, Message: message}
}

// JSON writes v as JSON with the given status code.
func JSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// headers are already sent
		slog.Default().Error("failed to encode JSON response",
			slog.Int("status_code", code),
			slog.Any("error", err))
	}
}

// Error writes err's message verbatim. Use only for messages meant for users.
func Error(w http.ResponseWriter, code int, err error) {
	JSON(w, code, NewErrorBody(code, err.Error()))
}

var safeFragments = []string{
	"required",
	"invalid",
	"not found",
	"quota",
	"too large",
	"must be",
	"cannot be",
	"unsupported",
}

// SafeError returns validation style messages as-is and replaces everything
// else, and every 5xx, with "internal server error". AppError messages are
// always returned; the wrapped error is only logged.
func SafeError(w http.ResponseWriter, code int, err error) {
	if err == nil {
		return
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		if appErr.Err != nil {
			slog.Default().Error("application error",
				slog.Int("code", appErr.Code),
				slog.String("user_message", appErr.UserMsg),
				slog.String("error", SanitizeError(appErr.Err)))
		}
		JSON(w, appErr.Code, NewErrorBody(appErr.Code, appErr.UserMsg))
		return
	}

	msg := err.Error()
	if code < 500 && isSafeMessage(msg) {
		JSON(w, code, NewErrorBody(code, msg))
		return
	}

	slog.Default().Error("internal server error",
		slog.Int("code", code),
		slog.String("error", SanitizeError(err)))
	JSON(w, code, NewErrorBody(code, "internal server error"))
}

func isSafeMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, frag := range safeFragments {
		if strings.Contains(lower, frag) {
			return true
		}
	}
	return false
}

// AppError carries a user-facing message next to the internal cause.
type AppError struct {
	UserMsg string
	Err     error
	Code    int
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.UserMsg
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates an AppError.
func NewAppError(code int, userMsg string, err error) *AppError {
	return &AppError{Code: code, UserMsg: userMsg, Err: err}
}
