package analysis

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"traceback-analyser/internal/infra/analyser"
	"traceback-analyser/internal/usecase/quota"
)

var (
	// ErrInvalidLanguage is returned when the language frame is not a language name.
	ErrInvalidLanguage = errors.New("invalid language")
	// ErrEmptyTrace is returned when nothing is left after blank lines are removed.
	ErrEmptyTrace = errors.New("empty traceback")
)

// StatusClientClosedRequest is used when the caller went away mid-analysis.
const StatusClientClosedRequest = 499

// Error is an analysis failure with the status code and message sent to the
// client.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("analysis failed (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("analysis failed (%d): %s: %v", e.StatusCode, e.Message, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError classifies err into an *Error. Messages of quota errors are passed
// through, everything else gets a fixed message.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae
	}

	var exceeded *quota.ExceededError
	switch {
	case errors.As(err, &exceeded):
		return &Error{StatusCode: http.StatusRequestEntityTooLarge, Message: exceeded.Error(), Err: err}
	case errors.Is(err, analyser.ErrInputTooLarge):
		return &Error{StatusCode: http.StatusRequestEntityTooLarge, Message: "Input text too large", Err: err}
	case errors.Is(err, ErrInvalidLanguage):
		return &Error{StatusCode: http.StatusBadRequest, Message: "Invalid language", Err: err}
	case errors.Is(err, ErrEmptyTrace):
		return &Error{StatusCode: http.StatusBadRequest, Message: "Empty traceback", Err: err}
	case errors.Is(err, analyser.ErrUnavailable):
		return &Error{StatusCode: http.StatusServiceUnavailable, Message: "Analysis temporarily unavailable", Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{StatusCode: http.StatusGatewayTimeout, Message: "Analysis timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{StatusCode: StatusClientClosedRequest, Message: "Request cancelled", Err: err}
	default:
		return &Error{StatusCode: http.StatusInternalServerError, Message: "Internal server error", Err: err}
	}
}
