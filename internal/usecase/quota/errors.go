package quota

import (
	"errors"
	"fmt"
)

// Sentinel errors for quota checks.
var (
	// ErrTokenQuotaExceeded means the user consumed all allowed tokens.
	ErrTokenQuotaExceeded = errors.New("token usage quota exceeded")

	// ErrRequestQuotaExceeded means the user made the maximum number of analyses.
	ErrRequestQuotaExceeded = errors.New("request quota exceeded")
)

// ExceededError carries the counters behind a refused analysis.
type ExceededError struct {
	Kind  error // ErrTokenQuotaExceeded or ErrRequestQuotaExceeded
	Email string
	Used  int64
	Limit int64
}

func (e *ExceededError) Error() string {
	what := "Token usage"
	if e.Kind == ErrRequestQuotaExceeded {
		what = "Max requests"
	}
	return fmt.Sprintf("Sorry, %s quota for user %s reached. Used: %d Limit: %d", what, e.Email, e.Used, e.Limit)
}

func (e *ExceededError) Unwrap() error {
	return e.Kind
}
