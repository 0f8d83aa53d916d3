// Package auth validates bearer tokens, issues development tokens and serves
// the user info and logout endpoints.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"traceback-analyser/internal/handler/http/respond"
	"traceback-analyser/internal/observability/logging"
)

type ctxKey string

const ctxClaims ctxKey = "claims"

// Messages of the 401 responses.
const (
	msgNoAuthorization  = "No Authorization token provided"
	msgBadAuthorization = "Bad Authorization token"
)

// Bearer rejects requests without a valid "Authorization: Bearer <jwt>"
// header and stores the claims in the request context.
func Bearer(v *Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := logging.FromContext(r.Context())

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				recordAuthRequest("bearer", "missing", start)
				respond.Error(w, http.StatusUnauthorized, errors.New(msgNoAuthorization))
				return
			}

			claims, err := v.Validate(r.Context(), token)
			if err != nil {
				if !errors.Is(err, ErrInvalidToken) && !errors.Is(err, ErrRevoked) {
					recordAuthRequest("bearer", "error", start)
					respond.SafeError(w, http.StatusServiceUnavailable, err)
					return
				}
				recordAuthRequest("bearer", "failure", start)
				logger.Info("bearer token rejected", slog.String("reason", err.Error()))
				respond.Error(w, http.StatusUnauthorized, errors.New(msgBadAuthorization))
				return
			}

			recordAuthRequest("bearer", "success", start)
			ctx := context.WithValue(r.Context(), ctxClaims, claims)
			ctx = logging.WithLogger(ctx, logger.With(slog.String("user", claims.Email())))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// ClaimsFromContext returns the claims stored by Bearer.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(ctxClaims).(*Claims)
	return c, ok
}
