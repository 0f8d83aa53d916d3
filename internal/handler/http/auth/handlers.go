package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"traceback-analyser/internal/handler/http/respond"
	"traceback-analyser/internal/observability/logging"
	"traceback-analyser/internal/usecase/quota"
)

// DefaultUserInfoTTL is how long a user info response is cached.
const DefaultUserInfoTTL = 5 * time.Minute

// QuotaStatusReader returns a user's counters and limits.
type QuotaStatusReader interface {
	Status(ctx context.Context, email string) (quota.Status, error)
}

// UserInfoHandler serves the caller's e-mail together with usage and limits.
// Responses are cached per user for TTL; the cache is dropped whenever the
// user's usage changes.
type UserInfoHandler struct {
	Quota QuotaStatusReader
	Store TokenStore
	TTL   time.Duration
}

func (h *UserInfoHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, errors.New(msgNoAuthorization))
		return
	}
	email := claims.Email()

	if data, hit, err := h.Store.GetUserInfo(ctx, email); err != nil {
		recordUserInfoCache("error")
		logger.Warn("user info cache read failed", slog.String("error", err.Error()))
	} else if hit {
		recordUserInfoCache("hit")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}
	recordUserInfoCache("miss")

	status, err := h.Quota.Status(ctx, email)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}

	data, err := json.Marshal(status)
	if err != nil {
		respond.SafeError(w, http.StatusInternalServerError, err)
		return
	}
	data = append(data, '\n')

	ttl := h.TTL
	if ttl <= 0 {
		ttl = DefaultUserInfoTTL
	}
	if err := h.Store.SetUserInfo(ctx, email, data, ttl); err != nil {
		logger.Warn("user info cache write failed", slog.String("error", err.Error()))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

type logoutResponse struct {
	Message string `json:"message"`
}

// LogoutHandler revokes the presented token until it expires.
type LogoutHandler struct {
	Store TokenStore
}

func (h *LogoutHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		respond.Error(w, http.StatusUnauthorized, errors.New(msgNoAuthorization))
		return
	}
	if claims.ID == "" || claims.ExpiresAt == nil {
		respond.Error(w, http.StatusBadRequest, errors.New("token cannot be revoked: missing jti or exp"))
		return
	}

	if err := h.Store.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		respond.SafeError(w, http.StatusServiceUnavailable, err)
		return
	}
	if err := h.Store.DeleteUserInfo(ctx, claims.Email()); err != nil {
		logging.FromContext(ctx).Warn("user info cache delete failed", slog.String("error", err.Error()))
	}

	logging.FromContext(ctx).Info("logged out", slog.String("token_id", claims.ID))
	respond.JSON(w, http.StatusOK, logoutResponse{Message: "logged out OK"})
}
