package auth

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"traceback-analyser/internal/domain/entity"
	"traceback-analyser/internal/handler/http/respond"
	"traceback-analyser/internal/observability/logging"
)

// DefaultTokenTTL is the lifetime of issued tokens.
const DefaultTokenTTL = time.Hour

// Issuer signs HS256 tokens for an e-mail address.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer; ttl <= 0 uses DefaultTokenTTL.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue returns a signed token for email and its expiry.
func (i *Issuer) Issue(email string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	})
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

type tokenRequest struct {
	Email string `json:"email"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenHandler issues a token for the e-mail in the request body. It performs
// no credential check and is only mounted for development and tests.
func TokenHandler(issuer *Issuer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		logger := logging.FromContext(r.Context())

		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			respond.Error(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
			return
		}

		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			recordAuthRequest("token", "failure", start)
			respond.Error(w, http.StatusBadRequest, errors.New("invalid request body"))
			return
		}

		email := entity.NormalizeEmail(req.Email)
		if err := entity.ValidateEmail(email); err != nil {
			recordAuthRequest("token", "failure", start)
			respond.SafeError(w, http.StatusBadRequest, err)
			return
		}

		signed, exp, err := issuer.Issue(email)
		if err != nil {
			recordAuthRequest("token", "failure", start)
			respond.SafeError(w, http.StatusInternalServerError, err)
			return
		}

		recordAuthRequest("token", "success", start)
		logger.Info("token issued", slog.String("email", email), slog.Time("expires_at", exp))
		respond.JSON(w, http.StatusOK, tokenResponse{Token: signed, ExpiresAt: exp})
	}
}
