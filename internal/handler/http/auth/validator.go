package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("no token")
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token revoked")
)

const minSecretLength = 32

var weakSecrets = []string{
	"secret",
	"password",
	"changeme",
	"your-secret-key",
	"jwt-secret",
	"default",
	"test",
	"admin",
}

// ValidateSecret rejects HS256 secrets shorter than 256 bits or based on a
// well-known placeholder.
func ValidateSecret(secret string) error {
	if secret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(secret) < minSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d characters (got %d)", minSecretLength, len(secret))
	}
	lower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if strings.HasPrefix(lower, weak) && isRepetition(lower[len(weak):], weak) {
			return errors.New("JWT_SECRET must not be a common placeholder value")
		}
	}
	if isRepetition(lower[1:], lower[:1]) {
		return errors.New("JWT_SECRET must not be a single repeated character")
	}
	return nil
}

// isRepetition reports whether s consists only of copies of unit.
func isRepetition(s, unit string) bool {
	for len(s) >= len(unit) && strings.HasPrefix(s, unit) {
		s = s[len(unit):]
	}
	return s == ""
}

// Claims are the JWT claims issued and accepted by this service. The subject
// is the user's e-mail address.
type Claims struct {
	jwt.RegisteredClaims
}

// Email returns the subject.
func (c *Claims) Email() string {
	return c.Subject
}

// Validator checks HS256 tokens and their revocation state.
type Validator struct {
	secret  []byte
	revoked RevocationChecker
	now     func() time.Time
}

// RevocationChecker reports whether a token id was revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// NewValidator creates a validator. revoked may be nil.
func NewValidator(secret string, revoked RevocationChecker) *Validator {
	return &Validator{secret: []byte(secret), revoked: revoked, now: time.Now}
}

// Validate parses token and returns its claims. The error wraps ErrNoToken,
// ErrInvalidToken or ErrRevoked; a failing revocation store is reported as
// is and the token is not accepted.
func (v *Validator) Validate(ctx context.Context, token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoToken
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		recordValidationFailure(failureReason(err))
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		recordValidationFailure("missing_subject")
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	if v.revoked != nil && claims.ID != "" {
		revoked, err := v.revoked.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			recordValidationFailure("revoked")
			return nil, ErrRevoked
		}
	}
	return claims, nil
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "signature"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return "unverifiable"
	default:
		return "invalid"
	}
}
