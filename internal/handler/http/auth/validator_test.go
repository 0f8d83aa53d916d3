package auth

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "a-test-secret-with-more-than-32-characters"

func TestValidateSecret(t *testing.T) {
	tests := []struct {
		name    string
		secret  string
		wantErr string
	}{
		{"valid", testSecret, ""},
		{"empty", "", "required"},
		{"short", "tooshort", "at least 32"},
		{"repeated placeholder", strings.Repeat("secret", 6), "placeholder"},
		{"repeated char", strings.Repeat("x", 40), "repeated"},
		{"placeholder with suffix is fine", "secret-" + strings.Repeat("k9", 16), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecret(tt.secret)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

type stubRevocations struct {
	revoked map[string]bool
	err     error
}

func (s stubRevocations) IsRevoked(_ context.Context, id string) (bool, error) {
	return s.revoked[id], s.err
}

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestValidator_Validate(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer := NewIssuer(testSecret, time.Hour)
	issuer.now = func() time.Time { return now }

	valid, _, err := issuer.Issue("dev@example.com")
	require.NoError(t, err)

	expired, _, err := (&Issuer{secret: []byte(testSecret), ttl: time.Minute, now: func() time.Time { return now.Add(-time.Hour) }}).Issue("dev@example.com")
	require.NoError(t, err)

	otherKey, _, err := NewIssuer("another-secret-that-is-long-enough-123", time.Hour).Issue("dev@example.com")
	require.NoError(t, err)

	noExp := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{Subject: "dev@example.com"})
	noSub := signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})
	hs512 := signed(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.RegisteredClaims{Subject: "dev@example.com", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})
	none := signed(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.RegisteredClaims{Subject: "dev@example.com", ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))})

	v := NewValidator(testSecret, nil)
	v.now = func() time.Time { return now }

	claims, err := v.Validate(context.Background(), valid)
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", claims.Email())
	assert.NotEmpty(t, claims.ID)

	for name, tok := range map[string]string{
		"expired":       expired,
		"wrong key":     otherKey,
		"no expiry":     noExp,
		"no subject":    noSub,
		"other method":  hs512,
		"alg none":      none,
		"garbage":       "not.a.jwt",
		"two segments":  "abc.def",
		"padded spaces": "  ",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tok)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken) || errors.Is(err, ErrNoToken), err.Error())
		})
	}
}

func TestValidator_Revocation(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Hour)
	tok, _, err := issuer.Issue("dev@example.com")
	require.NoError(t, err)

	claims, err := NewValidator(testSecret, nil).Validate(context.Background(), tok)
	require.NoError(t, err)

	revoked := NewValidator(testSecret, stubRevocations{revoked: map[string]bool{claims.ID: true}})
	_, err = revoked.Validate(context.Background(), tok)
	assert.ErrorIs(t, err, ErrRevoked)

	broken := NewValidator(testSecret, stubRevocations{err: errors.New("redis down")})
	_, err = broken.Validate(context.Background(), tok)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidToken)
	assert.NotErrorIs(t, err, ErrRevoked)
}
