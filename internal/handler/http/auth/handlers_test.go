package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceback-analyser/internal/usecase/quota"
)

type stubStatus struct {
	calls int
	st    quota.Status
	err   error
}

func (s *stubStatus) Status(_ context.Context, email string) (quota.Status, error) {
	s.calls++
	st := s.st
	st.Email = email
	return st, s.err
}

func authedRequest(t *testing.T, path string, issuer *Issuer) *http.Request {
	t.Helper()
	tok, _, err := issuer.Issue("dev@example.com")
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func TestUserInfoHandler_CachesPerUser(t *testing.T) {
	store := NewMemoryTokenStore()
	status := &stubStatus{st: quota.Status{RequestsCount: 3, TokenUsage: 1200, MaxRequests: 200, MaxTokenUsage: 40000}}
	issuer := NewIssuer(testSecret, time.Hour)
	h := Bearer(NewValidator(testSecret, store))(&UserInfoHandler{Quota: status, Store: store, TTL: time.Minute})

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, authedRequest(t, "/user_info", issuer))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		var got quota.Status
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, quota.Status{
			Email: "dev@example.com", RequestsCount: 3, TokenUsage: 1200, MaxRequests: 200, MaxTokenUsage: 40000,
		}, got)
	}
	assert.Equal(t, 1, status.calls)

	require.NoError(t, store.DeleteUserInfo(context.Background(), "dev@example.com"))
	h.ServeHTTP(httptest.NewRecorder(), authedRequest(t, "/user_info", issuer))
	assert.Equal(t, 2, status.calls)
}

func TestUserInfoHandler_StatusError(t *testing.T) {
	store := NewMemoryTokenStore()
	h := Bearer(NewValidator(testSecret, store))(&UserInfoHandler{
		Quota: &stubStatus{err: errors.New("pq: connection reset")},
		Store: store,
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, authedRequest(t, "/user_info", NewIssuer(testSecret, time.Hour)))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "pq:")
	_, hit, _ := store.GetUserInfo(context.Background(), "dev@example.com")
	assert.False(t, hit)
}

func TestUserInfoHandler_RequiresClaims(t *testing.T) {
	rec := httptest.NewRecorder()
	(&UserInfoHandler{Store: NewMemoryTokenStore()}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/user_info", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutHandler_RevokesToken(t *testing.T) {
	_, store := newRedisStore(t)
	issuer := NewIssuer(testSecret, time.Hour)
	validator := NewValidator(testSecret, store)
	mw := Bearer(validator)

	tok, _, err := issuer.Issue("dev@example.com")
	require.NoError(t, err)
	require.NoError(t, store.SetUserInfo(context.Background(), "dev@example.com", []byte("{}"), time.Minute))

	req := httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	mw(&LogoutHandler{Store: store}).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"logged out OK"}`, rec.Body.String())

	_, err = validator.Validate(context.Background(), tok)
	assert.ErrorIs(t, err, ErrRevoked)
	_, hit, err := store.GetUserInfo(context.Background(), "dev@example.com")
	require.NoError(t, err)
	assert.False(t, hit)

	req = httptest.NewRequest(http.MethodGet, "/logout", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec = httptest.NewRecorder()
	mw(&LogoutHandler{Store: store}).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a revoked token cannot be used again")
}
