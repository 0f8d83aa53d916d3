package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceback-analyser/internal/config"
	hhttp "traceback-analyser/internal/handler/http"
	"traceback-analyser/internal/handler/http/auth"
	"traceback-analyser/internal/infra/analyser"
	"traceback-analyser/internal/infra/db"
	"traceback-analyser/internal/resilience/circuitbreaker"
	"traceback-analyser/internal/tracefilter"
	"traceback-analyser/internal/usecase/analysis"
	"traceback-analyser/internal/usecase/quota"
)

const testSecret = "4f9c2e7a1b8d6f3e0a5c9b2d7e1f4a8c"

type testServer struct {
	*httptest.Server
	issuer *auth.Issuer
}

func newTestServer(t *testing.T, issuerEnabled bool) *testServer {
	t.Helper()
	ctx := context.Background()

	dbCfg := db.DefaultConnectionConfig()
	dbCfg.Driver = db.DriverSQLite
	dbCfg.DSN = filepath.Join(t.TempDir(), "users.db")
	database, err := db.Open(ctx, dbCfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	require.NoError(t, db.MigrateUp(ctx, database, db.DriverSQLite))

	cfg := config.AppConfig{
		Version:         "test",
		MaxBodyBytes:    config.DefaultMaxBodyBytes,
		RateLimit:       1000,
		RateLimitWindow: time.Minute,
		Filter: tracefilter.Policy{
			SimilarityThreshold: config.DefaultWSSimilarityThreshold,
			MaxSimilarLines:     config.DefaultWSMaxSimilarLines,
			Passes:              config.DefaultWSPasses,
		},
		WSReadLimit:       config.DefaultMaxBodyBytes,
		WSReadTimeout:     5 * time.Second,
		Quota:             quota.DefaultLimits(),
		UserInfoTTL:       time.Minute,
		JWTSecret:         testSecret,
		JWTTTL:            time.Hour,
		AuthIssuerEnabled: issuerEnabled,
	}

	guarded := circuitbreaker.NewDB(database)
	quotaSvc := quota.NewService(newUserRepo(db.DriverSQLite, guarded), cfg.Quota)
	an := analyser.NewNoOp()
	store := auth.NewMemoryTokenStore()
	issuer := auth.NewIssuer(testSecret, time.Hour)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	handler := newRouter(routerDeps{
		Config:      cfg,
		Logger:      logger,
		DB:          database,
		Store:       store,
		Validator:   auth.NewValidator(testSecret, store),
		Issuer:      issuer,
		Quota:       quotaSvc,
		Analysis:    analysis.NewService(quotaSvc, an, analysis.Config{FilterWorkers: 2}),
		Breakers:    breakersOf(an, guarded),
		RateLimiter: newRateLimiter(cfg),
	})

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, issuer: issuer}
}

func (s *testServer) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, s.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestRouter_Probes(t *testing.T) {
	srv := newTestServer(t, false)

	for _, path := range []string{"/live", "/ready", "/health", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			resp := srv.get(t, path, "")
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
		})
	}

	var health hhttp.HealthResponse
	require.NoError(t, json.NewDecoder(srv.get(t, "/health", "").Body).Decode(&health))
	assert.Equal(t, "healthy", health.Status)
}

func TestRouter_TokenIssuerIsOptIn(t *testing.T) {
	body := `{"email":"dev@example.com"}`

	resp, err := http.Post(newTestServer(t, false).URL+"/auth/token", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(newTestServer(t, true).URL+"/auth/token", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRouter_AnalysisUpdatesUserInfo(t *testing.T) {
	srv := newTestServer(t, false)
	token, _, err := srv.issuer.Issue("dev@example.com")
	require.NoError(t, err)

	readStatus := func(path string) quota.Status {
		resp := srv.get(t, path, token)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var st quota.Status
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
		return st
	}

	before := readStatus("/user_info")
	assert.Equal(t, 0, before.RequestsCount)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer func() { _ = conn.CloseNow() }()

	for _, frame := range []string{
		`{"token":"` + token + `"}`,
		"java",
		"java.lang.IllegalStateException: boom\n\tat com.example.App.run(App.java:10)\n\tat com.example.App.main(App.java:3)",
	} {
		require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(frame)))
	}

	var statuses []string
	for {
		var msg analysis.Message
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
			break
		}
		statuses = append(statuses, msg.Status)
	}
	require.NotEmpty(t, statuses)
	assert.Equal(t, analysis.StatusCompleted, statuses[len(statuses)-1])
	assert.Contains(t, statuses, analysis.StatusStreaming)
	assert.NotContains(t, statuses, analysis.StatusError)

	after := readStatus("/get_user_info")
	assert.Equal(t, 1, after.RequestsCount)
	assert.Positive(t, after.TokenUsage)
}

func TestRouter_LogoutRevokes(t *testing.T) {
	srv := newTestServer(t, false)
	token, _, err := srv.issuer.Issue("dev@example.com")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, srv.get(t, "/logout", token).StatusCode)
	assert.Equal(t, http.StatusUnauthorized, srv.get(t, "/user_info", token).StatusCode)
}

func TestNewRateLimiter_ProxyTrust(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	send := func(h http.Handler, client string) int {
		req := httptest.NewRequest(http.MethodGet, "/user_info", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		req.Header.Set("X-Forwarded-For", client)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr.Code
	}
	cfg := config.AppConfig{RateLimit: 1, RateLimitWindow: time.Minute}

	direct := newRateLimiter(cfg).Limit(ok)
	assert.Equal(t, http.StatusOK, send(direct, "198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, send(direct, "198.51.100.2"), "headers ignored by default")

	cfg.TrustProxy = true
	cfg.TrustedProxies = []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	proxied := newRateLimiter(cfg).Limit(ok)
	assert.Equal(t, http.StatusOK, send(proxied, "198.51.100.1"))
	assert.Equal(t, http.StatusOK, send(proxied, "198.51.100.2"))
}
