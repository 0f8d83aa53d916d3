package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"traceback-analyser/internal/handler/http/requestid"
	"traceback-analyser/internal/observability/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(okHandler(), mark("first"), mark("second"), mark("third"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"first", "second", "third"}, order)
}

func TestRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name           string
		limit          int
		requests       int
		expectedStatus []int
	}{
		{"all allowed", 3, 3, []int{200, 200, 200}},
		{"fourth blocked", 3, 4, []int{200, 200, 200, 429}},
		{"limit one", 1, 3, []int{200, 429, 429}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewRateLimiter(tt.limit, time.Minute, nil).Limit(okHandler())

			for i := 0; i < tt.requests; i++ {
				req := httptest.NewRequest(http.MethodGet, "/user_info", nil)
				req.RemoteAddr = "192.168.1.1:12345"
				rr := httptest.NewRecorder()
				handler.ServeHTTP(rr, req)

				assert.Equal(t, tt.expectedStatus[i], rr.Code, "request %d", i+1)
				if rr.Code == http.StatusTooManyRequests {
					assert.Equal(t, "60", rr.Header().Get("Retry-After"))
				}
			}
		})
	}
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Second, nil)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.1"))
	assert.False(t, rl.allow("10.0.0.1"))

	now = now.Add(1100 * time.Millisecond)
	assert.True(t, rl.allow("10.0.0.1"))
}

func TestRateLimiter_DifferentIPs(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, nil)

	assert.True(t, rl.allow("10.0.0.1"))
	assert.True(t, rl.allow("10.0.0.2"))
	assert.False(t, rl.allow("10.0.0.1"))
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl := NewRateLimiter(50, time.Minute, nil)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.allow("10.0.0.1") {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, allowed)
}

func TestRateLimiter_Cleanup(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(5, time.Minute, nil)
	rl.now = func() time.Time { return now }

	rl.allow("10.0.0.1")
	rl.allow("10.0.0.2")
	now = now.Add(30 * time.Second)
	rl.allow("10.0.0.2")

	now = now.Add(45 * time.Second)
	assert.Equal(t, 1, rl.Cleanup())

	_, ok := rl.records.Load("10.0.0.1")
	assert.False(t, ok)
	_, ok = rl.records.Load("10.0.0.2")
	assert.True(t, ok)
}

func TestRateLimiter_RunCleanupStops(t *testing.T) {
	rl := NewRateLimiter(5, time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		rl.RunCleanup(ctx, time.Millisecond)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunCleanup did not stop after cancel")
	}
}

func TestLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, "json", "info")

	var ctxLogger *slog.Logger
	handler := requestid.Middleware(Logging(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctxLogger = logging.FromContext(r.Context())
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("body"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/auth/token", nil)
	req.Header.Set(requestid.RequestIDHeader, "req-1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	require.NotNil(t, ctxLogger)
	assert.NotSame(t, slog.Default(), ctxLogger)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "request completed", entry["msg"])
	assert.Equal(t, "req-1", entry["request_id"])
	assert.EqualValues(t, http.StatusCreated, entry["status"])
	assert.EqualValues(t, 4, entry["bytes"])
}

func TestRecover(t *testing.T) {
	logger := logging.New(io.Discard, "json", "error")

	tests := []struct {
		name       string
		panicValue any
	}{
		{"string", "something went wrong"},
		{"error", errors.New("test error")},
		{"number", 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := Recover(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				panic(tt.panicValue)
			}))

			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user_info", nil))

			assert.Equal(t, http.StatusInternalServerError, rr.Code)
			assert.Contains(t, rr.Body.String(), "internal server error")
		})
	}

	t.Run("no panic", func(t *testing.T) {
		rr := httptest.NewRecorder()
		Recover(logger)(okHandler()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestLimitRequestBody(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		maxBytes  int64
		expectErr bool
	}{
		{"under limit", "small", 16, false},
		{"exact limit", strings.Repeat("a", 16), 16, false},
		{"over limit", strings.Repeat("a", 17), 16, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var readErr error
			handler := LimitRequestBody(tt.maxBytes)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, readErr = io.ReadAll(r.Body)
			}))

			req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(tt.body))
			handler.ServeHTTP(httptest.NewRecorder(), req)

			if tt.expectErr {
				var maxErr *http.MaxBytesError
				assert.ErrorAs(t, readErr, &maxErr)
			} else {
				assert.NoError(t, readErr)
			}
		})
	}
}
