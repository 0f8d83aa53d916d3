package analysis

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"traceback-analyser/internal/domain/entity"
	"traceback-analyser/internal/infra/analyser"
	"traceback-analyser/internal/tracefilter"
	"traceback-analyser/internal/usecase/quota"
)

/*────────────────────  stubs  ────────────────────*/

type stubQuota struct {
	mu       sync.Mutex
	checkErr error
	addErr   error
	checked  []string
	added    map[string]int
}

func (q *stubQuota) Check(_ context.Context, email string) (*entity.User, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.checked = append(q.checked, email)
	if q.checkErr != nil {
		return nil, q.checkErr
	}
	return &entity.User{Email: email}, nil
}

func (q *stubQuota) AddUsage(_ context.Context, email string, tokens int) (*entity.User, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.addErr != nil {
		return nil, q.addErr
	}
	if q.added == nil {
		q.added = map[string]int{}
	}
	q.added[email] += tokens
	return &entity.User{Email: email, TokenUsage: int64(q.added[email])}, nil
}

type stubAnalyser struct {
	tokens []string
	usage  entity.Usage
	err    error
	got    analyser.Request
	calls  int
}

func (a *stubAnalyser) Name() string { return "stub" }

func (a *stubAnalyser) Stream(_ context.Context, req analyser.Request, emit func(string) error) (entity.Usage, error) {
	a.calls++
	a.got = req
	for _, t := range a.tokens {
		if err := emit(t); err != nil {
			return a.usage, err
		}
	}
	return a.usage, a.err
}

func collect(out *[]Message) func(Message) error {
	return func(m Message) error {
		*out = append(*out, m)
		return nil
	}
}

const javaTrace = `java.lang.IllegalStateException: boom
	at com.example.Service.run(Service.java:10)
	at com.example.Service.run(Service.java:11)
	at com.example.Service.run(Service.java:12)
	at com.example.Service.run(Service.java:13)
	at com.example.Service.run(Service.java:14)
Caused by: java.io.IOException: disk full`

func wsPolicy() tracefilter.Policy {
	return tracefilter.Policy{SimilarityThreshold: 0.5, MaxSimilarLines: 2, Passes: 2}
}

/*────────────────────  Analyze  ────────────────────*/

func TestAnalyze_StreamsTokensAndRecordsUsage(t *testing.T) {
	q := &stubQuota{}
	a := &stubAnalyser{tokens: []string{"The", " service", " loops."}, usage: entity.Usage{InputTokens: 100, GeneratedTokens: 3}}
	svc := NewService(q, a, Config{FilterWorkers: 2})

	var msgs []Message
	err := svc.Analyze(context.Background(), Request{
		User: "dev@example.com", Language: "Java", Trace: javaTrace, Policy: wsPolicy(),
	}, collect(&msgs))

	require.NoError(t, err)
	assert.Equal(t, []Message{
		{Status: StatusStreaming, Stage: StageAnalysing, Message: "The"},
		{Status: StatusStreaming, Stage: StageAnalysing, Message: " service"},
		{Status: StatusStreaming, Stage: StageAnalysing, Message: " loops."},
	}, msgs)
	assert.Equal(t, []string{"dev@example.com"}, q.checked)
	assert.Equal(t, 103, q.added["dev@example.com"])

	assert.Equal(t, tracefilter.VariantJava, a.got.Variant)
	lines := strings.Split(a.got.Trace, "\n")
	assert.Len(t, lines, 4, "two of the five similar frames are kept")
	assert.Equal(t, "Caused by: java.io.IOException: disk full", lines[3])
	assert.Equal(t, "java.lang.IllegalStateException: boom", lines[0])
}

func TestAnalyze_DetailedResponses(t *testing.T) {
	a := &stubAnalyser{tokens: []string{"ok"}}
	svc := NewService(&stubQuota{}, a, Config{DetailedResponses: true})

	var msgs []Message
	require.NoError(t, svc.Analyze(context.Background(), Request{
		User: "u@example.com", Language: "python", Trace: "Traceback\nValueError", Policy: tracefilter.DefaultPolicy(),
	}, collect(&msgs)))

	require.Len(t, msgs, 4)
	assert.Equal(t, Message{Status: StatusRunning, Stage: StageFiltering, Message: "Filtering traceback..."}, msgs[0])
	assert.Equal(t, Message{Status: StatusRunning, Stage: StageFiltered, Message: "Traceback\nValueError"}, msgs[1])
	assert.Equal(t, Message{Status: StatusRunning, Stage: StageAnalysing, Message: "Analyzing..."}, msgs[2])
	assert.Equal(t, StatusStreaming, msgs[3].Status)
}

func TestAnalyze_ExtractLogPrefix(t *testing.T) {
	a := &stubAnalyser{}
	svc := NewService(&stubQuota{}, a, Config{})

	trace := "2024-01-02 10:11:12 ERROR app - Traceback (most recent call last):\n" +
		"2024-01-02 10:11:13 ERROR app - ValueError: bad"
	require.NoError(t, svc.Analyze(context.Background(), Request{
		User: "u@example.com", Trace: trace, Policy: tracefilter.DefaultPolicy(), ExtractLogPrefix: true,
	}, collect(new([]Message))))

	assert.Equal(t, "Traceback (most recent call last):\nValueError: bad", a.got.Trace)
}

func TestAnalyze_PassesTemperature(t *testing.T) {
	a := &stubAnalyser{}
	svc := NewService(&stubQuota{}, a, Config{})
	temp := 0.0

	require.NoError(t, svc.Analyze(context.Background(), Request{
		User: "u@example.com", Trace: "x", Policy: tracefilter.DefaultPolicy(), Temperature: &temp,
	}, collect(new([]Message))))

	require.NotNil(t, a.got.Temperature)
	assert.Equal(t, 0.0, *a.got.Temperature)
}

func TestAnalyze_Errors(t *testing.T) {
	quotaErr := &quota.ExceededError{Kind: quota.ErrTokenQuotaExceeded, Email: "u@example.com", Used: 40001, Limit: 40000}

	tests := []struct {
		name       string
		quota      *stubQuota
		analyser   *stubAnalyser
		req        Request
		wantStatus int
		wantMsg    string
		wantStream bool
	}{
		{
			name:       "quota exceeded",
			quota:      &stubQuota{checkErr: quotaErr},
			analyser:   &stubAnalyser{},
			req:        Request{Trace: "x"},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantMsg:    "Sorry, Token usage quota for user u@example.com reached. Used: 40001 Limit: 40000",
		},
		{
			name:       "input too large",
			quota:      &stubQuota{},
			analyser:   &stubAnalyser{err: analyser.ErrInputTooLarge},
			req:        Request{Trace: "x"},
			wantStatus: http.StatusRequestEntityTooLarge,
			wantMsg:    "Input text too large",
			wantStream: true,
		},
		{
			name:       "invalid language",
			quota:      &stubQuota{},
			analyser:   &stubAnalyser{},
			req:        Request{Language: "Exception in thread main", Trace: "x"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Invalid language",
		},
		{
			name:       "empty trace",
			quota:      &stubQuota{},
			analyser:   &stubAnalyser{},
			req:        Request{Trace: " \n\t\n"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "Empty traceback",
		},
		{
			name:       "provider failure",
			quota:      &stubQuota{},
			analyser:   &stubAnalyser{err: errors.New("HTTP 500: upstream")},
			req:        Request{Trace: "x"},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "Analysis failed",
			wantStream: true,
		},
		{
			name:       "provider unavailable",
			quota:      &stubQuota{},
			analyser:   &stubAnalyser{err: analyser.ErrUnavailable},
			req:        Request{Trace: "x"},
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "Analysis temporarily unavailable",
			wantStream: true,
		},
		{
			name:       "usage not stored",
			quota:      &stubQuota{addErr: errors.New("db down")},
			analyser:   &stubAnalyser{},
			req:        Request{Trace: "x"},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Internal server error",
			wantStream: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(tt.quota, tt.analyser, Config{})
			tt.req.User = "u@example.com"
			tt.req.Policy = tracefilter.DefaultPolicy()

			err := svc.Analyze(context.Background(), tt.req, collect(new([]Message)))

			var ae *Error
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.wantStatus, ae.StatusCode)
			assert.Equal(t, tt.wantMsg, ae.Message)
			assert.Equal(t, tt.wantStream, tt.analyser.calls == 1)
		})
	}
}

func TestAnalyze_NoUsageRecordedOnFailure(t *testing.T) {
	q := &stubQuota{}
	svc := NewService(q, &stubAnalyser{tokens: []string{"partial"}, err: errors.New("stream reset")}, Config{})

	err := svc.Analyze(context.Background(), Request{User: "u@example.com", Trace: "x", Policy: tracefilter.DefaultPolicy()},
		collect(new([]Message)))

	require.Error(t, err)
	assert.Empty(t, q.added)
}

func TestAnalyze_EmitErrorStops(t *testing.T) {
	q := &stubQuota{}
	a := &stubAnalyser{tokens: []string{"a", "b"}}
	svc := NewService(q, a, Config{})
	gone := errors.New("connection closed")

	calls := 0
	err := svc.Analyze(context.Background(), Request{User: "u@example.com", Trace: "x", Policy: tracefilter.DefaultPolicy()},
		func(Message) error {
			calls++
			return gone
		})

	require.ErrorIs(t, err, gone)
	assert.Equal(t, 1, calls)
	assert.Empty(t, q.added)
}

func TestAnalyze_WaitsForFilterWorker(t *testing.T) {
	a := &stubAnalyser{}
	svc := NewService(&stubQuota{}, a, Config{FilterWorkers: 1})
	require.NoError(t, svc.workers.Acquire(context.Background(), 1))
	defer svc.workers.Release(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := svc.Analyze(ctx, Request{User: "u@example.com", Trace: "x", Policy: tracefilter.DefaultPolicy()},
		collect(new([]Message)))

	var ae *Error
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, StatusClientClosedRequest, ae.StatusCode)
	assert.Zero(t, a.calls)
}

/*────────────────────  AsError  ────────────────────*/

func TestAsError(t *testing.T) {
	assert.Nil(t, AsError(nil))

	original := &Error{StatusCode: http.StatusTeapot, Message: "teapot"}
	assert.Same(t, original, AsError(original))

	timeout := AsError(context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, timeout.StatusCode)

	reqQuota := AsError(&quota.ExceededError{Kind: quota.ErrRequestQuotaExceeded, Email: "a@b.c", Used: 200, Limit: 200})
	assert.Equal(t, http.StatusRequestEntityTooLarge, reqQuota.StatusCode)
	assert.Contains(t, reqQuota.Message, "Max requests quota")
	assert.ErrorIs(t, reqQuota, quota.ErrRequestQuotaExceeded)
}
