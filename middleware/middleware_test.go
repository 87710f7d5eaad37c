package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/memidp"
	"github.com/MrEthical07/authflow/step"
)

func newEngine(t *testing.T, resume bool) *authflow.Engine {
	t.Helper()
	cfg := authflow.DefaultConfig()
	cfg.ResumeToken.Enabled = resume
	e, err := authflow.New().
		WithConfig(cfg).
		WithIdentityProvider(memidp.New(memidp.Options{})).
		WithUserDirectory(memidp.NewDirectory()).
		WithLogger(zaptest.NewLogger(t)).
		WithJitter(func() time.Duration { return 0 }).
		Build()
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return e
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{&authflow.ValidationError{Field: "email", Reason: "empty"}, http.StatusBadRequest},
		{&authflow.RateLimitError{Delay: time.Second}, http.StatusTooManyRequests},
		{authflow.ErrInvalidCredentials, http.StatusUnauthorized},
		{fmt.Errorf("wrapped: %w", authflow.ErrCodeMismatch), http.StatusUnauthorized},
		{authflow.ErrTokenInvalid, http.StatusUnauthorized},
		{authflow.ErrAccountSuspended, http.StatusForbidden},
		{authflow.ErrStepMismatch, http.StatusConflict},
		{authflow.ErrBackNotAllowed, http.StatusConflict},
		{authflow.ErrProviderUnavailable, http.StatusServiceUnavailable},
		{authflow.ErrResumeUnsupported, http.StatusServiceUnavailable},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, StatusFor(tc.err), "err=%v", tc.err)
	}
}

func TestWriteErrorRoundsRetryAfterUp(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, &authflow.RateLimitError{Operation: step.OpPasswordVerify, Delay: 1500 * time.Millisecond, Reason: "backoff"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	WriteError(rec, &authflow.RateLimitError{Delay: 10 * time.Millisecond})
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	rec = httptest.NewRecorder()
	WriteError(rec, authflow.ErrStepMismatch)
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestGuard(t *testing.T) {
	e := newEngine(t, false)
	ctx := context.Background()

	r := chi.NewRouter()
	r.With(Guard(e, step.OpPasswordVerify, func(r *http.Request) string {
		return chi.URLParam(r, "email")
	})).Post("/login/{email}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	do := func(email string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/login/"+email, nil))
		return rec
	}

	assert.Equal(t, http.StatusNoContent, do("a@x.com").Code)

	require.NoError(t, e.RecordAttempt(ctx, "a@x.com", step.OpPasswordVerify, false))
	rec := do("a@x.com")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusNoContent, do("b@x.com").Code)

	snap, err := e.LimitSnapshot(ctx, "a@x.com", step.OpPasswordVerify)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), snap.TotalFailedAttempts, "guard must not record attempts")
}

func TestGuardPassesWithoutIdentifier(t *testing.T) {
	e := newEngine(t, false)
	h := Guard(e, step.OpEmailCheck, func(*http.Request) string { return "" })(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusAccepted) }),
	)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestResumeFlow(t *testing.T) {
	e := newEngine(t, true)
	f, _, err := e.Start(context.Background(), "r@x.com")
	require.NoError(t, err)
	token, err := f.ResumeToken()
	require.NoError(t, err)

	var gotID string
	h := ResumeFlow(e)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resumed, ok := FlowFromContext(r.Context())
		require.True(t, ok)
		gotID = resumed.ID()
		w.WriteHeader(http.StatusOK)
	}))

	serve := func(auth string) int {
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, serve(""))
	assert.Equal(t, http.StatusUnauthorized, serve("Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, serve("Bearer not-a-token"))
	assert.Equal(t, http.StatusOK, serve("Bearer "+token))
	assert.Equal(t, f.ID(), gotID)
}

func TestContextWithFlow(t *testing.T) {
	_, ok := FlowFromContext(context.Background())
	assert.False(t, ok)

	e := newEngine(t, false)
	f, err := e.NewFlow(context.Background())
	require.NoError(t, err)
	got, ok := FlowFromContext(ContextWithFlow(context.Background(), f))
	require.True(t, ok)
	assert.Same(t, f, got)
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "198.51.100.7:5123"
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.1")

	assert.Equal(t, "198.51.100.7", clientIP(req, false))
	assert.Equal(t, "203.0.113.1", clientIP(req, true))

	req.RemoteAddr = "bare"
	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "bare", clientIP(req, true))
}

func TestClientContextFeedsAudit(t *testing.T) {
	sink := authflow.NewChannelSink(16)
	cfg := authflow.DefaultConfig()
	cfg.Audit.Enabled = true
	cfg.Audit.DropIfFull = false
	e, err := authflow.New().
		WithConfig(cfg).
		WithIdentityProvider(memidp.New(memidp.Options{})).
		WithUserDirectory(memidp.NewDirectory()).
		WithAuditSink(sink).
		Build()
	require.NoError(t, err)

	h := ClientContext(false)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := e.NewFlow(r.Context())
		require.NoError(t, err)
	}))
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.RemoteAddr = "198.51.100.7:5123"
	req.Header.Set("User-Agent", "test-agent")
	h.ServeHTTP(httptest.NewRecorder(), req)
	e.Close()

	ev := <-sink.Events()
	assert.Equal(t, "flow_started", ev.EventType)
	assert.Equal(t, "198.51.100.7", ev.IP)
	assert.Len(t, ev.ClientTag, 16)
}
