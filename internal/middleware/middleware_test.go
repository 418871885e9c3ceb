package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ayush/personal-library/internal/auth"
	"github.com/ayush/personal-library/internal/common"
)

type stubRevocations struct {
	revoked map[string]bool
	err     error
}

func (s stubRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	return s.revoked[tokenID], s.err
}

func newTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	ts, err := auth.NewTokenService("middleware-secret", time.Hour, "")
	require.NoError(t, err)
	return ts
}

// sessionEcho records whether it ran and which session it saw.
type sessionEcho struct {
	called bool
	sess   auth.Session
}

func (e *sessionEcho) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	e.called = true
	e.sess, _ = auth.SessionFromContext(r.Context())
	w.WriteHeader(http.StatusOK)
}

func TestRequireAuth(t *testing.T) {
	tokens := newTokens(t)
	tok, err := tokens.Issue("user-1", "a@x.com")
	require.NoError(t, err)

	other, err := auth.NewTokenService("another-secret", time.Hour, "")
	require.NoError(t, err)
	forged, err := other.Issue("user-1", "a@x.com")
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		revoked stubRevocations
		status  int
	}{
		{"valid", "Bearer " + tok.Value, stubRevocations{}, http.StatusOK},
		{"lowercase scheme", "bearer " + tok.Value, stubRevocations{}, http.StatusOK},
		{"missing header", "", stubRevocations{}, http.StatusUnauthorized},
		{"wrong scheme", "Basic " + tok.Value, stubRevocations{}, http.StatusUnauthorized},
		{"empty token", "Bearer ", stubRevocations{}, http.StatusUnauthorized},
		{"garbage", "Bearer abc.def.ghi", stubRevocations{}, http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged.Value, stubRevocations{}, http.StatusUnauthorized},
		{"revoked", "Bearer " + tok.Value, stubRevocations{revoked: map[string]bool{tok.ID: true}}, http.StatusUnauthorized},
		{"revocation store down", "Bearer " + tok.Value, stubRevocations{err: common.Unavailable("check", errors.New("down"))}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			echo := &sessionEcho{}
			h := RequireAuth(tokens, tt.revoked, zap.NewNop())(echo)

			req := httptest.NewRequest(http.MethodGet, "/api/books", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.status == http.StatusOK, echo.called)
			if tt.status == http.StatusUnauthorized {
				assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Bearer")
			}
			if echo.called {
				assert.Equal(t, "user-1", echo.sess.UserID)
				assert.Equal(t, tok.ID, echo.sess.TokenID)
			}
		})
	}
}

func TestRequireAuth_NilRevocations(t *testing.T) {
	tokens := newTokens(t)
	tok, err := tokens.Issue("user-2", "b@x.com")
	require.NoError(t, err)

	echo := &sessionEcho{}
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Value)
	rec := httptest.NewRecorder()
	RequireAuth(tokens, nil, zap.NewNop())(echo).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "user-2", echo.sess.UserID)
}

func newLimiter(t *testing.T, limit int) (*RateLimiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	l := NewRateLimiter(rdb, limit, 15*time.Minute, zap.NewNop())
	fixed := time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	return l, mr
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	l, _ := newLimiter(t, 3)
	h := l.Handler(&sessionEcho{})

	hit := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit("10.0.0.1").Code)
	}
	rec := hit("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "600", rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusOK, hit("10.0.0.2").Code)
}

func TestRateLimiter_NewWindowResets(t *testing.T) {
	l, _ := newLimiter(t, 1)
	h := l.Handler(&sessionEcho{})
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	later := l.now().Add(15 * time.Minute)
	l.now = func() time.Time { return later }
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_FailsOpen(t *testing.T) {
	l, mr := newLimiter(t, 1)
	mr.Close()

	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		l.Handler(&sessionEcho{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(core)

	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError} {
		h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/books", nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.EqualValues(t, 404, entries[1].ContextMap()["status"])
}

func TestRequestLogger_TraceID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	ctx, span := tp.Tracer("test").Start(context.Background(), "request")
	defer span.End()

	h := RequestLogger(zap.New(core))(&sessionEcho{})
	req := httptest.NewRequest(http.MethodGet, "/api/books", nil).WithContext(ctx)
	h.ServeHTTP(httptest.NewRecorder(), req)
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, span.SpanContext().TraceID().String(), entries[0].ContextMap()["trace_id"])
	assert.NotContains(t, entries[1].ContextMap(), "trace_id")
}
