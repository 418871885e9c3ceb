package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ayush/personal-library/internal/common"
)

func TestError_Mapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"validation", common.Invalid("title", "is required"), http.StatusBadRequest, CodeInvalidInput},
		{"bare invalid input", fmt.Errorf("decode: %w", common.ErrInvalidInput), http.StatusBadRequest, CodeInvalidInput},
		{"duplicate", fmt.Errorf("create: %w", common.ErrDuplicateEmail), http.StatusBadRequest, CodeDuplicateEmail},
		{"credentials", common.ErrInvalidCredentials, http.StatusUnauthorized, CodeInvalidCredentials},
		{"expired", common.ErrTokenExpired, http.StatusUnauthorized, CodeUnauthorized},
		{"invalid token", common.ErrTokenInvalid, http.StatusUnauthorized, CodeUnauthorized},
		{"not found", fmt.Errorf("get: %w", common.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"too large", common.ErrTooLarge, http.StatusRequestEntityTooLarge, CodeTooLarge},
		{"unavailable", common.Unavailable("get book", errors.New("dial tcp: refused")), http.StatusInternalServerError, CodeInternal},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodGet, "/api/books/1", nil)
			Error(w, r, zap.NewNop(), tt.err)

			assert.Equal(t, tt.status, w.Code)
			var body ErrorBody
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, tt.code, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestError_InternalDetailIsLoggedNotReturned(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/api/books", nil)

	Error(w, r, zap.New(core), common.Unavailable("insert book", errors.New("pq: connection refused")))

	assert.NotContains(t, w.Body.String(), "connection refused")
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "request failed", entry.Message)
	assert.Equal(t, true, entry.ContextMap()["store_unavailable"])
}

func TestUnauthorized_SetsChallenge(t *testing.T) {
	w := httptest.NewRecorder()
	Unauthorized(w, "missing bearer token")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Bearer")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}
