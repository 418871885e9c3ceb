// Package response writes JSON bodies and maps domain errors to HTTP statuses.
package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ayush/personal-library/internal/common"
)

// Error codes returned in the error payload.
const (
	CodeInvalidInput       = "INVALID_INPUT"
	CodeDuplicateEmail     = "DUPLICATE_EMAIL"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeNotFound           = "NOT_FOUND"
	CodeRateLimited        = "RATE_LIMITED"
	CodeTooLarge           = "PAYLOAD_TOO_LARGE"
	CodeInternal           = "INTERNAL_ERROR"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error ErrorData `json:"error"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// Fail writes an error payload.
func Fail(w http.ResponseWriter, status int, code, message string) {
	JSON(w, status, ErrorBody{Error: ErrorData{Code: code, Message: message}})
}

// Error maps err onto a status and code. Errors outside the domain taxonomy are
// logged with their cause and reported as a generic internal error.
func Error(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var ve *common.ValidationError
	switch {
	case errors.As(err, &ve):
		Fail(w, http.StatusBadRequest, CodeInvalidInput, ve.Error())
	case errors.Is(err, common.ErrInvalidInput):
		Fail(w, http.StatusBadRequest, CodeInvalidInput, "invalid request")
	case errors.Is(err, common.ErrDuplicateEmail):
		Fail(w, http.StatusBadRequest, CodeDuplicateEmail, common.ErrDuplicateEmail.Error())
	case errors.Is(err, common.ErrInvalidCredentials):
		Fail(w, http.StatusUnauthorized, CodeInvalidCredentials, common.ErrInvalidCredentials.Error())
	case errors.Is(err, common.ErrTokenExpired):
		Unauthorized(w, "token expired")
	case errors.Is(err, common.ErrTokenInvalid), errors.Is(err, common.ErrUnauthorized):
		Unauthorized(w, "invalid or missing token")
	case errors.Is(err, common.ErrNotFound):
		Fail(w, http.StatusNotFound, CodeNotFound, "not found")
	case errors.Is(err, common.ErrTooLarge):
		Fail(w, http.StatusRequestEntityTooLarge, CodeTooLarge, common.ErrTooLarge.Error())
	default:
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Bool("store_unavailable", errors.Is(err, common.ErrStoreUnavailable)),
			zap.Error(err),
		)
		Fail(w, http.StatusInternalServerError, CodeInternal, "internal error")
	}
}

// Unauthorized writes a 401 carrying a bearer challenge.
func Unauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	Fail(w, http.StatusUnauthorized, CodeUnauthorized, message)
}
