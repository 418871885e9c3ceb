// Package middleware holds the HTTP middleware that sits in front of the API routes.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ayush/personal-library/internal/auth"
	"github.com/ayush/personal-library/internal/common"
	"github.com/ayush/personal-library/internal/response"
)

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// RevocationChecker reports whether a token id has been revoked.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RequireAuth is middleware that validates the bearer token and injects the
// auth.Session into the request context. revoked may be nil.
func RequireAuth(tokens TokenVerifier, revoked RevocationChecker, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				response.Error(w, r, log, common.ErrUnauthorized)
				return
			}

			claims, err := tokens.Verify(raw)
			if err != nil {
				response.Error(w, r, log, err)
				return
			}

			sess := auth.SessionFromClaims(claims)
			if revoked != nil && sess.TokenID != "" {
				gone, err := revoked.IsRevoked(r.Context(), sess.TokenID)
				if err != nil {
					response.Error(w, r, log, err)
					return
				}
				if gone {
					response.Error(w, r, log, common.ErrTokenInvalid)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
		})
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
