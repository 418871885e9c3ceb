package auth

import (
	"context"
	"time"
)

// Session is the authenticated caller of a single request.
type Session struct {
	UserID    string
	Email     string
	TokenID   string
	ExpiresAt time.Time
}

type sessionKey struct{}

// WithSession returns a copy of ctx carrying s.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session attached by the auth middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionKey{}).(Session)
	return s, ok && s.UserID != ""
}

// SessionFromClaims builds the session described by verified claims.
func SessionFromClaims(c *Claims) Session {
	s := Session{UserID: c.Subject, Email: c.Email, TokenID: c.ID}
	if c.ExpiresAt != nil {
		s.ExpiresAt = c.ExpiresAt.Time
	}
	return s
}
