// Package client is a Go API client for the library service. It keeps the
// caller's identity and token in a Session and attaches it to every book call.
package client

import (
	"sync"
	"time"
)

// Identity is what the client remembers about the signed-in user.
type Identity struct {
	Token     string
	UserID    string
	Email     string
	ExpiresAt time.Time
}

// Session holds the current identity. It is safe for concurrent use.
type Session struct {
	mu  sync.RWMutex
	cur *Identity
	now func() time.Time
}

func NewSession() *Session {
	return &Session{now: time.Now}
}

// Set replaces the current identity.
func (s *Session) Set(id Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = &id
}

// Clear forgets the current identity.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cur = nil
}

// Current returns the identity if one is held and has not expired.
func (s *Session) Current() (Identity, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cur == nil {
		return Identity{}, false
	}
	if !s.cur.ExpiresAt.IsZero() && !s.now().Before(s.cur.ExpiresAt) {
		return Identity{}, false
	}
	return *s.cur, true
}

// SignedIn reports whether protected screens should be reachable.
func (s *Session) SignedIn() bool {
	_, ok := s.Current()
	return ok
}
