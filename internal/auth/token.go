package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ayush/personal-library/internal/common"
)

// DefaultTokenTTL is the token lifetime used when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// Claims are the signed contents of an access token.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
}

// Token is a freshly issued, signed access token.
type Token struct {
	Value     string
	ID        string
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenService issues and verifies HS256 bearer tokens. Verification is pure: it
// touches no store and performs no I/O.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenService creates a TokenService. An empty secret is rejected so that a
// deployment can never fall back to an unsigned or guessable key.
func NewTokenService(secret string, ttl time.Duration, issuer string) (*TokenService, error) {
	if secret == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be positive")
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, issuer: issuer, now: time.Now}, nil
}

// Issue signs a token for subjectID that expires after the configured lifetime.
func (s *TokenService) Issue(subjectID, email string) (Token, error) {
	now := s.now().Truncate(time.Second)
	exp := now.Add(s.ttl)
	id := uuid.NewString()

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        id,
			Subject:   subjectID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Email: email,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ID: id, Subject: subjectID, IssuedAt: now, ExpiresAt: exp}, nil
}

// Verify checks the signature, algorithm, issuer and expiry of raw and returns its
// claims. Expired tokens yield ErrTokenExpired, everything else ErrTokenInvalid.
func (s *TokenService) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, common.ErrTokenExpired
		}
		return nil, common.ErrTokenInvalid
	}
	if !token.Valid || claims.Subject == "" {
		return nil, common.ErrTokenInvalid
	}
	return claims, nil
}
