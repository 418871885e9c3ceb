package auth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ayush/personal-library/internal/common"
	"github.com/ayush/personal-library/internal/models"
	"github.com/ayush/personal-library/internal/telemetry"
)

const (
	minSecretLen = 6
	maxEmailLen  = 254
)

// UserStore is the credential store. CreateUser must enforce email uniqueness itself
// and report a clash as common.ErrDuplicateEmail; lookups report common.ErrNotFound.
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	GetUserByID(ctx context.Context, id string) (*models.User, error)
}

// Revoker denylists token ids. A nil Revoker disables server side logout.
type Revoker interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
}

// IDFunc generates user ids.
type IDFunc func() string

// Service registers and authenticates users.
type Service struct {
	users   UserStore
	hasher  *PasswordHasher
	tokens  *TokenService
	revoker Revoker
	newID   IDFunc
	log     *zap.Logger
}

func NewService(users UserStore, hasher *PasswordHasher, tokens *TokenService, revoker Revoker, newID IDFunc, log *zap.Logger) *Service {
	return &Service{users: users, hasher: hasher, tokens: tokens, revoker: revoker, newID: newID, log: log}
}

// Register creates a user and issues its first token.
func (s *Service) Register(ctx context.Context, email, secret string) (*models.AuthResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.register")
	defer span.End()

	email = strings.TrimSpace(email)
	if err := validateCredentials(email, secret); err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	// The store's unique constraint remains the final arbiter.
	_, err := s.users.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		telemetry.Fail(span, common.ErrDuplicateEmail)
		return nil, common.ErrDuplicateEmail
	case !errors.Is(err, common.ErrNotFound):
		telemetry.Fail(span, err)
		return nil, err
	}

	hash, err := s.hasher.Hash(secret)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	user := &models.User{
		ID:           s.newID(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("user_id", user.ID))
	s.log.Info("user registered", zap.String("user_id", user.ID))
	return s.issue(user)
}

// Login authenticates email and secret. An unknown email and a wrong secret are
// indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, secret string) (*models.AuthResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.auth.login")
	defer span.End()

	user, err := s.users.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, common.ErrNotFound) {
		s.hasher.CompareDummy(secret)
		telemetry.Fail(span, common.ErrInvalidCredentials)
		return nil, common.ErrInvalidCredentials
	}
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}

	ok, err := s.hasher.Compare(user.PasswordHash, secret)
	if err != nil {
		telemetry.Fail(span, err)
		return nil, err
	}
	if !ok {
		telemetry.Fail(span, common.ErrInvalidCredentials)
		return nil, common.ErrInvalidCredentials
	}

	span.SetAttributes(attribute.String("user_id", user.ID))
	return s.issue(user)
}

// Logout denylists tokenID until expiresAt. Without a Revoker it is a no-op.
func (s *Service) Logout(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if s.revoker == nil || tokenID == "" {
		return nil
	}
	ctx, span := telemetry.StartSpan(ctx, "service.auth.logout")
	defer span.End()

	if err := s.revoker.Revoke(ctx, tokenID, expiresAt); err != nil {
		telemetry.Fail(span, err)
		return err
	}
	return nil
}

// Me returns the stored user for id.
func (s *Service) Me(ctx context.Context, id string) (*models.User, error) {
	return s.users.GetUserByID(ctx, id)
}

func (s *Service) issue(user *models.User) (*models.AuthResponse, error) {
	tok, err := s.tokens.Issue(user.ID, user.Email)
	if err != nil {
		return nil, err
	}
	return &models.AuthResponse{
		Token:     tok.Value,
		ID:        user.ID,
		Email:     user.Email,
		ExpiresAt: tok.ExpiresAt,
	}, nil
}

func validateCredentials(email, secret string) error {
	if email == "" || len(email) > maxEmailLen {
		return common.Invalid("email", "is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return common.Invalid("email", "is not a valid address")
	}
	if len(secret) < minSecretLen {
		return common.Invalid("password", "must be at least 6 characters")
	}
	if len(secret) > maxSecretBytes {
		return common.Invalid("password", "must be at most 72 bytes")
	}
	return nil
}
