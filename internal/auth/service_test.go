package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"

	"github.com/ayush/personal-library/internal/common"
	"github.com/ayush/personal-library/internal/models"
)

// mockUserStore is a map-backed UserStore that enforces email uniqueness atomically.
type mockUserStore struct {
	mu         sync.Mutex
	users      map[string]*models.User
	emailIndex map[string]*models.User
	lookupErr  error
	creates    int
}

func newMockUserStore() *mockUserStore {
	return &mockUserStore{
		users:      make(map[string]*models.User),
		emailIndex: make(map[string]*models.User),
	}
}

func (m *mockUserStore) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.emailIndex[user.Email]; ok {
		return common.ErrDuplicateEmail
	}
	u := *user
	m.users[u.ID] = &u
	m.emailIndex[u.Email] = &u
	m.creates++
	return nil
}

func (m *mockUserStore) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lookupErr != nil {
		return nil, m.lookupErr
	}
	u, ok := m.emailIndex[email]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserStore) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

type mockRevoker struct {
	revoked map[string]time.Time
	err     error
}

func (m *mockRevoker) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.revoked[tokenID] = expiresAt
	return nil
}

func sequentialIDs() IDFunc {
	var n atomic.Int64
	return func() string { return fmt.Sprint(n.Add(1)) }
}

func newTestService(t *testing.T, store UserStore, log *zap.Logger) (*Service, *TokenService) {
	t.Helper()
	hasher, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	tokens := newTestTokens(t, time.Hour)
	if log == nil {
		log = zap.NewNop()
	}
	return NewService(store, hasher, tokens, nil, sequentialIDs(), log), tokens
}

func TestService_Scenario(t *testing.T) {
	store := newMockUserStore()
	svc, tokens := newTestService(t, store, nil)
	ctx := context.Background()

	reg, err := svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "1", reg.ID)
	assert.Equal(t, "a@x.com", reg.Email)

	claims, err := tokens.Verify(reg.Token)
	require.NoError(t, err)
	assert.Equal(t, "1", claims.Subject)

	login, err := svc.Login(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, reg.ID, login.ID)

	_, err = svc.Login(ctx, "a@x.com", "wrong")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = svc.Register(ctx, "a@x.com", "other1")
	assert.ErrorIs(t, err, common.ErrDuplicateEmail)
	assert.Equal(t, 1, store.creates)
}

func TestService_RegisterThenLoginProperty(t *testing.T) {
	svc, _ := newTestService(t, newMockUserStore(), nil)
	ctx := context.Background()

	pairs := [][2]string{
		{"reader@example.com", "hunter22"},
		{"Mixed.Case@Example.org", "pässwörd"},
		{"x+tag@y.io", strings.Repeat("k", 72)},
	}
	for _, p := range pairs {
		reg, err := svc.Register(ctx, p[0], p[1])
		require.NoError(t, err, p[0])
		login, err := svc.Login(ctx, p[0], p[1])
		require.NoError(t, err, p[0])
		assert.Equal(t, reg.ID, login.ID)
	}
}

func TestService_UnknownEmailMatchesWrongPassword(t *testing.T) {
	svc, _ := newTestService(t, newMockUserStore(), nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, "known@x.com", "secret1")
	require.NoError(t, err)

	_, errUnknown := svc.Login(ctx, "nobody@x.com", "secret1")
	_, errWrong := svc.Login(ctx, "known@x.com", "secret2")
	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.Equal(t, errUnknown, errWrong)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
}

func TestService_EmailIsCaseSensitive(t *testing.T) {
	svc, _ := newTestService(t, newMockUserStore(), nil)
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "secret1")
	require.NoError(t, err)
	_, err = svc.Register(ctx, "A@x.com", "secret1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "A@X.COM", "secret1")
	assert.ErrorIs(t, err, common.ErrInvalidCredentials)
}

func TestService_RegisterValidation(t *testing.T) {
	svc, _ := newTestService(t, newMockUserStore(), nil)

	tests := []struct {
		email, secret, field string
	}{
		{"", "secret1", "email"},
		{"not-an-email", "secret1", "email"},
		{"Name <a@x.com>", "secret1", "email"},
		{"a@x.com", "", "password"},
		{"a@x.com", "12345", "password"},
		{"a@x.com", strings.Repeat("x", 73), "password"},
	}
	for _, tt := range tests {
		_, err := svc.Register(context.Background(), tt.email, tt.secret)
		var ve *common.ValidationError
		require.True(t, errors.As(err, &ve), "%q/%q: %v", tt.email, tt.secret, err)
		assert.Equal(t, tt.field, ve.Field)
	}
}

func TestService_ConcurrentRegisterSameEmail(t *testing.T) {
	store := newMockUserStore()
	hasher, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	svc := NewService(store, hasher, newTestTokens(t, time.Hour), nil, uuid.NewString, zap.NewNop())

	const n = 8
	var wg sync.WaitGroup
	var ok, dup atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Register(context.Background(), "race@x.com", "secret1")
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, common.ErrDuplicateEmail):
				dup.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(n-1), dup.Load())
	assert.Equal(t, 1, store.creates)
}

func TestService_StoreFailurePropagates(t *testing.T) {
	store := newMockUserStore()
	store.lookupErr = common.Unavailable("get user", errors.New("connection refused"))
	svc, _ := newTestService(t, store, nil)

	_, err := svc.Login(context.Background(), "a@x.com", "secret1")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = svc.Register(context.Background(), "a@x.com", "secret1")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.Equal(t, 0, store.creates)
}

func TestService_NeverLogsSecrets(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	store := newMockUserStore()
	svc, _ := newTestService(t, store, zap.New(core))
	ctx := context.Background()

	_, err := svc.Register(ctx, "a@x.com", "topsecret")
	require.NoError(t, err)
	_, _ = svc.Login(ctx, "a@x.com", "topsecret")
	_, _ = svc.Login(ctx, "a@x.com", "wrongsecret")

	hash := store.emailIndex["a@x.com"].PasswordHash
	for _, entry := range logs.All() {
		for k, v := range entry.ContextMap() {
			s := fmt.Sprint(v)
			assert.NotContains(t, s, "topsecret", k)
			assert.NotContains(t, s, hash, k)
		}
		assert.NotContains(t, entry.Message, "topsecret")
	}
	assert.NotEqual(t, "topsecret", hash)
}

func TestService_Logout(t *testing.T) {
	revoker := &mockRevoker{revoked: map[string]time.Time{}}
	hasher, err := NewPasswordHasher(bcrypt.MinCost)
	require.NoError(t, err)
	svc := NewService(newMockUserStore(), hasher, newTestTokens(t, time.Hour), revoker, sequentialIDs(), zap.NewNop())

	exp := time.Now().Add(time.Hour)
	require.NoError(t, svc.Logout(context.Background(), "tok-1", exp))
	assert.Equal(t, exp, revoker.revoked["tok-1"])

	revoker.err = common.Unavailable("revoke token", errors.New("down"))
	assert.ErrorIs(t, svc.Logout(context.Background(), "tok-2", exp), common.ErrStoreUnavailable)

	withoutRevoker, _ := newTestService(t, newMockUserStore(), nil)
	assert.NoError(t, withoutRevoker.Logout(context.Background(), "tok-3", exp))
}

func TestService_Me(t *testing.T) {
	svc, _ := newTestService(t, newMockUserStore(), nil)
	reg, err := svc.Register(context.Background(), "me@x.com", "secret1")
	require.NoError(t, err)

	u, err := svc.Me(context.Background(), reg.ID)
	require.NoError(t, err)
	assert.Equal(t, "me@x.com", u.Email)

	_, err = svc.Me(context.Background(), "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}
