package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ayush/personal-library/internal/common"
)

const revokedPrefix = "revoked:"

// RevocationStore wraps Redis as a denylist of token ids. Entries expire together
// with the token they revoke, so the set never outgrows the live tokens.
type RevocationStore struct {
	rdb *redis.Client
}

func NewRevocationStore(rdb *redis.Client) *RevocationStore {
	return &RevocationStore{rdb: rdb}
}

// Revoke denies tokenID until expiresAt. Already expired tokens are ignored.
func (s *RevocationStore) Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, revokedPrefix+tokenID, 1, ttl).Err(); err != nil {
		return common.Unavailable("revoke token", err)
	}
	return nil
}

// IsRevoked reports whether tokenID has been revoked.
func (s *RevocationStore) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedPrefix+tokenID).Result()
	if err != nil {
		return false, common.Unavailable("check revocation", err)
	}
	return n > 0, nil
}
