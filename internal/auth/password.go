package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultHashCost is the bcrypt cost used when none is configured.
const DefaultHashCost = 10

// maxSecretBytes is the longest secret bcrypt can hash without truncation.
const maxSecretBytes = 72

// PasswordHasher hashes and compares secrets with bcrypt at a fixed cost.
type PasswordHasher struct {
	cost  int
	dummy []byte
}

// NewPasswordHasher creates a hasher with the given bcrypt cost.
func NewPasswordHasher(cost int) (*PasswordHasher, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("bcrypt cost %d out of range [%d, %d]", cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	// Compared against when the email is unknown so both login failures cost the same.
	dummy, err := bcrypt.GenerateFromPassword([]byte("personal-library/no-such-user"), cost)
	if err != nil {
		return nil, err
	}
	return &PasswordHasher{cost: cost, dummy: dummy}, nil
}

// Hash returns the salted bcrypt hash of secret.
func (h *PasswordHasher) Hash(secret string) (string, error) {
	if len(secret) > maxSecretBytes {
		return "", bcrypt.ErrPasswordTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Compare reports whether secret matches hash. A mismatch returns false with a nil
// error; a corrupt hash returns an error.
func (h *PasswordHasher) Compare(hash, secret string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, err
	}
}

// CompareDummy burns the same work as Compare without a real hash.
func (h *PasswordHasher) CompareDummy(secret string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(secret))
}
