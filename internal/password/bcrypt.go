package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const defaultBcryptCost = 12

// BcryptHasher stores bcrypt digests; the salt is embedded by bcrypt itself.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a bcrypt hasher. A nil cost selects the default.
func NewBcryptHasher(cost *int) *BcryptHasher {
	c := defaultBcryptCost
	if cost != nil {
		c = *cost
	}
	if c < bcrypt.MinCost {
		c = bcrypt.MinCost
	}
	if c > bcrypt.MaxCost {
		c = bcrypt.MaxCost
	}
	return &BcryptHasher{cost: c}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: bcrypt accepts at most 72 bytes", ErrPasswordTooLong)
	}
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

func (h *BcryptHasher) Verify(plaintext, digest string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

var _ Hasher = (*BcryptHasher)(nil)
