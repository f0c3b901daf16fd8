// Package password turns plaintext passwords into salted digests and checks them.
package password

import (
	"errors"
	"fmt"
	"strings"
)

// ErrPasswordTooLong is returned by Hash when the plaintext exceeds what the algorithm accepts.
var ErrPasswordTooLong = errors.New("password too long")

// Hasher is a one-way password transform. Digests carry their own salt and parameters.
type Hasher interface {
	// Hash returns the digest to persist for plaintext.
	Hash(plaintext string) (string, error)
	// Verify reports whether plaintext matches digest.
	Verify(plaintext, digest string) (bool, error)
}

// New returns the hasher registered under name ("argon2" or "bcrypt").
func New(name string) (Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "argon2", "argon2id":
		return NewArgon2Hasher(nil), nil
	case "bcrypt":
		return NewBcryptHasher(nil), nil
	default:
		return nil, fmt.Errorf("unknown password hasher %q", name)
	}
}
