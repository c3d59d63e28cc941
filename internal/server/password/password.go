// Package password hashes and verifies user passwords with bcrypt.
package password

import (
	"golang.org/x/crypto/bcrypt"
)

// BcryptHasher produces salted bcrypt verifiers with a fixed cost.
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher constructs a hasher with the given cost. Costs outside
// the bcrypt range fall back to bcrypt.DefaultCost.
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash returns the storable verifier for plaintext.
func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plaintext matches the stored verifier.
// A mismatch is not an error, it simply returns false.
func (h *BcryptHasher) Verify(plaintext, verifier string) bool {
	return bcrypt.CompareHashAndPassword([]byte(verifier), []byte(plaintext)) == nil
}
