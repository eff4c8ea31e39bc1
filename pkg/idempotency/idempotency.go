// Package idempotency validates the shape of caller-supplied idempotency
// keys before they ever reach the database's uniqueness constraint.
package idempotency

import (
	"errors"
	"unicode"
)

// ErrInvalidKey is returned when a key is empty, too long, or contains
// characters outside the allowed set.
var ErrInvalidKey = errors.New("idempotency: invalid key")

const maxKeyLength = 255

// Validate checks that key is a non-empty, reasonably sized, printable
// token. It does not check uniqueness -- that is enforced by the
// authorization and ledger stores' unique constraints.
func Validate(key string) error {
	if key == "" {
		return ErrInvalidKey
	}
	if len(key) > maxKeyLength {
		return ErrInvalidKey
	}
	for _, r := range key {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return ErrInvalidKey
		}
	}
	return nil
}
