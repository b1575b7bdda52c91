// Package operatorkey gates the batch operations that move money across
// many wallets without a single owning player — process-winnings,
// rollback-hand, collect-rake — behind a shared operator secret, the
// same bcrypt primitive the teacher uses for user password hashing
// (internal/auth.HashPassword/VerifyPassword), repurposed here for a
// service credential since end-user registration is out of scope.
package operatorkey

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// Hash produces a bcrypt hash of the operator secret, for seeding
// WALLET_OPERATOR_KEY_HASH at deployment time.
func Hash(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("operator secret must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash operator secret: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether presented matches the configured bcrypt hash.
// An empty configured hash means the operator gate is disabled (local
// development); Verify returns true in that case.
func Verify(configuredHash, presented string) bool {
	if configuredHash == "" {
		return true
	}
	if presented == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(configuredHash), []byte(presented)) == nil
}
