package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashCredential hashes a plaintext credential using bcrypt.
func HashCredential(credential string) (string, error) {
	if credential == "" {
		return "", fmt.Errorf("%w: credential is required", ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(credential), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CompareCredential reports whether credential matches hash. Accounts
// without a stored hash never match.
func CompareCredential(hash, credential string) bool {
	if hash == "" || credential == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(credential)) == nil
}
