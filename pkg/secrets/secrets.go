// Package secrets generates and verifies the merchant credentials a vault
// accepts. Only bcrypt hashes are ever kept.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"errors"

	"golang.org/x/crypto/bcrypt"

	dErrors "cardvault/pkg/domain-errors"
)

// Generate creates a random password suitable for a simulator merchant account.
func Generate() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate credential")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash creates a bcrypt hash of password at the default cost.
func Hash(password string) (string, error) {
	return HashWithCost(password, bcrypt.DefaultCost)
}

// HashWithCost is Hash with an explicit bcrypt cost. Tests use bcrypt.MinCost.
func HashWithCost(password string, cost int) (string, error) {
	if password == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "credential cannot be empty")
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "credential is too long")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not hash credential")
	}
	return string(hashed), nil
}

// Verify checks password against a bcrypt hash. A mismatch is CodeUnauthorized.
func Verify(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid credential")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify credential")
	}
	return nil
}
