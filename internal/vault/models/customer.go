package models

import (
	"strings"

	"github.com/google/uuid"

	dErrors "cardvault/pkg/domain-errors"
)

// Customer is a vault customer. VaultKey is the identity the vault enforces
// at-most-once creation on; Name is informational.
type Customer struct {
	Name     string
	VaultKey string
}

// NewCustomer builds a customer with a freshly generated vault key.
func NewCustomer(name string) (*Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "customer name required")
	}
	return &Customer{
		Name:     name,
		VaultKey: strings.ReplaceAll(uuid.NewString(), "-", ""),
	}, nil
}

// Validate checks the fields every vault request needs from a customer.
func (c *Customer) Validate() error {
	if c == nil {
		return dErrors.New(dErrors.CodeInvalidInput, "customer required")
	}
	if strings.TrimSpace(c.VaultKey) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "customer vault key required")
	}
	return nil
}
