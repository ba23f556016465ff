// Package transport defines the narrow boundary between the vault client and
// the remote vault endpoint. The client only ever sees Transport; the SOAP
// wire format, credentials, and HTTP details live behind it.
package transport

import "context"

// Operation names a remote vault operation.
type Operation string

const (
	OpCreateCustomer         Operation = "CreateCustomer"
	OpAddStoredCreditCard    Operation = "AddStoredCreditCard"
	OpGetStoredCreditCard    Operation = "GetStoredCreditCard"
	OpGetTokenForCardNumber  Operation = "GetTokenForCardNumber"
	OpUpdateStoredCreditCard Operation = "UpdateStoredCreditCard"
)

// Operations lists every supported operation.
var Operations = []Operation{
	OpCreateCustomer,
	OpAddStoredCreditCard,
	OpGetStoredCreditCard,
	OpGetTokenForCardNumber,
	OpUpdateStoredCreditCard,
}

// IsValid checks if the operation is one the vault exposes.
func (o Operation) IsValid() bool {
	for _, op := range Operations {
		if op == o {
			return true
		}
	}
	return false
}

func (o Operation) String() string {
	return string(o)
}

// CardPayload carries card fields for add and update requests.
type CardPayload struct {
	AccountNumber   string
	CardType        string
	ExpirationMonth int
	ExpirationYear  int
	NameOnCard      string
	FriendlyName    string
	Token           string
}

// Request is the operation payload. Which fields are read depends on the operation:
//   - CreateCustomer: CustomerKey, CustomerName
//   - AddStoredCreditCard, UpdateStoredCreditCard: CustomerKey, Card
//   - GetStoredCreditCard: CustomerKey, Token, RetrieveCardNumber
//   - GetTokenForCardNumber: CustomerKey, CardNumber
type Request struct {
	CustomerKey        string
	CustomerName       string
	Card               *CardPayload
	Token              string
	CardNumber         string
	RetrieveCardNumber bool
}

// RawValidationFailure is a validation failure as reported by the vault.
type RawValidationFailure struct {
	AttributeName string
	Message       string
}

// CardFields is the retrieval payload in the vault's own vocabulary.
// Empty CardAccountNumber means the vault did not send one.
type CardFields struct {
	Token             string
	CardType          string
	ExpirationMonth   string
	ExpirationYear    string
	NameOnCard        string
	FriendlyName      string
	CardAccountNumber string
}

// Reply is the undecoded outcome of a vault call.
type Reply struct {
	Succeeded          bool
	FailureReason      string
	ValidationFailures []RawValidationFailure
	Token              string
	Card               *CardFields
}

// Transport performs one remote call per Invoke. Implementations return a
// non-nil Reply whenever the vault answered, including business rejections,
// and an *Error only when no trustworthy answer was obtained.
// Implementations must be safe for concurrent use.
type Transport interface {
	Invoke(ctx context.Context, op Operation, req Request) (*Reply, error)
}
