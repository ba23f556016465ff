package transport

import (
	"errors"
	"fmt"
)

// Category is the normalized failure taxonomy for transport errors.
//
// A transport error means the true remote state is unknown or the vault could
// not be asked at all. It is never used for business rejections.
type Category string

const (
	// CategoryTimeout indicates the vault took too long to respond
	CategoryTimeout Category = "timeout"

	// CategoryCanceled indicates the caller canceled the call
	CategoryCanceled Category = "canceled"

	// CategoryUnavailable indicates the vault could not be reached or returned a server error
	CategoryUnavailable Category = "unavailable"

	// CategoryAuthentication indicates the client credentials were rejected
	CategoryAuthentication Category = "authentication"

	// CategoryBadReply indicates the reply could not be read or decoded
	CategoryBadReply Category = "bad_reply"

	// CategoryContractMismatch indicates a decodable reply that breaks the reply contract
	CategoryContractMismatch Category = "contract_mismatch"

	// CategoryRemoteFault indicates the vault answered with a protocol-level fault
	CategoryRemoteFault Category = "remote_fault"

	// CategoryCircuitOpen indicates the call was refused locally after repeated outages
	CategoryCircuitOpen Category = "circuit_open"

	// CategoryInternal indicates an unexpected client-side error
	CategoryInternal Category = "internal"
)

// Sentinel causes, matchable with errors.Is through an *Error.
var (
	ErrMalformedReply = errors.New("malformed vault reply")
	ErrCircuitOpen    = errors.New("vault circuit open")
)

// Error wraps a transport failure with its normalized category.
type Error struct {
	Category   Category
	Operation  Operation
	Message    string
	Underlying error
	Retryable  bool // set from Category (timeout, unavailable → true)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("vault %s [%s]: %s: %v", e.Operation, e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("vault %s [%s]: %s", e.Operation, e.Category, e.Message)
}

// Unwrap supports error unwrapping
func (e *Error) Unwrap() error {
	return e.Underlying
}

// NewError creates a transport error with automatic retry classification.
// Only transient conditions (timeout, unavailable) are retryable; this client
// never retries on its own, the flag is for callers.
func NewError(category Category, op Operation, message string, underlying error) *Error {
	return &Error{
		Category:   category,
		Operation:  op,
		Message:    message,
		Underlying: underlying,
		Retryable:  category == CategoryTimeout || category == CategoryUnavailable,
	}
}

// IsRetryable checks if an error is worth retrying
func IsRetryable(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Retryable
	}
	return false
}

// CategoryOf extracts the category from an error; non-transport errors are internal.
func CategoryOf(err error) Category {
	var te *Error
	if errors.As(err, &te) {
		return te.Category
	}
	return CategoryInternal
}

// Malformed builds the contract-mismatch error for a reply that cannot be
// interpreted without guessing.
func Malformed(op Operation, message string) *Error {
	return NewError(CategoryContractMismatch, op, message, ErrMalformedReply)
}
