// Package tracer provides a lightweight tracing abstraction for vault calls.
//
// The client depends on Tracer only, so OpenTelemetry stays out of the
// orchestration code. Card numbers never appear in span attributes; use
// privacy.HashPAN when a lookup needs to be correlated across spans.
//
// Implementations:
//   - NoopTracer: for tests and callers without tracing
//   - OTelTracer: OpenTelemetry adapter
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks it as failed.
	// End must be called exactly once, typically via defer.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span; the returned context carries it.
	//
	// Example:
	//   ctx, span := tr.Start(ctx, tracer.SpanAddStoredCreditCard,
	//       tracer.String(tracer.AttrCustomerKey, customer.VaultKey),
	//   )
	//   defer span.End(nil)
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

// String creates a string attribute.
func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

// Bool creates a boolean attribute.
func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

// Int64 creates an int64 attribute.
func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names, one per vault operation.
const (
	SpanCreateCustomer         = "vault.create_customer"
	SpanAddStoredCreditCard    = "vault.add_stored_credit_card"
	SpanGetStoredCreditCard    = "vault.get_stored_credit_card"
	SpanGetTokenForCardNumber  = "vault.get_token_for_card_number"
	SpanUpdateStoredCreditCard = "vault.update_stored_credit_card"
)

// Attribute keys.
const (
	AttrCustomerKey       = "vault.customer_key"
	AttrCardType          = "vault.card_type"
	AttrCardHash          = "vault.card_hash"
	AttrToken             = "vault.token"
	AttrIncludeCardNumber = "vault.include_card_number"
	AttrOutcome           = "vault.outcome"
	AttrFailureReason     = "vault.failure_reason"
	AttrErrorCategory     = "vault.error_category"
	AttrLocalFailures     = "vault.local_validation_failures"
)

// Event names.
const (
	EventLocallyRejected = "validation.rejected"
)
