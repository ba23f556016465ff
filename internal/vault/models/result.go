package models

import "fmt"

// ValidationFailure is a single field-level violation.
type ValidationFailure struct {
	Field   string
	Rule    string
	Message string
	Source  FailureSource
}

func (f ValidationFailure) String() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// Result is the outcome of a vault operation. It is either *Success or
// *Failure; use a type switch to read variant fields.
type Result interface {
	Succeeded() bool
	isResult()
}

// Success is returned when the vault accepted the operation. Token is set for
// operations that issue or resolve a token; Card is set for retrievals.
type Success struct {
	Token string
	Card  *StoredCard
}

func (*Success) Succeeded() bool { return true }
func (*Success) isResult()       {}

// Failure is returned for business-rule rejections. RawReason keeps the
// remote code verbatim, which matters when Reason is ReasonUnknown.
type Failure struct {
	Reason             FailureReason
	RawReason          string
	ValidationFailures []ValidationFailure
}

func (*Failure) Succeeded() bool { return false }
func (*Failure) isResult()       {}

// NewValidationFailure builds the result for locally rejected input.
func NewValidationFailure(failures []ValidationFailure) *Failure {
	return &Failure{
		Reason:             ReasonValidationFailed,
		RawReason:          string(ReasonValidationFailed),
		ValidationFailures: failures,
	}
}

// ReasonOf returns the failure reason of r, or "" when r succeeded.
func ReasonOf(r Result) FailureReason {
	if f, ok := r.(*Failure); ok {
		return f.Reason
	}
	return ""
}

// TokenOf returns the token carried by a successful result, or "".
func TokenOf(r Result) string {
	if s, ok := r.(*Success); ok {
		return s.Token
	}
	return ""
}

// Verify interfaces are satisfied.
var (
	_ Result = (*Success)(nil)
	_ Result = (*Failure)(nil)
)
