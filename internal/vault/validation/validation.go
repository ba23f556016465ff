// Package validation checks card data before it is sent to the vault.
//
// Every check runs independently so a caller sees all problems with a card at
// once. Passing validation does not mean the vault will accept the card:
// duplicate numbers, for one, are only detected remotely.
package validation

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"cardvault/internal/vault/models"
)

// Rules reported in ValidationFailure.Rule.
const (
	RuleRequired       = "required"
	RuleDigits         = "digits"
	RuleLength         = "length"
	RuleLuhn           = "luhn"
	RuleRange          = "range"
	RuleExpired        = "expired"
	RuleUnsupported    = "unsupported"
	RuleIssuerMismatch = "issuer_mismatch"
)

// Field names reported in ValidationFailure.Field, matching the vault's vocabulary.
const (
	FieldNumber          = "number"
	FieldExpirationMonth = "expiration_month"
	FieldExpirationYear  = "expiration_year"
	FieldName            = "name"
	FieldType            = "type"
	FieldToken           = "token"
)

var structFields = map[string]string{
	"Number":          FieldNumber,
	"ExpirationMonth": FieldExpirationMonth,
	"ExpirationYear":  FieldExpirationYear,
	"Name":            FieldName,
	"Type":            FieldType,
}

var defaultValidator = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("notblank", func(fl validator.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})
	_ = v.RegisterValidation("digits", func(fl validator.FieldLevel) bool {
		return isDigits(fl.Field().String())
	})
	_ = v.RegisterValidation("luhn", func(fl validator.FieldLevel) bool {
		return Luhn(fl.Field().String())
	})
	return v
}

// Validate runs every local check against card and returns the failures in
// field order. now is the call time used for the expiration check.
func Validate(card models.CreditCard, now time.Time) []models.ValidationFailure {
	failures := structFailures(card)
	failed := make(map[string]bool, len(failures))
	for _, f := range failures {
		failed[f.Field] = true
	}

	if !failed[FieldType] && !card.Type.IsValid() {
		failures = append(failures, failure(FieldType, RuleUnsupported,
			fmt.Sprintf("card type %q is not supported", card.Type)))
		failed[FieldType] = true
	}

	if !failed[FieldExpirationMonth] && !failed[FieldExpirationYear] {
		if f, expired := expirationFailure(card.ExpirationMonth, card.ExpirationYear, now); expired {
			failures = append(failures, f)
		}
	}

	if !failed[FieldNumber] && !failed[FieldType] && !MatchesIssuer(card.Type, card.Number) {
		failures = append(failures, failure(FieldType, RuleIssuerMismatch, issuerMismatchMessage(card)))
	}

	return failures
}

// ValidateForUpdate checks a card that is about to replace a stored one. The
// token must be set; the remaining checks are the same as for a new card.
func ValidateForUpdate(card models.CreditCard, now time.Time) []models.ValidationFailure {
	var failures []models.ValidationFailure
	if !card.IsStored() {
		failures = append(failures, failure(FieldToken, RuleRequired, "token is required to update a stored card"))
	}
	return append(failures, Validate(card, now)...)
}

func issuerMismatchMessage(card models.CreditCard) string {
	if detected, ok := Detect(card.Number); ok {
		return fmt.Sprintf("card number looks like %s, not %s", detected, card.Type)
	}
	return fmt.Sprintf("card number does not match card type %s", card.Type)
}

func structFailures(card models.CreditCard) []models.ValidationFailure {
	err := defaultValidator.Struct(card)
	if err == nil {
		return nil
	}
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return []models.ValidationFailure{failure(FieldNumber, RuleRequired, "card could not be validated")}
	}
	failures := make([]models.ValidationFailure, 0, len(validationErrs))
	for _, fe := range validationErrs {
		failures = append(failures, fieldFailure(fe))
	}
	return failures
}

func fieldFailure(fe validator.FieldError) models.ValidationFailure {
	field, ok := structFields[fe.StructField()]
	if !ok {
		field = strings.ToLower(fe.StructField())
	}

	switch fe.ActualTag() {
	case "required", "notblank":
		return failure(field, RuleRequired, fmt.Sprintf("%s is required", field))
	case "digits":
		return failure(field, RuleDigits, fmt.Sprintf("%s must contain only digits", field))
	case "luhn":
		return failure(field, RuleLuhn, fmt.Sprintf("%s fails the checksum", field))
	case "min", "max":
		if field == FieldNumber {
			return failure(field, RuleLength, fmt.Sprintf("%s must be 12 to 19 digits", field))
		}
		if field == FieldExpirationYear {
			return failure(field, RuleRange, fmt.Sprintf("%s must be a four-digit year", field))
		}
		return failure(field, RuleRange, fmt.Sprintf("%s must be between 1 and 12", field))
	default:
		return failure(field, fe.ActualTag(), fmt.Sprintf("%s is invalid", field))
	}
}

func expirationFailure(month, year int, now time.Time) (models.ValidationFailure, bool) {
	switch {
	case year < now.Year():
		return failure(FieldExpirationYear, RuleExpired, fmt.Sprintf("expiration year %d is in the past", year)), true
	case year == now.Year() && month < int(now.Month()):
		return failure(FieldExpirationMonth, RuleExpired, fmt.Sprintf("card expired in %02d/%d", month, year)), true
	}
	return models.ValidationFailure{}, false
}

func failure(field, rule, msg string) models.ValidationFailure {
	return models.ValidationFailure{
		Field:   field,
		Rule:    rule,
		Message: msg,
		Source:  models.SourceLocal,
	}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Luhn reports whether number is all digits and passes the mod-10 checksum.
func Luhn(number string) bool {
	if !isDigits(number) {
		return false
	}
	var sum int
	shouldDouble := false
	for i := len(number) - 1; i >= 0; i-- {
		digit := int(number[i] - '0')
		if shouldDouble {
			digit *= 2
			if digit > 9 {
				digit -= 9
			}
		}
		sum += digit
		shouldDouble = !shouldDouble
	}
	return sum%10 == 0
}
