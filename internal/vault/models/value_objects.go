package models

import "strings"

// CardType is the card brand submitted to the vault alongside the number.
type CardType string

const (
	CardTypeVisa            CardType = "Visa"
	CardTypeMasterCard      CardType = "MasterCard"
	CardTypeAmericanExpress CardType = "AmericanExpress"
	CardTypeDiscover        CardType = "Discover"
	CardTypeDinersClub      CardType = "DinersClub"
	CardTypeJCB             CardType = "JCB"
)

// cardTypeAliases maps lower-cased spellings seen in caller input to the wire value.
var cardTypeAliases = map[string]CardType{
	"visa":             CardTypeVisa,
	"mastercard":       CardTypeMasterCard,
	"master card":      CardTypeMasterCard,
	"mc":               CardTypeMasterCard,
	"americanexpress":  CardTypeAmericanExpress,
	"american express": CardTypeAmericanExpress,
	"amex":             CardTypeAmericanExpress,
	"discover":         CardTypeDiscover,
	"dinersclub":       CardTypeDinersClub,
	"diners club":      CardTypeDinersClub,
	"diners":           CardTypeDinersClub,
	"jcb":              CardTypeJCB,
}

// ParseCardType resolves a brand name, case-insensitively, to a CardType.
func ParseCardType(s string) (CardType, bool) {
	t, ok := cardTypeAliases[strings.ToLower(strings.TrimSpace(s))]
	return t, ok
}

// IsValid checks if the card type is one of the supported brands in its wire spelling.
func (t CardType) IsValid() bool {
	canonical, ok := cardTypeAliases[strings.ToLower(string(t))]
	return ok && canonical == t
}

func (t CardType) String() string {
	return string(t)
}

// FailureReason is the normalized outcome code of a rejected vault operation.
type FailureReason string

const (
	ReasonValidationFailed       FailureReason = "ValidationFailed"
	ReasonCardNumberInUse        FailureReason = "CardNumberInUse"
	ReasonCreditCardDoesNotExist FailureReason = "CreditCardDoesNotExist"
	ReasonCustomerAlreadyExists  FailureReason = "CustomerAlreadyExists"
	ReasonCustomerDoesNotExist   FailureReason = "CustomerDoesNotExist"
	// ReasonUnknown covers any remote code this client has no mapping for.
	ReasonUnknown FailureReason = "Unknown"
)

// knownReasons is the single source of truth for mapped remote codes.
var knownReasons = map[FailureReason]bool{
	ReasonValidationFailed:       true,
	ReasonCardNumberInUse:        true,
	ReasonCreditCardDoesNotExist: true,
	ReasonCustomerAlreadyExists:  true,
	ReasonCustomerDoesNotExist:   true,
}

// IsKnown reports whether the reason maps to a specific business outcome.
func (r FailureReason) IsKnown() bool {
	return knownReasons[r]
}

func (r FailureReason) String() string {
	return string(r)
}

// FailureSource tells whether a validation failure was produced locally or by the vault.
type FailureSource string

const (
	SourceLocal  FailureSource = "local"
	SourceRemote FailureSource = "remote"
)
