package models

import (
	"strconv"
	"strings"
)

// CreditCard is the caller-side view of a card. Token is empty until the
// vault has stored the card; after that it never changes, and neither does Number.
type CreditCard struct {
	Number          string   `validate:"required,digits,min=12,max=19,luhn"`
	ExpirationMonth int      `validate:"min=1,max=12"`
	ExpirationYear  int      `validate:"min=1000,max=9999"`
	Name            string   `validate:"notblank"`
	Type            CardType `validate:"required"`
	Nickname        string
	Token           string
}

// IsStored reports whether the vault has issued a token for the card.
func (c *CreditCard) IsStored() bool {
	return c != nil && strings.TrimSpace(c.Token) != ""
}

// StoredCard is the card as returned by the vault on retrieval.
// The full account number is only reachable through AccountNumber and only
// when it was explicitly requested.
type StoredCard struct {
	Token           string
	CardType        CardType
	ExpirationMonth string
	ExpirationYear  string
	NameOnCard      string
	FriendlyName    string
	LastFour        string

	accountNumber    string
	hasAccountNumber bool
}

// WithAccountNumber returns a copy of the card carrying the unmasked number.
func (c StoredCard) WithAccountNumber(number string) StoredCard {
	c.accountNumber = number
	c.hasAccountNumber = true
	return c
}

// AccountNumber returns the unmasked number and whether it is present.
func (c *StoredCard) AccountNumber() (string, bool) {
	if c == nil || !c.hasAccountNumber {
		return "", false
	}
	return c.accountNumber, true
}

// Month parses ExpirationMonth; zero when the vault sent something unparseable.
func (c *StoredCard) Month() int {
	m, _ := strconv.Atoi(c.ExpirationMonth)
	return m
}

// Year parses ExpirationYear; zero when the vault sent something unparseable.
func (c *StoredCard) Year() int {
	y, _ := strconv.Atoi(c.ExpirationYear)
	return y
}

// Field keys of the retrieval mapping.
const (
	FieldExpirationMonth   = "expiration_month"
	FieldExpirationYear    = "expiration_year"
	FieldNameOnCard        = "name_on_card"
	FieldFriendlyName      = "friendly_name"
	FieldToken             = "token"
	FieldCardType          = "card_type"
	FieldCardAccountNumber = "card_account_number"
)

// Fields renders the card as a flat mapping. card_account_number is only
// present when the number was requested.
func (c *StoredCard) Fields() map[string]string {
	if c == nil {
		return nil
	}
	fields := map[string]string{
		FieldExpirationMonth: c.ExpirationMonth,
		FieldExpirationYear:  c.ExpirationYear,
		FieldNameOnCard:      c.NameOnCard,
		FieldFriendlyName:    c.FriendlyName,
		FieldToken:           c.Token,
	}
	if c.CardType != "" {
		fields[FieldCardType] = string(c.CardType)
	}
	if number, ok := c.AccountNumber(); ok {
		fields[FieldCardAccountNumber] = number
	}
	return fields
}
