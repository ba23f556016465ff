// Package interpreter turns raw vault replies into models.Result values.
//
// Business rejections become *models.Failure. A reply that cannot be read
// without guessing (nil, success without its payload, success carrying a
// failure code) is a contract_mismatch transport error instead.
package interpreter

import (
	"strings"

	"cardvault/internal/platform/privacy"
	"cardvault/internal/vault/models"
	"cardvault/internal/vault/transport"
	"cardvault/internal/vault/validation"
)

// RuleRemote marks validation failures reported by the vault.
const RuleRemote = "remote"

// remoteAttributes maps the vault's attribute names onto local field names.
var remoteAttributes = map[string]string{
	"cardaccountnumber": validation.FieldNumber,
	"accountnumber":     validation.FieldNumber,
	"expirationmonth":   validation.FieldExpirationMonth,
	"expirationyear":    validation.FieldExpirationYear,
	"nameoncard":        validation.FieldName,
	"cardtype":          validation.FieldType,
	"token":             validation.FieldToken,
	"friendlyname":      "nickname",
}

// Interpret maps reply for op into exactly one Result. includeCardNumber is
// the caller's intent for retrievals: without it the account number is
// dropped even when the vault sent one.
func Interpret(op transport.Operation, reply *transport.Reply, includeCardNumber bool) (models.Result, error) {
	if reply == nil {
		return nil, transport.Malformed(op, "no reply")
	}
	if !reply.Succeeded {
		return failure(reply), nil
	}
	if reply.FailureReason != "" {
		return nil, transport.Malformed(op, "successful reply carries failure reason "+reply.FailureReason)
	}

	switch op {
	case transport.OpAddStoredCreditCard, transport.OpGetTokenForCardNumber:
		if reply.Token == "" {
			return nil, transport.Malformed(op, "successful reply has no token")
		}
		return &models.Success{Token: reply.Token}, nil
	case transport.OpGetStoredCreditCard:
		if reply.Card == nil {
			return nil, transport.Malformed(op, "successful reply has no card")
		}
		card := storedCard(reply.Card, includeCardNumber)
		if card.Token == "" {
			card.Token = reply.Token
		}
		return &models.Success{Token: card.Token, Card: &card}, nil
	default:
		return &models.Success{Token: reply.Token}, nil
	}
}

// MapReason normalizes a remote failure code. Empty and unmapped codes are
// ReasonUnknown.
func MapReason(code string) models.FailureReason {
	reason := models.FailureReason(strings.TrimSpace(code))
	if reason.IsKnown() {
		return reason
	}
	return models.ReasonUnknown
}

func failure(reply *transport.Reply) *models.Failure {
	f := &models.Failure{
		Reason:    MapReason(reply.FailureReason),
		RawReason: reply.FailureReason,
	}
	for _, raw := range reply.ValidationFailures {
		f.ValidationFailures = append(f.ValidationFailures, models.ValidationFailure{
			Field:   remoteField(raw.AttributeName),
			Rule:    RuleRemote,
			Message: raw.Message,
			Source:  models.SourceRemote,
		})
	}
	return f
}

func remoteField(attribute string) string {
	if field, ok := remoteAttributes[strings.ToLower(strings.TrimSpace(attribute))]; ok {
		return field
	}
	return attribute
}

func storedCard(fields *transport.CardFields, includeCardNumber bool) models.StoredCard {
	cardType, ok := models.ParseCardType(fields.CardType)
	if !ok {
		cardType = models.CardType(fields.CardType)
	}
	card := models.StoredCard{
		Token:           fields.Token,
		CardType:        cardType,
		ExpirationMonth: trimLeadingZeros(fields.ExpirationMonth),
		ExpirationYear:  strings.TrimSpace(fields.ExpirationYear),
		NameOnCard:      fields.NameOnCard,
		FriendlyName:    fields.FriendlyName,
		LastFour:        privacy.LastFour(fields.CardAccountNumber),
	}
	if includeCardNumber && fields.CardAccountNumber != "" {
		card = card.WithAccountNumber(fields.CardAccountNumber)
	}
	return card
}

// trimLeadingZeros renders "08" as "8", the vault's own spelling.
func trimLeadingZeros(s string) string {
	s = strings.TrimSpace(s)
	trimmed := strings.TrimLeft(s, "0")
	if trimmed == "" && s != "" {
		return "0"
	}
	return trimmed
}
