package main

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"cardvault/internal/vault/client"
	"cardvault/internal/vault/models"
)

type usageError string

func (e usageError) Error() string { return string(e) }

// execFunc runs a parsed command against the client.
type execFunc func(ctx context.Context, c *client.Client) (models.Result, error)

// command registers its flags on fs and returns how to execute once parsed.
type command func(fs *flag.FlagSet) execFunc

var commands = map[string]command{
	"create-customer": createCustomerCmd,
	"add-card":        addCardCmd,
	"get-card":        getCardCmd,
	"find-token":      findTokenCmd,
	"update-card":     updateCardCmd,
}

func createCustomerCmd(fs *flag.FlagSet) execFunc {
	name := fs.String("name", "", "Customer name (required)")
	key := fs.String("key", "", "Vault key. Generated if empty.")
	return func(ctx context.Context, c *client.Client) (models.Result, error) {
		customer, err := models.NewCustomer(*name)
		if err != nil {
			return nil, usageError("-name is required")
		}
		if *key != "" {
			customer.VaultKey = *key
		}
		return c.CreateCustomer(ctx, customer)
	}
}

type cardFlags struct {
	number   *string
	cardType *string
	month    *int
	year     *int
	holder   *string
	nickname *string
}

func registerCardFlags(fs *flag.FlagSet) cardFlags {
	return cardFlags{
		number:   fs.String("number", "", "Card account number"),
		cardType: fs.String("type", "", "Card brand (visa, mastercard, amex, discover, diners, jcb)"),
		month:    fs.Int("month", 0, "Expiration month (1-12)"),
		year:     fs.Int("year", 0, "Expiration year (4 digits)"),
		holder:   fs.String("holder", "", "Name on card"),
		nickname: fs.String("nickname", "", "Friendly name for the card"),
	}
}

func (f cardFlags) card() models.CreditCard {
	cardType, ok := models.ParseCardType(*f.cardType)
	if !ok {
		cardType = models.CardType(strings.TrimSpace(*f.cardType))
	}
	return models.CreditCard{
		Number:          strings.TrimSpace(*f.number),
		ExpirationMonth: *f.month,
		ExpirationYear:  *f.year,
		Name:            *f.holder,
		Type:            cardType,
		Nickname:        *f.nickname,
	}
}

func customerFlag(fs *flag.FlagSet) *string {
	return fs.String("customer", "", "Customer vault key (required)")
}

func customerFor(key string) (*models.Customer, error) {
	if strings.TrimSpace(key) == "" {
		return nil, usageError("-customer is required")
	}
	return &models.Customer{VaultKey: key}, nil
}

func addCardCmd(fs *flag.FlagSet) execFunc {
	key := customerFlag(fs)
	card := registerCardFlags(fs)
	return func(ctx context.Context, c *client.Client) (models.Result, error) {
		customer, err := customerFor(*key)
		if err != nil {
			return nil, err
		}
		return c.AddStoredCreditCard(ctx, customer, card.card())
	}
}

func getCardCmd(fs *flag.FlagSet) execFunc {
	key := customerFlag(fs)
	token := fs.String("token", "", "Card token (required)")
	include := fs.Bool("include-number", false, "Include the unmasked card number")
	return func(ctx context.Context, c *client.Client) (models.Result, error) {
		customer, err := customerFor(*key)
		if err != nil {
			return nil, err
		}
		return c.GetStoredCreditCard(ctx, customer, *token, *include)
	}
}

func findTokenCmd(fs *flag.FlagSet) execFunc {
	key := customerFlag(fs)
	number := fs.String("number", "", "Card account number (required)")
	return func(ctx context.Context, c *client.Client) (models.Result, error) {
		customer, err := customerFor(*key)
		if err != nil {
			return nil, err
		}
		return c.GetTokenForCardNumber(ctx, *number, customer)
	}
}

func updateCardCmd(fs *flag.FlagSet) execFunc {
	key := customerFlag(fs)
	token := fs.String("token", "", "Token of the stored card (required)")
	card := registerCardFlags(fs)
	return func(ctx context.Context, c *client.Client) (models.Result, error) {
		customer, err := customerFor(*key)
		if err != nil {
			return nil, err
		}
		updated := card.card()
		updated.Token = *token
		return c.UpdateStoredCreditCard(ctx, customer, updated)
	}
}

type failureOutput struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
	Source  string `json:"source"`
}

type resultOutput struct {
	Success            bool              `json:"success"`
	Token              string            `json:"token,omitempty"`
	FailureReason      string            `json:"failure_reason,omitempty"`
	RawReason          string            `json:"raw_reason,omitempty"`
	ValidationFailures []failureOutput   `json:"validation_failures,omitempty"`
	CreditCard         map[string]string `json:"credit_card,omitempty"`
}

func render(result models.Result) resultOutput {
	switch r := result.(type) {
	case *models.Success:
		return resultOutput{
			Success:    true,
			Token:      r.Token,
			CreditCard: r.Card.Fields(),
		}
	case *models.Failure:
		out := resultOutput{
			FailureReason: r.Reason.String(),
			RawReason:     r.RawReason,
		}
		for _, f := range r.ValidationFailures {
			out.ValidationFailures = append(out.ValidationFailures, failureOutput{
				Field:   f.Field,
				Rule:    f.Rule,
				Message: f.Message,
				Source:  string(f.Source),
			})
		}
		return out
	default:
		panic(fmt.Sprintf("unexpected result type %T", result))
	}
}
