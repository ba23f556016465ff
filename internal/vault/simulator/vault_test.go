package simulator

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"cardvault/internal/vault/models"
	"cardvault/internal/vault/transport"
	dErrors "cardvault/pkg/domain-errors"
)

const visaNumber = "4111111111111111"

var fixedNow = time.Date(2026, time.October, 15, 12, 0, 0, 0, time.UTC)

func newVault(t *testing.T, opts ...Option) *Vault {
	t.Helper()
	opts = append([]Option{
		WithClock(func() time.Time { return fixedNow }),
		WithHashCost(bcrypt.MinCost),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, opts...)
	return New(opts...)
}

func visaPayload() *transport.CardPayload {
	return &transport.CardPayload{
		AccountNumber:   visaNumber,
		CardType:        "Visa",
		ExpirationMonth: 8,
		ExpirationYear:  2028,
		NameOnCard:      "Joe Customer",
		FriendlyName:    "Test Visa, Yo.",
	}
}

func invoke(t *testing.T, v *Vault, op transport.Operation, req transport.Request) *transport.Reply {
	t.Helper()
	reply, err := v.Invoke(context.Background(), op, req)
	require.NoError(t, err)
	require.NotNil(t, reply)
	return reply
}

func createCustomer(t *testing.T, v *Vault, key string) {
	t.Helper()
	reply := invoke(t, v, transport.OpCreateCustomer, transport.Request{CustomerKey: key, CustomerName: key})
	require.True(t, reply.Succeeded)
}

func addVisa(t *testing.T, v *Vault, key string) string {
	t.Helper()
	reply := invoke(t, v, transport.OpAddStoredCreditCard, transport.Request{CustomerKey: key, Card: visaPayload()})
	require.True(t, reply.Succeeded)
	return reply.Token
}

func TestCreateCustomer(t *testing.T) {
	v := newVault(t)

	first := invoke(t, v, transport.OpCreateCustomer, transport.Request{CustomerKey: "joe", CustomerName: "Joe"})
	assert.True(t, first.Succeeded)

	second := invoke(t, v, transport.OpCreateCustomer, transport.Request{CustomerKey: "joe", CustomerName: "Joe"})
	assert.False(t, second.Succeeded)
	assert.Equal(t, string(models.ReasonCustomerAlreadyExists), second.FailureReason)

	blank := invoke(t, v, transport.OpCreateCustomer, transport.Request{})
	assert.Equal(t, string(models.ReasonValidationFailed), blank.FailureReason)
	assert.Equal(t, 3, v.Calls(transport.OpCreateCustomer))
}

func TestAddStoredCreditCard(t *testing.T) {
	t.Run("issues token then rejects duplicate", func(t *testing.T) {
		v := newVault(t)
		createCustomer(t, v, "joe")
		token := addVisa(t, v, "joe")
		assert.NotEmpty(t, token)

		dup := invoke(t, v, transport.OpAddStoredCreditCard, transport.Request{CustomerKey: "joe", Card: visaPayload()})
		assert.False(t, dup.Succeeded)
		assert.Equal(t, string(models.ReasonCardNumberInUse), dup.FailureReason)
		assert.Empty(t, dup.ValidationFailures)
	})

	t.Run("unknown customer", func(t *testing.T) {
		v := newVault(t)
		reply := invoke(t, v, transport.OpAddStoredCreditCard, transport.Request{CustomerKey: "ghost", Card: visaPayload()})
		assert.Equal(t, string(models.ReasonCustomerDoesNotExist), reply.FailureReason)
	})

	t.Run("server side validation", func(t *testing.T) {
		v := newVault(t)
		createCustomer(t, v, "joe")
		card := visaPayload()
		card.CardType = "MasterCard"

		reply := invoke(t, v, transport.OpAddStoredCreditCard, transport.Request{CustomerKey: "joe", Card: card})
		assert.Equal(t, string(models.ReasonValidationFailed), reply.FailureReason)
		require.NotEmpty(t, reply.ValidationFailures)
		assert.Equal(t, "CardType", reply.ValidationFailures[0].AttributeName)
	})

	t.Run("per customer uniqueness by default", func(t *testing.T) {
		v := newVault(t)
		createCustomer(t, v, "joe")
		createCustomer(t, v, "ann")
		addVisa(t, v, "joe")
		addVisa(t, v, "ann")
	})

	t.Run("global uniqueness", func(t *testing.T) {
		v := newVault(t, WithGlobalCardUniqueness())
		createCustomer(t, v, "joe")
		createCustomer(t, v, "ann")
		addVisa(t, v, "joe")

		reply := invoke(t, v, transport.OpAddStoredCreditCard, transport.Request{CustomerKey: "ann", Card: visaPayload()})
		assert.Equal(t, string(models.ReasonCardNumberInUse), reply.FailureReason)
	})
}

func TestAddStoredCreditCard_ConcurrentDuplicates(t *testing.T) {
	v := newVault(t)
	createCustomer(t, v, "joe")

	var succeeded, inUse atomic.Int32
	g, ctx := errgroup.WithContext(context.Background())
	for i := 0; i < 16; i++ {
		g.Go(func() error {
			reply, err := v.Invoke(ctx, transport.OpAddStoredCreditCard, transport.Request{CustomerKey: "joe", Card: visaPayload()})
			if err != nil {
				return err
			}
			switch {
			case reply.Succeeded:
				succeeded.Add(1)
			case reply.FailureReason == string(models.ReasonCardNumberInUse):
				inUse.Add(1)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), succeeded.Load())
	assert.Equal(t, int32(15), inUse.Load())
}

func TestGetStoredCreditCard(t *testing.T) {
	v := newVault(t)
	createCustomer(t, v, "joe")
	createCustomer(t, v, "ann")
	token := addVisa(t, v, "joe")

	t.Run("redacts number by default", func(t *testing.T) {
		reply := invoke(t, v, transport.OpGetStoredCreditCard, transport.Request{CustomerKey: "joe", Token: token})
		require.True(t, reply.Succeeded)
		require.NotNil(t, reply.Card)
		assert.Empty(t, reply.Card.CardAccountNumber)
		assert.Equal(t, "8", reply.Card.ExpirationMonth)
		assert.Equal(t, "2028", reply.Card.ExpirationYear)
		assert.Equal(t, "Test Visa, Yo.", reply.Card.FriendlyName)
	})

	t.Run("returns number on request", func(t *testing.T) {
		reply := invoke(t, v, transport.OpGetStoredCreditCard, transport.Request{CustomerKey: "joe", Token: token, RetrieveCardNumber: true})
		assert.Equal(t, visaNumber, reply.Card.CardAccountNumber)
	})

	t.Run("other customer's token", func(t *testing.T) {
		reply := invoke(t, v, transport.OpGetStoredCreditCard, transport.Request{CustomerKey: "ann", Token: token})
		assert.Equal(t, string(models.ReasonCreditCardDoesNotExist), reply.FailureReason)
	})

	t.Run("leaky redaction", func(t *testing.T) {
		leaky := newVault(t, WithLeakyRedaction())
		createCustomer(t, leaky, "joe")
		tok := addVisa(t, leaky, "joe")
		reply := invoke(t, leaky, transport.OpGetStoredCreditCard, transport.Request{CustomerKey: "joe", Token: tok})
		assert.Equal(t, visaNumber, reply.Card.CardAccountNumber)
	})
}

func TestGetTokenForCardNumber(t *testing.T) {
	v := newVault(t, WithGlobalCardUniqueness())
	createCustomer(t, v, "joe")
	createCustomer(t, v, "ann")
	token := addVisa(t, v, "joe")

	reply := invoke(t, v, transport.OpGetTokenForCardNumber, transport.Request{CustomerKey: "joe", CardNumber: visaNumber})
	assert.True(t, reply.Succeeded)
	assert.Equal(t, token, reply.Token)

	other := invoke(t, v, transport.OpGetTokenForCardNumber, transport.Request{CustomerKey: "ann", CardNumber: visaNumber})
	assert.Equal(t, string(models.ReasonCreditCardDoesNotExist), other.FailureReason)

	missing := invoke(t, v, transport.OpGetTokenForCardNumber, transport.Request{CustomerKey: "joe", CardNumber: "5555555555554444"})
	assert.Equal(t, string(models.ReasonCreditCardDoesNotExist), missing.FailureReason)
}

func TestUpdateStoredCreditCard(t *testing.T) {
	v := newVault(t)
	createCustomer(t, v, "joe")
	token := addVisa(t, v, "joe")

	t.Run("changes mutable fields only", func(t *testing.T) {
		card := visaPayload()
		card.Token = token
		card.ExpirationMonth = 9
		card.ExpirationYear = 2031
		card.NameOnCard = "Joseph"
		card.FriendlyName = "travel"

		reply := invoke(t, v, transport.OpUpdateStoredCreditCard, transport.Request{CustomerKey: "joe", Card: card})
		require.True(t, reply.Succeeded)

		got := invoke(t, v, transport.OpGetStoredCreditCard, transport.Request{CustomerKey: "joe", Token: token, RetrieveCardNumber: true})
		assert.Equal(t, "9", got.Card.ExpirationMonth)
		assert.Equal(t, "2031", got.Card.ExpirationYear)
		assert.Equal(t, "Joseph", got.Card.NameOnCard)
		assert.Equal(t, "travel", got.Card.FriendlyName)
		assert.Equal(t, token, got.Card.Token)
		assert.Equal(t, visaNumber, got.Card.CardAccountNumber)
	})

	t.Run("number cannot change", func(t *testing.T) {
		card := visaPayload()
		card.Token = token
		card.AccountNumber = "4012888888881881"

		reply := invoke(t, v, transport.OpUpdateStoredCreditCard, transport.Request{CustomerKey: "joe", Card: card})
		assert.Equal(t, string(models.ReasonValidationFailed), reply.FailureReason)
		require.Len(t, reply.ValidationFailures, 1)
		assert.Equal(t, "CardAccountNumber", reply.ValidationFailures[0].AttributeName)
	})

	t.Run("unknown token", func(t *testing.T) {
		card := visaPayload()
		card.Token = "nope"
		reply := invoke(t, v, transport.OpUpdateStoredCreditCard, transport.Request{CustomerKey: "joe", Card: card})
		assert.Equal(t, string(models.ReasonCreditCardDoesNotExist), reply.FailureReason)
	})
}

func TestInvoke_CanceledContext(t *testing.T) {
	v := newVault(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := v.Invoke(ctx, transport.OpCreateCustomer, transport.Request{CustomerKey: "joe"})
	assert.Equal(t, transport.CategoryCanceled, transport.CategoryOf(err))
	assert.Zero(t, v.TotalCalls())
}

func TestAuthenticate(t *testing.T) {
	v := newVault(t)
	assert.NoError(t, v.Authenticate("anyone", "any", "thing"), "open until a merchant is registered")

	require.NoError(t, v.RegisterMerchant("client-1", "merchant", "secret"))
	assert.NoError(t, v.Authenticate("client-1", "merchant", "secret"))
	assert.True(t, dErrors.HasCode(v.Authenticate("client-1", "merchant", "wrong"), dErrors.CodeUnauthorized))
	assert.True(t, dErrors.HasCode(v.Authenticate("client-2", "merchant", "secret"), dErrors.CodeUnauthorized))

	assert.True(t, dErrors.HasCode(v.RegisterMerchant("", "x", "y"), dErrors.CodeInvalidInput))
}
