package client

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/mock/gomock"

	"cardvault/internal/vault/metrics"
	"cardvault/internal/vault/models"
	"cardvault/internal/vault/transport"
	"cardvault/internal/vault/validation"
	dErrors "cardvault/pkg/domain-errors"
)

func (s *ServiceSuite) TestNew() {
	s.Run("rejects missing wsdl", func() {
		_, err := New(" ", s.mockTransport)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfig))
	})

	s.Run("rejects missing transport", func() {
		_, err := New(testWSDL, nil)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidConfig))
	})

	s.Run("exposes wsdl", func() {
		s.Equal(testWSDL, s.client.WSDL())
	})
}

func (s *ServiceSuite) TestCreateCustomer() {
	ctx := context.Background()

	s.Run("sends vault key and name", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpCreateCustomer, transport.Request{
				CustomerKey:  "cust-joe",
				CustomerName: "Joe",
			}).
			Return(&transport.Reply{Succeeded: true}, nil)

		res, err := s.client.CreateCustomer(ctx, s.customer)
		s.Require().NoError(err)
		s.True(res.Succeeded())
	})

	s.Run("duplicate customer is a failure result", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpCreateCustomer, gomock.Any()).
			Return(&transport.Reply{FailureReason: "CustomerAlreadyExists"}, nil)

		res, err := s.client.CreateCustomer(ctx, s.customer)
		s.Require().NoError(err)
		s.False(res.Succeeded())
		s.Equal(models.ReasonCustomerAlreadyExists, models.ReasonOf(res))
	})

	s.Run("nil customer never reaches the vault", func() {
		res, err := s.client.CreateCustomer(ctx, nil)
		s.Nil(res)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestAddStoredCreditCard() {
	ctx := context.Background()

	s.Run("maps card onto the request", func() {
		card := goodVisa()
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpAddStoredCreditCard, transport.Request{
				CustomerKey: "cust-joe",
				Card: &transport.CardPayload{
					AccountNumber:   visaNumber,
					CardType:        "Visa",
					ExpirationMonth: 8,
					ExpirationYear:  2028,
					NameOnCard:      "Joe Customer",
					FriendlyName:    "Test Visa, Yo.",
				},
			}).
			Return(&transport.Reply{Succeeded: true, Token: "tok-1"}, nil)

		res, err := s.client.AddStoredCreditCard(ctx, s.customer, card)
		s.Require().NoError(err)
		s.True(res.Succeeded())
		s.Equal("tok-1", models.TokenOf(res))
	})

	s.Run("duplicate number", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpAddStoredCreditCard, gomock.Any()).
			Return(&transport.Reply{FailureReason: "CardNumberInUse"}, nil)

		res, err := s.client.AddStoredCreditCard(ctx, s.customer, goodVisa())
		s.Require().NoError(err)
		failure, ok := res.(*models.Failure)
		s.Require().True(ok)
		s.Equal(models.ReasonCardNumberInUse, failure.Reason)
		s.Empty(failure.ValidationFailures)
	})

	s.Run("invalid card is rejected locally without a remote call", func() {
		card := goodVisa()
		card.ExpirationYear = 2020
		card.Type = models.CardTypeMasterCard
		// no EXPECT: any Invoke fails the test

		res, err := s.client.AddStoredCreditCard(ctx, s.customer, card)
		s.Require().NoError(err)
		failure, ok := res.(*models.Failure)
		s.Require().True(ok)
		s.Equal(models.ReasonValidationFailed, failure.Reason)
		s.GreaterOrEqual(len(failure.ValidationFailures), 2)
		for _, vf := range failure.ValidationFailures {
			s.Equal(models.SourceLocal, vf.Source)
		}
		s.Equal(1.0, testutil.ToFloat64(
			s.metrics.RequestsTotal.WithLabelValues(string(transport.OpAddStoredCreditCard), metrics.OutcomeRejectedLocally)))
	})

	s.Run("transport error propagates", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpAddStoredCreditCard, gomock.Any()).
			Return(nil, transport.NewError(transport.CategoryTimeout, transport.OpAddStoredCreditCard, "request timeout", context.DeadlineExceeded))

		res, err := s.client.AddStoredCreditCard(ctx, s.customer, goodVisa())
		s.Nil(res)
		s.Equal(transport.CategoryTimeout, transport.CategoryOf(err))
		s.True(transport.IsRetryable(err))
		s.Equal(1.0, testutil.ToFloat64(
			s.metrics.TransportErrorsTotal.WithLabelValues(string(transport.OpAddStoredCreditCard), string(transport.CategoryTimeout))))
	})

	s.Run("plain transport errors are categorized", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpAddStoredCreditCard, gomock.Any()).
			Return(nil, context.Canceled)

		_, err := s.client.AddStoredCreditCard(ctx, s.customer, goodVisa())
		s.Equal(transport.CategoryCanceled, transport.CategoryOf(err))
		s.True(errors.Is(err, context.Canceled))
	})

	s.Run("success without token is malformed", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpAddStoredCreditCard, gomock.Any()).
			Return(&transport.Reply{Succeeded: true}, nil)

		res, err := s.client.AddStoredCreditCard(ctx, s.customer, goodVisa())
		s.Nil(res)
		s.ErrorIs(err, transport.ErrMalformedReply)
	})
}

func (s *ServiceSuite) TestRegisterCustomer() {
	ctx := context.Background()

	s.Run("returns the created customer", func() {
		var sent transport.Request
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpCreateCustomer, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ transport.Operation, req transport.Request) (*transport.Reply, error) {
				sent = req
				return &transport.Reply{Succeeded: true}, nil
			})

		customer, res, err := s.client.RegisterCustomer(ctx, " Joe ")
		s.Require().NoError(err)
		s.True(res.Succeeded())
		s.Require().NotNil(customer)
		s.Equal("Joe", customer.Name)
		s.NotEmpty(customer.VaultKey)
		s.Equal(customer.VaultKey, sent.CustomerKey)
		s.Equal("Joe", sent.CustomerName)
	})

	s.Run("rejection returns no customer", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpCreateCustomer, gomock.Any()).
			Return(&transport.Reply{FailureReason: "CustomerAlreadyExists"}, nil)

		customer, res, err := s.client.RegisterCustomer(ctx, "Joe")
		s.Require().NoError(err)
		s.Nil(customer)
		s.Equal(models.ReasonCustomerAlreadyExists, models.ReasonOf(res))
	})

	s.Run("blank name never reaches the vault", func() {
		customer, res, err := s.client.RegisterCustomer(ctx, "  ")
		s.Nil(customer)
		s.Nil(res)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func (s *ServiceSuite) TestStoreCreditCard() {
	ctx := context.Background()

	s.Run("sets the issued token", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpAddStoredCreditCard, gomock.Any()).
			Return(&transport.Reply{Succeeded: true, Token: "tok-1"}, nil)

		card, res, err := s.client.StoreCreditCard(ctx, s.customer, goodVisa())
		s.Require().NoError(err)
		s.True(res.Succeeded())
		s.Equal("tok-1", card.Token)
		s.True(card.IsStored())
		s.Equal(visaNumber, card.Number)
	})

	s.Run("rejected card keeps no token", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpAddStoredCreditCard, gomock.Any()).
			Return(&transport.Reply{FailureReason: "CardNumberInUse"}, nil)

		card, res, err := s.client.StoreCreditCard(ctx, s.customer, goodVisa())
		s.Require().NoError(err)
		s.Equal(models.ReasonCardNumberInUse, models.ReasonOf(res))
		s.False(card.IsStored())
	})

	s.Run("transport error", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpAddStoredCreditCard, gomock.Any()).
			Return(nil, transport.NewError(transport.CategoryUnavailable, transport.OpAddStoredCreditCard, "vault unavailable", nil))

		card, res, err := s.client.StoreCreditCard(ctx, s.customer, goodVisa())
		s.Nil(res)
		s.Equal(transport.CategoryUnavailable, transport.CategoryOf(err))
		s.Empty(card.Token)
	})
}

func (s *ServiceSuite) TestGetStoredCreditCard() {
	ctx := context.Background()
	leaky := &transport.Reply{
		Succeeded: true,
		Card: &transport.CardFields{
			Token:             "tok-1",
			CardType:          "Visa",
			ExpirationMonth:   "8",
			ExpirationYear:    "2028",
			NameOnCard:        "Joe Customer",
			FriendlyName:      "Test Visa, Yo.",
			CardAccountNumber: visaNumber,
		},
	}

	s.Run("masks number the vault leaked", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpGetStoredCreditCard, transport.Request{
				CustomerKey: "cust-joe",
				Token:       "tok-1",
			}).
			Return(leaky, nil)

		res, err := s.client.GetStoredCreditCard(ctx, s.customer, "tok-1", false)
		s.Require().NoError(err)
		success, ok := res.(*models.Success)
		s.Require().True(ok)
		fields := success.Card.Fields()
		s.NotContains(fields, models.FieldCardAccountNumber)
		s.Equal("8", fields[models.FieldExpirationMonth])
		s.Equal("2028", fields[models.FieldExpirationYear])
		s.Equal("tok-1", fields[models.FieldToken])
	})

	s.Run("includes number on request", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpGetStoredCreditCard, transport.Request{
				CustomerKey:        "cust-joe",
				Token:              "tok-1",
				RetrieveCardNumber: true,
			}).
			Return(leaky, nil)

		res, err := s.client.GetStoredCreditCard(ctx, s.customer, "tok-1", true)
		s.Require().NoError(err)
		number, ok := res.(*models.Success).Card.AccountNumber()
		s.True(ok)
		s.Equal(visaNumber, number)
	})

	s.Run("unknown token", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpGetStoredCreditCard, gomock.Any()).
			Return(&transport.Reply{FailureReason: "CreditCardDoesNotExist"}, nil)

		res, err := s.client.GetStoredCreditCard(ctx, s.customer, "nope", false)
		s.Require().NoError(err)
		s.Equal(models.ReasonCreditCardDoesNotExist, models.ReasonOf(res))
	})

	s.Run("blank token is rejected locally", func() {
		res, err := s.client.GetStoredCreditCard(ctx, s.customer, "", false)
		s.Require().NoError(err)
		failure := res.(*models.Failure)
		s.Equal(models.ReasonValidationFailed, failure.Reason)
		s.Equal(validation.FieldToken, failure.ValidationFailures[0].Field)
	})
}

func (s *ServiceSuite) TestGetTokenForCardNumber() {
	ctx := context.Background()

	s.Run("resolves token", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpGetTokenForCardNumber, transport.Request{
				CustomerKey: "cust-joe",
				CardNumber:  visaNumber,
			}).
			Return(&transport.Reply{Succeeded: true, Token: "tok-1"}, nil)

		res, err := s.client.GetTokenForCardNumber(ctx, visaNumber, s.customer)
		s.Require().NoError(err)
		s.Equal("tok-1", models.TokenOf(res))
	})

	s.Run("no card on file", func() {
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpGetTokenForCardNumber, gomock.Any()).
			Return(&transport.Reply{FailureReason: "CreditCardDoesNotExist"}, nil)

		res, err := s.client.GetTokenForCardNumber(ctx, "5555555555554444", s.customer)
		s.Require().NoError(err)
		s.False(res.Succeeded())
		s.Equal(models.ReasonCreditCardDoesNotExist, models.ReasonOf(res))
	})

	s.Run("blank number is rejected locally", func() {
		res, err := s.client.GetTokenForCardNumber(ctx, " ", s.customer)
		s.Require().NoError(err)
		s.Equal(models.ReasonValidationFailed, models.ReasonOf(res))
	})
}

func (s *ServiceSuite) TestUpdateStoredCreditCard() {
	ctx := context.Background()

	s.Run("sends token and new fields", func() {
		card := goodVisa()
		card.Token = "tok-1"
		card.ExpirationMonth = 9
		card.ExpirationYear = 2031
		card.Name = "Joseph Customer"
		card.Nickname = "travel"

		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpUpdateStoredCreditCard, gomock.Any()).
			DoAndReturn(func(_ context.Context, _ transport.Operation, req transport.Request) (*transport.Reply, error) {
				s.Require().NotNil(req.Card)
				s.Equal("tok-1", req.Card.Token)
				s.Equal(9, req.Card.ExpirationMonth)
				s.Equal(2031, req.Card.ExpirationYear)
				s.Equal("Joseph Customer", req.Card.NameOnCard)
				s.Equal("travel", req.Card.FriendlyName)
				return &transport.Reply{Succeeded: true}, nil
			})

		res, err := s.client.UpdateStoredCreditCard(ctx, s.customer, card)
		s.Require().NoError(err)
		s.True(res.Succeeded())
	})

	s.Run("missing token is a local validation failure", func() {
		res, err := s.client.UpdateStoredCreditCard(ctx, s.customer, goodVisa())
		s.Require().NoError(err)
		failure := res.(*models.Failure)
		s.Equal(models.ReasonValidationFailed, failure.Reason)
		s.Equal(validation.FieldToken, failure.ValidationFailures[0].Field)
		s.Equal(validation.RuleRequired, failure.ValidationFailures[0].Rule)
	})

	s.Run("remote validation failures are carried through", func() {
		card := goodVisa()
		card.Token = "tok-1"
		s.mockTransport.EXPECT().
			Invoke(gomock.Any(), transport.OpUpdateStoredCreditCard, gomock.Any()).
			Return(&transport.Reply{
				FailureReason: "ValidationFailed",
				ValidationFailures: []transport.RawValidationFailure{
					{AttributeName: "CardAccountNumber", Message: "cannot be changed"},
				},
			}, nil)

		res, err := s.client.UpdateStoredCreditCard(ctx, s.customer, card)
		s.Require().NoError(err)
		failure := res.(*models.Failure)
		s.Require().Len(failure.ValidationFailures, 1)
		s.Equal(validation.FieldNumber, failure.ValidationFailures[0].Field)
		s.Equal(models.SourceRemote, failure.ValidationFailures[0].Source)
	})
}
