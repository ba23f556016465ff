// Package client is the entry point for vault operations.
//
// Each operation validates its input locally, performs at most one remote
// call through a transport.Transport, and interprets the reply into a
// models.Result. Business rejections are Results; only transport failures
// and caller mistakes come back as errors.
package client

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"cardvault/internal/platform/privacy"
	"cardvault/internal/vault/interpreter"
	"cardvault/internal/vault/metrics"
	"cardvault/internal/vault/models"
	"cardvault/internal/vault/tracer"
	"cardvault/internal/vault/transport"
	"cardvault/internal/vault/validation"
	dErrors "cardvault/pkg/domain-errors"
)

// Client performs vault operations. It holds no mutable state between calls
// and is safe for concurrent use.
type Client struct {
	wsdl      string
	transport transport.Transport
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    tracer.Tracer
	now       func() time.Time
}

// Option configures the Client.
type Option func(*Client)

// WithLogger sets the logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithTracer sets the tracer used for per-operation spans.
func WithTracer(t tracer.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

// WithClock sets the time source for the expiration check.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a client for the vault described by wsdl. The descriptor is
// kept for inspection only; t performs the calls.
func New(wsdl string, t transport.Transport, opts ...Option) (*Client, error) {
	if strings.TrimSpace(wsdl) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidConfig, "vault wsdl location required")
	}
	if t == nil {
		return nil, dErrors.New(dErrors.CodeInvalidConfig, "vault transport required")
	}
	c := &Client{
		wsdl:      wsdl,
		transport: t,
		tracer:    tracer.NewNoop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c, nil
}

// WSDL returns the service descriptor the client was built with.
func (c *Client) WSDL() string {
	return c.wsdl
}

// CreateCustomer registers customer with the vault. Creating the same vault
// key twice fails with ReasonCustomerAlreadyExists; there is no idempotent create.
func (c *Client) CreateCustomer(ctx context.Context, customer *models.Customer) (models.Result, error) {
	if err := customer.Validate(); err != nil {
		return nil, err
	}
	return c.call(ctx, call{
		op:       transport.OpCreateCustomer,
		span:     tracer.SpanCreateCustomer,
		customer: customer,
		req: transport.Request{
			CustomerKey:  customer.VaultKey,
			CustomerName: customer.Name,
		},
	})
}

// AddStoredCreditCard stores card for customer and returns the issued token.
// A card that fails local validation is rejected without contacting the vault.
func (c *Client) AddStoredCreditCard(ctx context.Context, customer *models.Customer, card models.CreditCard) (models.Result, error) {
	if err := customer.Validate(); err != nil {
		return nil, err
	}
	in := call{
		op:         transport.OpAddStoredCreditCard,
		span:       tracer.SpanAddStoredCreditCard,
		customer:   customer,
		maskedCard: privacy.MaskPAN(card.Number),
		attrs:      cardAttributes(card),
	}
	if failures := validation.Validate(card, c.now()); len(failures) > 0 {
		return c.rejectLocally(ctx, in, failures), nil
	}
	in.req = transport.Request{
		CustomerKey: customer.VaultKey,
		Card:        cardPayload(card),
	}
	return c.call(ctx, in)
}

// GetStoredCreditCard retrieves the card stored under token for customer. The
// unmasked number is only included when includeCardNumber is true.
func (c *Client) GetStoredCreditCard(ctx context.Context, customer *models.Customer, token string, includeCardNumber bool) (models.Result, error) {
	if err := customer.Validate(); err != nil {
		return nil, err
	}
	in := call{
		op:                transport.OpGetStoredCreditCard,
		span:              tracer.SpanGetStoredCreditCard,
		customer:          customer,
		includeCardNumber: includeCardNumber,
		attrs: []tracer.Attribute{
			tracer.String(tracer.AttrToken, token),
			tracer.Bool(tracer.AttrIncludeCardNumber, includeCardNumber),
		},
	}
	if strings.TrimSpace(token) == "" {
		return c.rejectLocally(ctx, in, []models.ValidationFailure{
			localFailure(validation.FieldToken, validation.RuleRequired, "token is required"),
		}), nil
	}
	in.req = transport.Request{
		CustomerKey:        customer.VaultKey,
		Token:              token,
		RetrieveCardNumber: includeCardNumber,
	}
	return c.call(ctx, in)
}

// GetTokenForCardNumber resolves the token of a card customer already stored.
func (c *Client) GetTokenForCardNumber(ctx context.Context, cardNumber string, customer *models.Customer) (models.Result, error) {
	if err := customer.Validate(); err != nil {
		return nil, err
	}
	in := call{
		op:         transport.OpGetTokenForCardNumber,
		span:       tracer.SpanGetTokenForCardNumber,
		customer:   customer,
		maskedCard: privacy.MaskPAN(cardNumber),
		attrs:      []tracer.Attribute{tracer.String(tracer.AttrCardHash, privacy.HashPAN(cardNumber))},
	}
	if strings.TrimSpace(cardNumber) == "" {
		return c.rejectLocally(ctx, in, []models.ValidationFailure{
			localFailure(validation.FieldNumber, validation.RuleRequired, "card number is required"),
		}), nil
	}
	in.req = transport.Request{
		CustomerKey: customer.VaultKey,
		CardNumber:  cardNumber,
	}
	return c.call(ctx, in)
}

// UpdateStoredCreditCard changes the expiration, cardholder name and nickname
// of the card identified by card.Token. The vault decides what happens to a
// changed number; the client forwards the card as given.
func (c *Client) UpdateStoredCreditCard(ctx context.Context, customer *models.Customer, card models.CreditCard) (models.Result, error) {
	if err := customer.Validate(); err != nil {
		return nil, err
	}
	in := call{
		op:         transport.OpUpdateStoredCreditCard,
		span:       tracer.SpanUpdateStoredCreditCard,
		customer:   customer,
		maskedCard: privacy.MaskPAN(card.Number),
		attrs:      append(cardAttributes(card), tracer.String(tracer.AttrToken, card.Token)),
	}
	if failures := validation.ValidateForUpdate(card, c.now()); len(failures) > 0 {
		return c.rejectLocally(ctx, in, failures), nil
	}
	in.req = transport.Request{
		CustomerKey: customer.VaultKey,
		Card:        cardPayload(card),
	}
	return c.call(ctx, in)
}

// RegisterCustomer builds a customer named name with a fresh vault key and
// creates it in the vault. The customer is returned only when the vault
// accepted it.
func (c *Client) RegisterCustomer(ctx context.Context, name string) (*models.Customer, models.Result, error) {
	customer, err := models.NewCustomer(name)
	if err != nil {
		return nil, nil, err
	}
	result, err := c.CreateCustomer(ctx, customer)
	if err != nil || !result.Succeeded() {
		return nil, result, err
	}
	return customer, result, nil
}

// StoreCreditCard adds card for customer and returns it with the issued
// token set. On rejection the card comes back unchanged.
func (c *Client) StoreCreditCard(ctx context.Context, customer *models.Customer, card models.CreditCard) (models.CreditCard, models.Result, error) {
	result, err := c.AddStoredCreditCard(ctx, customer, card)
	if err != nil {
		return card, nil, err
	}
	if token := models.TokenOf(result); token != "" {
		card.Token = token
	}
	return card, result, nil
}

type call struct {
	op                transport.Operation
	span              string
	customer          *models.Customer
	req               transport.Request
	includeCardNumber bool
	maskedCard        string
	attrs             []tracer.Attribute
}

func (c *Client) callLogger(in call) *slog.Logger {
	logger := c.logger.With(
		"operation", in.op.String(),
		"customer_key", in.customer.VaultKey,
	)
	if in.maskedCard != "" {
		logger = logger.With("card", in.maskedCard)
	}
	return logger
}

func (c *Client) call(ctx context.Context, in call) (result models.Result, err error) {
	ctx, span := c.tracer.Start(ctx, in.span,
		append(in.attrs, tracer.String(tracer.AttrCustomerKey, in.customer.VaultKey))...)
	defer func() { span.End(err) }()

	logger := c.callLogger(in)
	logger.DebugContext(ctx, "dispatching vault call")

	start := time.Now()
	reply, err := c.transport.Invoke(ctx, in.op, in.req)
	elapsed := time.Since(start)
	if c.metrics != nil {
		c.metrics.ObserveDuration(in.op.String(), elapsed)
	}
	if err == nil {
		result, err = interpreter.Interpret(in.op, reply, in.includeCardNumber)
	}
	if err != nil {
		err = asTransportError(in.op, err)
		category := transport.CategoryOf(err)
		span.SetAttributes(tracer.String(tracer.AttrErrorCategory, string(category)))
		if c.metrics != nil {
			c.metrics.RecordError(in.op.String(), string(category))
		}
		logger.WarnContext(ctx, "vault call failed",
			"outcome", metrics.OutcomeError,
			"error_category", string(category),
			"retryable", transport.IsRetryable(err),
			"duration_ms", elapsed.Milliseconds(),
			"error", err,
		)
		return nil, err
	}

	c.recordOutcome(ctx, logger, span, in.op, result, false, elapsed)
	return result, nil
}

func (c *Client) rejectLocally(ctx context.Context, in call, failures []models.ValidationFailure) models.Result {
	_, span := c.tracer.Start(ctx, in.span,
		append(in.attrs, tracer.String(tracer.AttrCustomerKey, in.customer.VaultKey))...)
	defer span.End(nil)

	span.AddEvent(tracer.EventLocallyRejected, tracer.Int64(tracer.AttrLocalFailures, int64(len(failures))))
	result := models.NewValidationFailure(failures)

	fields := make([]string, 0, len(failures))
	for _, f := range failures {
		fields = append(fields, f.Field+":"+f.Rule)
	}
	logger := c.callLogger(in).With("validation_failures", strings.Join(fields, ","))
	c.recordOutcome(ctx, logger, span, in.op, result, true, 0)
	return result
}

func (c *Client) recordOutcome(ctx context.Context, logger *slog.Logger, span tracer.Span, op transport.Operation, result models.Result, local bool, elapsed time.Duration) {
	switch r := result.(type) {
	case *models.Success:
		span.SetAttributes(tracer.String(tracer.AttrOutcome, metrics.OutcomeSuccess))
		if c.metrics != nil {
			c.metrics.RecordSuccess(op.String())
		}
		logger.InfoContext(ctx, "vault call succeeded",
			"outcome", metrics.OutcomeSuccess,
			"token", r.Token,
			"duration_ms", elapsed.Milliseconds(),
		)
	case *models.Failure:
		outcome := metrics.OutcomeFailure
		if local {
			outcome = metrics.OutcomeRejectedLocally
		}
		span.SetAttributes(
			tracer.String(tracer.AttrOutcome, outcome),
			tracer.String(tracer.AttrFailureReason, r.Reason.String()),
		)
		if c.metrics != nil {
			c.metrics.RecordFailure(op.String(), r.Reason.String(), local)
		}
		logger.InfoContext(ctx, "vault call rejected",
			"outcome", outcome,
			"failure_reason", r.Reason.String(),
			"raw_reason", r.RawReason,
			"duration_ms", elapsed.Milliseconds(),
		)
	}
}

// asTransportError keeps the taxonomy intact for transports that return plain errors.
func asTransportError(op transport.Operation, err error) error {
	var te *transport.Error
	if errors.As(err, &te) {
		return err
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return transport.NewError(transport.CategoryTimeout, op, "request timeout", err)
	case errors.Is(err, context.Canceled):
		return transport.NewError(transport.CategoryCanceled, op, "request canceled", err)
	}
	return transport.NewError(transport.CategoryInternal, op, "transport failed", err)
}

func cardPayload(card models.CreditCard) *transport.CardPayload {
	return &transport.CardPayload{
		AccountNumber:   card.Number,
		CardType:        card.Type.String(),
		ExpirationMonth: card.ExpirationMonth,
		ExpirationYear:  card.ExpirationYear,
		NameOnCard:      card.Name,
		FriendlyName:    card.Nickname,
		Token:           card.Token,
	}
}

func cardAttributes(card models.CreditCard) []tracer.Attribute {
	return []tracer.Attribute{
		tracer.String(tracer.AttrCardType, card.Type.String()),
		tracer.String(tracer.AttrCardHash, privacy.HashPAN(card.Number)),
	}
}

func localFailure(field, rule, message string) models.ValidationFailure {
	return models.ValidationFailure{Field: field, Rule: rule, Message: message, Source: models.SourceLocal}
}
