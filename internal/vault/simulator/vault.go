// Package simulator is an in-memory stand-in for the remote vault.
//
// Vault answers transport.Transport calls with the vault's own semantics:
// at-most-once customer creation, card-number uniqueness, token issuance and
// redaction of account numbers. NewHandler serves it as SOAP over HTTP.
package simulator

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"cardvault/internal/vault/models"
	"cardvault/internal/vault/transport"
	"cardvault/internal/vault/validation"
	dErrors "cardvault/pkg/domain-errors"
	"cardvault/pkg/secrets"
)

// Remote attribute names used in validation failures.
var remoteAttributes = map[string]string{
	validation.FieldNumber:          "CardAccountNumber",
	validation.FieldExpirationMonth: "ExpirationMonth",
	validation.FieldExpirationYear:  "ExpirationYear",
	validation.FieldName:            "NameOnCard",
	validation.FieldType:            "CardType",
	validation.FieldToken:           "Token",
}

type customerRecord struct {
	key  string
	name string
}

type cardRecord struct {
	token       string
	customerKey string
	number      string
	cardType    models.CardType
	month       int
	year        int
	nameOnCard  string
	nickname    string
}

type merchant struct {
	userName     string
	passwordHash string
}

// Vault is the in-memory vault. All state sits behind one mutex, so
// concurrent adds of the same number yield exactly one token.
type Vault struct {
	mu        sync.Mutex
	customers map[string]*customerRecord
	cards     map[string]*cardRecord // by token
	numbers   map[string]string      // uniqueness scope key -> token
	merchants map[string]merchant    // by client code
	calls     map[transport.Operation]int

	globalUniqueness bool
	leakyRedaction   bool
	hashCost         int
	now              func() time.Time
	logger           *slog.Logger
}

// Option configures the Vault.
type Option func(*Vault)

// WithGlobalCardUniqueness makes a card number unique across all customers
// instead of per customer.
func WithGlobalCardUniqueness() Option {
	return func(v *Vault) {
		v.globalUniqueness = true
	}
}

// WithLeakyRedaction makes retrievals return the account number even when it
// was not requested.
func WithLeakyRedaction() Option {
	return func(v *Vault) {
		v.leakyRedaction = true
	}
}

// WithClock sets the time source for server-side expiration checks.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		v.now = now
	}
}

// WithHashCost sets the bcrypt cost for merchant passwords.
func WithHashCost(cost int) Option {
	return func(v *Vault) {
		v.hashCost = cost
	}
}

// WithLogger sets the logger for the vault.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Vault) {
		v.logger = logger
	}
}

// New creates an empty vault.
func New(opts ...Option) *Vault {
	v := &Vault{
		customers: make(map[string]*customerRecord),
		cards:     make(map[string]*cardRecord),
		numbers:   make(map[string]string),
		merchants: make(map[string]merchant),
		calls:     make(map[transport.Operation]int),
		hashCost:  bcrypt.DefaultCost,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.logger == nil {
		v.logger = slog.Default()
	}
	return v
}

// RegisterMerchant adds a merchant account. Once any merchant is registered,
// Authenticate rejects unknown credentials.
func (v *Vault) RegisterMerchant(clientCode, userName, password string) error {
	if strings.TrimSpace(clientCode) == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "client code required")
	}
	hash, err := secrets.HashWithCost(password, v.hashCost)
	if err != nil {
		return err
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.merchants[clientCode] = merchant{userName: userName, passwordHash: hash}
	return nil
}

// Authenticate checks merchant credentials. With no merchants registered
// every caller is accepted.
func (v *Vault) Authenticate(clientCode, userName, password string) error {
	v.mu.Lock()
	m, ok := v.merchants[clientCode]
	open := len(v.merchants) == 0
	v.mu.Unlock()

	if open {
		return nil
	}
	if !ok || m.userName != userName {
		return dErrors.New(dErrors.CodeUnauthorized, "unknown merchant")
	}
	return secrets.Verify(password, m.passwordHash)
}

// Calls returns how many times op was invoked.
func (v *Vault) Calls(op transport.Operation) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls[op]
}

// TotalCalls returns the number of invocations across all operations.
func (v *Vault) TotalCalls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	total := 0
	for _, n := range v.calls {
		total += n
	}
	return total
}

// Invoke executes op against the in-memory state.
func (v *Vault) Invoke(ctx context.Context, op transport.Operation, req transport.Request) (*transport.Reply, error) {
	if err := ctx.Err(); err != nil {
		return nil, transport.NewError(transport.CategoryCanceled, op, "request canceled", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls[op]++

	var reply *transport.Reply
	switch op {
	case transport.OpCreateCustomer:
		reply = v.createCustomer(req)
	case transport.OpAddStoredCreditCard:
		reply = v.addCard(req)
	case transport.OpGetStoredCreditCard:
		reply = v.getCard(req)
	case transport.OpGetTokenForCardNumber:
		reply = v.getToken(req)
	case transport.OpUpdateStoredCreditCard:
		reply = v.updateCard(req)
	default:
		return nil, transport.NewError(transport.CategoryRemoteFault, op, "operation not supported", nil)
	}

	v.logger.DebugContext(ctx, "simulated vault call",
		"operation", op.String(),
		"customer_key", req.CustomerKey,
		"succeeded", reply.Succeeded,
		"failure_reason", reply.FailureReason,
	)
	return reply, nil
}

func (v *Vault) createCustomer(req transport.Request) *transport.Reply {
	if strings.TrimSpace(req.CustomerKey) == "" {
		return rejected(models.ReasonValidationFailed, transport.RawValidationFailure{
			AttributeName: "VaultKey", Message: "is required",
		})
	}
	if _, exists := v.customers[req.CustomerKey]; exists {
		return rejected(models.ReasonCustomerAlreadyExists)
	}
	v.customers[req.CustomerKey] = &customerRecord{key: req.CustomerKey, name: req.CustomerName}
	return &transport.Reply{Succeeded: true}
}

func (v *Vault) addCard(req transport.Request) *transport.Reply {
	if _, ok := v.customers[req.CustomerKey]; !ok {
		return rejected(models.ReasonCustomerDoesNotExist)
	}
	if req.Card == nil {
		return rejected(models.ReasonValidationFailed, transport.RawValidationFailure{
			AttributeName: "CreditCard", Message: "is required",
		})
	}

	card := creditCard(req.Card)
	if failures := validation.Validate(card, v.now()); len(failures) > 0 {
		return rejected(models.ReasonValidationFailed, remoteFailures(failures)...)
	}

	scope := v.scopeKey(req.CustomerKey, card.Number)
	if _, taken := v.numbers[scope]; taken {
		return rejected(models.ReasonCardNumberInUse)
	}

	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	v.cards[token] = &cardRecord{
		token:       token,
		customerKey: req.CustomerKey,
		number:      card.Number,
		cardType:    card.Type,
		month:       card.ExpirationMonth,
		year:        card.ExpirationYear,
		nameOnCard:  card.Name,
		nickname:    card.Nickname,
	}
	v.numbers[scope] = token
	return &transport.Reply{Succeeded: true, Token: token}
}

func (v *Vault) getCard(req transport.Request) *transport.Reply {
	if _, ok := v.customers[req.CustomerKey]; !ok {
		return rejected(models.ReasonCustomerDoesNotExist)
	}
	rec, ok := v.ownedCard(req.CustomerKey, req.Token)
	if !ok {
		return rejected(models.ReasonCreditCardDoesNotExist)
	}

	fields := &transport.CardFields{
		Token:           rec.token,
		CardType:        rec.cardType.String(),
		ExpirationMonth: strconv.Itoa(rec.month),
		ExpirationYear:  strconv.Itoa(rec.year),
		NameOnCard:      rec.nameOnCard,
		FriendlyName:    rec.nickname,
	}
	if req.RetrieveCardNumber || v.leakyRedaction {
		fields.CardAccountNumber = rec.number
	}
	return &transport.Reply{Succeeded: true, Card: fields}
}

func (v *Vault) getToken(req transport.Request) *transport.Reply {
	if _, ok := v.customers[req.CustomerKey]; !ok {
		return rejected(models.ReasonCustomerDoesNotExist)
	}
	token, ok := v.numbers[v.scopeKey(req.CustomerKey, strings.TrimSpace(req.CardNumber))]
	if !ok {
		return rejected(models.ReasonCreditCardDoesNotExist)
	}
	if _, owned := v.ownedCard(req.CustomerKey, token); !owned {
		return rejected(models.ReasonCreditCardDoesNotExist)
	}
	return &transport.Reply{Succeeded: true, Token: token}
}

func (v *Vault) updateCard(req transport.Request) *transport.Reply {
	if _, ok := v.customers[req.CustomerKey]; !ok {
		return rejected(models.ReasonCustomerDoesNotExist)
	}
	if req.Card == nil || strings.TrimSpace(req.Card.Token) == "" {
		return rejected(models.ReasonValidationFailed, transport.RawValidationFailure{
			AttributeName: "Token", Message: "is required",
		})
	}
	rec, ok := v.ownedCard(req.CustomerKey, req.Card.Token)
	if !ok {
		return rejected(models.ReasonCreditCardDoesNotExist)
	}

	if n := strings.TrimSpace(req.Card.AccountNumber); n != "" && n != rec.number {
		return rejected(models.ReasonValidationFailed, transport.RawValidationFailure{
			AttributeName: "CardAccountNumber", Message: "cannot be changed on a stored card",
		})
	}

	card := creditCard(req.Card)
	card.Number = rec.number
	if card.Type == "" {
		card.Type = rec.cardType
	}
	if failures := validation.Validate(card, v.now()); len(failures) > 0 {
		return rejected(models.ReasonValidationFailed, remoteFailures(failures)...)
	}

	rec.month = card.ExpirationMonth
	rec.year = card.ExpirationYear
	rec.nameOnCard = card.Name
	rec.nickname = card.Nickname
	rec.cardType = card.Type
	return &transport.Reply{Succeeded: true}
}

func (v *Vault) ownedCard(customerKey, token string) (*cardRecord, bool) {
	rec, ok := v.cards[token]
	if !ok || rec.customerKey != customerKey {
		return nil, false
	}
	return rec, true
}

func (v *Vault) scopeKey(customerKey, number string) string {
	if v.globalUniqueness {
		return number
	}
	return customerKey + "|" + number
}

func creditCard(p *transport.CardPayload) models.CreditCard {
	cardType, ok := models.ParseCardType(p.CardType)
	if !ok {
		cardType = models.CardType(p.CardType)
	}
	return models.CreditCard{
		Number:          strings.TrimSpace(p.AccountNumber),
		ExpirationMonth: p.ExpirationMonth,
		ExpirationYear:  p.ExpirationYear,
		Name:            p.NameOnCard,
		Type:            cardType,
		Nickname:        p.FriendlyName,
		Token:           p.Token,
	}
}

func remoteFailures(failures []models.ValidationFailure) []transport.RawValidationFailure {
	out := make([]transport.RawValidationFailure, 0, len(failures))
	for _, f := range failures {
		name, ok := remoteAttributes[f.Field]
		if !ok {
			name = f.Field
		}
		out = append(out, transport.RawValidationFailure{AttributeName: name, Message: f.Message})
	}
	return out
}

func rejected(reason models.FailureReason, failures ...transport.RawValidationFailure) *transport.Reply {
	return &transport.Reply{
		FailureReason:      reason.String(),
		ValidationFailures: failures,
	}
}

var _ transport.Transport = (*Vault)(nil)
