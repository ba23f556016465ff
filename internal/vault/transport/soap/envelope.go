package soap

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	gowsdl "github.com/hooklift/gowsdl/soap"

	"cardvault/internal/vault/transport"
)

const (
	// DefaultNamespace is the service namespace used when none is configured.
	DefaultNamespace = "urn:cardvault:management:v1"

	// reasonNone is the vault's spelling of "no failure reason".
	reasonNone = "None"
)

// Fault codes emitted by the simulator and recognized by the client.
const (
	FaultClient         = "soap:Client"
	FaultAuthentication = "soap:Client.Authentication"
	FaultServer         = "soap:Server"
)

// Credentials identify the calling merchant to the vault.
type Credentials struct {
	ClientCode string
	UserName   string
	Password   string
	LocationID string
}

const credentialsElement = "clientCredentials"

// paramsElement names the parameter wrapper of each operation.
var paramsElement = map[transport.Operation]string{
	transport.OpCreateCustomer:         "createCustomerParams",
	transport.OpAddStoredCreditCard:    "addStoredCardParams",
	transport.OpGetStoredCreditCard:    "getStoredCreditCardParams",
	transport.OpGetTokenForCardNumber:  "getTokenForCardNumberParams",
	transport.OpUpdateStoredCreditCard: "updateStoredCardParams",
}

// operationElement is the body content of a request. The operation, its
// credentials and its params all carry the service namespace; leaf elements
// inherit it.
type operationElement struct {
	XMLName     xml.Name
	Credentials credentialsXML `xml:"clientCredentials"`
	Params      paramsXML
}

type credentialsXML struct {
	XMLName    xml.Name
	ClientCode string `xml:"ClientCode"`
	Password   string `xml:"Password"`
	UserName   string `xml:"UserName"`
}

type paramsXML struct {
	XMLName            xml.Name
	LocationID         string         `xml:"LocationID,omitempty"`
	Customer           *customerXML   `xml:"Customer,omitempty"`
	CustomerKey        string         `xml:"CustomerKey,omitempty"`
	CreditCard         *creditCardXML `xml:"CreditCard,omitempty"`
	Token              string         `xml:"Token,omitempty"`
	CardAccountNumber  string         `xml:"CardAccountNumber,omitempty"`
	RetrieveCardNumber string         `xml:"RetrieveCardNumber,omitempty"`
}

type customerXML struct {
	Name     string `xml:"Name"`
	VaultKey string `xml:"VaultKey"`
}

type creditCardXML struct {
	CardAccountNumber string `xml:"CardAccountNumber,omitempty"`
	CardType          string `xml:"CardType,omitempty"`
	ExpirationMonth   string `xml:"ExpirationMonth,omitempty"`
	ExpirationYear    string `xml:"ExpirationYear,omitempty"`
	NameOnCard        string `xml:"NameOnCard,omitempty"`
	FriendlyName      string `xml:"FriendlyName,omitempty"`
	Token             string `xml:"Token,omitempty"`
}

// newOperation builds the body content for op in namespace.
func newOperation(namespace string, creds Credentials, op transport.Operation, req transport.Request) (*operationElement, error) {
	params, ok := paramsElement[op]
	if !ok {
		return nil, fmt.Errorf("unsupported operation %q", op)
	}

	p := paramsXML{XMLName: xml.Name{Space: namespace, Local: params}}
	switch op {
	case transport.OpCreateCustomer:
		p.Customer = &customerXML{Name: req.CustomerName, VaultKey: req.CustomerKey}
	case transport.OpAddStoredCreditCard, transport.OpUpdateStoredCreditCard:
		p.LocationID = creds.LocationID
		p.CustomerKey = req.CustomerKey
		if req.Card != nil {
			p.CreditCard = cardToXML(req.Card)
		}
	case transport.OpGetStoredCreditCard:
		p.CustomerKey = req.CustomerKey
		p.Token = req.Token
		p.RetrieveCardNumber = strconv.FormatBool(req.RetrieveCardNumber)
	case transport.OpGetTokenForCardNumber:
		p.CustomerKey = req.CustomerKey
		p.CardAccountNumber = req.CardNumber
	}

	return &operationElement{
		XMLName: xml.Name{Space: namespace, Local: string(op)},
		Credentials: credentialsXML{
			XMLName:    xml.Name{Space: namespace, Local: credentialsElement},
			ClientCode: creds.ClientCode,
			Password:   creds.Password,
			UserName:   creds.UserName,
		},
		Params: p,
	}, nil
}

func cardToXML(c *transport.CardPayload) *creditCardXML {
	out := &creditCardXML{
		CardAccountNumber: c.AccountNumber,
		CardType:          c.CardType,
		NameOnCard:        c.NameOnCard,
		FriendlyName:      c.FriendlyName,
		Token:             c.Token,
	}
	if c.ExpirationMonth != 0 {
		out.ExpirationMonth = strconv.Itoa(c.ExpirationMonth)
	}
	if c.ExpirationYear != 0 {
		out.ExpirationYear = strconv.Itoa(c.ExpirationYear)
	}
	return out
}

// ---- incoming request (vault side) ----

type requestEnvelopeIn struct {
	XMLName xml.Name `xml:"http://schemas.xmlsoap.org/soap/envelope/ Envelope"`
	Body    struct {
		Operation *operationIn `xml:",any"`
	} `xml:"http://schemas.xmlsoap.org/soap/envelope/ Body"`
}

type operationIn struct {
	XMLName     xml.Name
	Credentials *credentialsXML `xml:"clientCredentials"`
	Params      *paramsXML      `xml:",any"`
}

// DecodeRequest parses a request envelope. The operation element, its
// credentials and its params must all be in namespace.
func DecodeRequest(r io.Reader, namespace string) (Credentials, transport.Operation, transport.Request, error) {
	var env requestEnvelopeIn
	if err := xml.NewDecoder(r).Decode(&env); err != nil {
		return Credentials{}, "", transport.Request{}, fmt.Errorf("decode envelope: %w", err)
	}
	in := env.Body.Operation
	if in == nil {
		return Credentials{}, "", transport.Request{}, fmt.Errorf("envelope has no operation")
	}

	op := transport.Operation(in.XMLName.Local)
	if !op.IsValid() {
		return Credentials{}, "", transport.Request{}, fmt.Errorf("unsupported operation %q", op)
	}
	if in.XMLName.Space != namespace {
		return Credentials{}, "", transport.Request{}, fmt.Errorf("operation %s in namespace %q, want %q", op, in.XMLName.Space, namespace)
	}
	if in.Credentials == nil || in.Credentials.XMLName.Space != namespace {
		return Credentials{}, "", transport.Request{}, fmt.Errorf("operation %s has no %s in namespace %q", op, credentialsElement, namespace)
	}

	creds := Credentials{
		ClientCode: in.Credentials.ClientCode,
		UserName:   in.Credentials.UserName,
		Password:   in.Credentials.Password,
	}
	p := in.Params
	if p == nil {
		return creds, op, transport.Request{}, nil
	}
	if want := paramsElement[op]; p.XMLName.Local != want || p.XMLName.Space != namespace {
		return Credentials{}, "", transport.Request{}, fmt.Errorf("operation %s has no %s in namespace %q", op, want, namespace)
	}

	creds.LocationID = p.LocationID
	req := transport.Request{
		CustomerKey:        p.CustomerKey,
		Token:              p.Token,
		CardNumber:         p.CardAccountNumber,
		RetrieveCardNumber: strings.EqualFold(p.RetrieveCardNumber, "true"),
	}
	if p.Customer != nil {
		req.CustomerKey = p.Customer.VaultKey
		req.CustomerName = p.Customer.Name
	}
	if p.CreditCard != nil {
		req.Card = &transport.CardPayload{
			AccountNumber:   p.CreditCard.CardAccountNumber,
			CardType:        p.CreditCard.CardType,
			ExpirationMonth: atoi(p.CreditCard.ExpirationMonth),
			ExpirationYear:  atoi(p.CreditCard.ExpirationYear),
			NameOnCard:      p.CreditCard.NameOnCard,
			FriendlyName:    p.CreditCard.FriendlyName,
			Token:           p.CreditCard.Token,
		}
	}
	return creds, op, req, nil
}

// ---- reply ----

type responseOut struct {
	XMLName xml.Name
	Result  *resultXML
}

type responseIn struct {
	XMLName xml.Name
	Result  *resultXML `xml:",any"`
}

type resultXML struct {
	XMLName            xml.Name
	Succeeded          string                 `xml:"Succeeded"`
	FailureReason      string                 `xml:"FailureReason"`
	ValidationFailures []validationFailureXML `xml:"ValidationFailures>ValidationFailure"`
	Token              string                 `xml:"Token,omitempty"`
	CreditCard         *creditCardXML         `xml:"CreditCard,omitempty"`
}

type validationFailureXML struct {
	AttributeName string `xml:"AttributeName"`
	Message       string `xml:"Message"`
}

// EncodeReply writes the response envelope for op.
func EncodeReply(w io.Writer, namespace string, op transport.Operation, reply *transport.Reply) error {
	reason := reply.FailureReason
	if reason == "" {
		reason = reasonNone
	}
	result := &resultXML{
		XMLName:       xml.Name{Space: namespace, Local: string(op) + "Result"},
		Succeeded:     strconv.FormatBool(reply.Succeeded),
		FailureReason: reason,
		Token:         reply.Token,
	}
	for _, vf := range reply.ValidationFailures {
		result.ValidationFailures = append(result.ValidationFailures, validationFailureXML{
			AttributeName: vf.AttributeName,
			Message:       vf.Message,
		})
	}
	if c := reply.Card; c != nil {
		result.CreditCard = &creditCardXML{
			CardAccountNumber: c.CardAccountNumber,
			CardType:          c.CardType,
			ExpirationMonth:   c.ExpirationMonth,
			ExpirationYear:    c.ExpirationYear,
			NameOnCard:        c.NameOnCard,
			FriendlyName:      c.FriendlyName,
			Token:             c.Token,
		}
	}

	return encode(w, gowsdl.SOAPBody{Content: &responseOut{
		XMLName: xml.Name{Space: namespace, Local: string(op) + "Response"},
		Result:  result,
	}})
}

// EncodeFault writes a SOAP fault envelope.
func EncodeFault(w io.Writer, code, message string) error {
	return encode(w, gowsdl.SOAPBody{Fault: &gowsdl.SOAPFault{Code: code, String: message}})
}

// ErrContract reports well-formed XML that does not follow the reply
// contract of an operation.
type ErrContract struct {
	Reason string
}

func (e *ErrContract) Error() string {
	return "reply contract violated: " + e.Reason
}

// reply checks the decoded body content against op and namespace and turns
// it into a transport.Reply.
func (r *responseIn) reply(op transport.Operation, namespace string) (*transport.Reply, error) {
	if r.XMLName.Local == "" {
		return nil, &ErrContract{Reason: "empty body"}
	}
	if got, want := r.XMLName.Local, string(op)+"Response"; got != want {
		return nil, &ErrContract{Reason: fmt.Sprintf("got %s, want %s", got, want)}
	}
	if r.XMLName.Space != namespace {
		return nil, &ErrContract{Reason: fmt.Sprintf("response in namespace %q, want %q", r.XMLName.Space, namespace)}
	}
	res := r.Result
	if res == nil {
		return nil, &ErrContract{Reason: "missing result"}
	}

	succeeded, err := strconv.ParseBool(strings.TrimSpace(res.Succeeded))
	if err != nil {
		return nil, &ErrContract{Reason: fmt.Sprintf("invalid Succeeded value %q", res.Succeeded)}
	}

	reply := &transport.Reply{
		Succeeded: succeeded,
		Token:     strings.TrimSpace(res.Token),
	}
	if reason := strings.TrimSpace(res.FailureReason); reason != reasonNone {
		reply.FailureReason = reason
	}
	for _, vf := range res.ValidationFailures {
		reply.ValidationFailures = append(reply.ValidationFailures, transport.RawValidationFailure{
			AttributeName: vf.AttributeName,
			Message:       vf.Message,
		})
	}
	if c := res.CreditCard; c != nil {
		reply.Card = &transport.CardFields{
			Token:             c.Token,
			CardType:          c.CardType,
			ExpirationMonth:   c.ExpirationMonth,
			ExpirationYear:    c.ExpirationYear,
			NameOnCard:        c.NameOnCard,
			FriendlyName:      c.FriendlyName,
			CardAccountNumber: c.CardAccountNumber,
		}
	}
	return reply, nil
}

// isAuthenticationFault reports whether f rejects the client credentials.
func isAuthenticationFault(f *gowsdl.SOAPFault) bool {
	return strings.HasSuffix(strings.TrimSpace(f.Code), "Client.Authentication")
}

func encode(w io.Writer, body gowsdl.SOAPBody) error {
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	if err := enc.Encode(gowsdl.SOAPEnvelope{XmlNS: gowsdl.XmlNsSoapEnv, Body: body}); err != nil {
		return err
	}
	return enc.Flush()
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
