// Package soap implements transport.Transport as SOAP 1.1 over HTTP against
// the vault's management service. Envelopes and faults come from gowsdl's
// soap package; this package owns the operation payloads and maps HTTP and
// fault outcomes onto the transport error taxonomy.
package soap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	gowsdl "github.com/hooklift/gowsdl/soap"

	"cardvault/internal/vault/transport"
)

// maxReplyBytes bounds how much of a reply body is read.
const maxReplyBytes = 4 << 20

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client calls the vault management endpoint.
type Client struct {
	endpoint  string
	namespace string
	creds     Credentials
	client    HTTPDoer
	timeout   time.Duration
	logger    *slog.Logger
}

// Option configures the Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client (for testing).
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		c.client = client
	}
}

// WithTimeout bounds each call. Zero leaves calls bounded only by the caller's context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithNamespace sets the service namespace of operation elements.
func WithNamespace(ns string) Option {
	return func(c *Client) {
		if ns != "" {
			c.namespace = ns
		}
	}
}

// WithCredentials sets the client credentials sent on every call.
func WithCredentials(creds Credentials) Option {
	return func(c *Client) {
		c.creds = creds
	}
}

// WithLogger sets the logger for wire-level diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a SOAP transport posting to endpoint.
func New(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:  endpoint,
		namespace: DefaultNamespace,
		client:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// EndpointFromWSDL derives the service address from a WSDL location by
// dropping its query (e.g. "?wsdl") and fragment.
func EndpointFromWSDL(wsdl string) (string, error) {
	u, err := url.Parse(wsdl)
	if err != nil {
		return "", fmt.Errorf("parse wsdl location: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("wsdl location %q is not an absolute URL", wsdl)
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// Endpoint returns the address calls are posted to.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Invoke performs one SOAP call.
func (c *Client) Invoke(ctx context.Context, op transport.Operation, req transport.Request) (*transport.Reply, error) {
	body, err := newOperation(c.namespace, c.creds, op, req)
	if err != nil {
		return nil, transport.NewError(transport.CategoryInternal, op, "failed to encode request", err)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	ex := &exchange{ctx: ctx, next: c.client, requestID: uuid.NewString()}
	call := gowsdl.NewClient(c.endpoint, gowsdl.WithHTTPClient(ex))

	var resp responseIn
	err = call.CallContext(ctx, fmt.Sprintf("%q", c.namespace+"/"+string(op)), body, &resp)

	if c.logger != nil {
		c.logger.Debug("vault reply received",
			"operation", string(op),
			"request_id", ex.requestID,
			"status", ex.status,
			"error", err,
		)
	}

	if classified := classify(ctx, op, ex, err); classified != nil {
		return nil, classified
	}
	reply, err := resp.reply(op, c.namespace)
	if err != nil {
		return nil, transport.NewError(transport.CategoryContractMismatch, op, "unexpected reply shape",
			errors.Join(transport.ErrMalformedReply, err))
	}
	return reply, nil
}

// exchange is the HTTPClient handed to the SOAP client for one call. It
// binds the call context, tags the request, caps the reply body and keeps the
// status code so failures can be classified afterwards.
type exchange struct {
	ctx       context.Context
	next      HTTPDoer
	requestID string

	status int
	doErr  error
}

func (e *exchange) Do(req *http.Request) (*http.Response, error) {
	req = req.WithContext(e.ctx)
	req.Header.Set("X-Request-ID", e.requestID)

	resp, err := e.next.Do(req)
	if err != nil {
		e.doErr = err
		return nil, err
	}
	e.status = resp.StatusCode
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	if resp.Header.Get("Content-Type") == "" {
		resp.Header.Set("Content-Type", "text/xml; charset=utf-8")
	}
	resp.Body = limitedBody{Reader: io.LimitReader(resp.Body, maxReplyBytes), Closer: resp.Body}
	return resp, nil
}

type limitedBody struct {
	io.Reader
	io.Closer
}

// classify maps the outcome of a call onto the transport taxonomy. It
// returns nil when the reply body was decoded and should be interpreted.
func classify(ctx context.Context, op transport.Operation, ex *exchange, err error) error {
	if ex.doErr != nil {
		return classifyDoError(ctx, op, ex.doErr)
	}

	switch status := ex.status; {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return transport.NewError(transport.CategoryAuthentication, op,
			fmt.Sprintf("authentication failed: %d", status), nil)
	case status == http.StatusTooManyRequests,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout:
		return transport.NewError(transport.CategoryUnavailable, op,
			fmt.Sprintf("vault unavailable: %d", status), nil)
	case status != 0 && status != http.StatusInternalServerError && (status < 200 || status > 299):
		return transport.NewError(transport.CategoryRemoteFault, op,
			fmt.Sprintf("unexpected status code: %d", status), nil)
	}

	if err == nil {
		return nil
	}

	var fault *gowsdl.SOAPFault
	if errors.As(err, &fault) {
		if isAuthenticationFault(fault) {
			return transport.NewError(transport.CategoryAuthentication, op, "credentials rejected", err)
		}
		return transport.NewError(transport.CategoryRemoteFault, op, "vault fault", err)
	}
	if ctx.Err() != nil {
		return classifyDoError(ctx, op, err)
	}
	// SOAP 1.1 faults travel with a 500; a 500 without one is a server error.
	if ex.status == http.StatusInternalServerError {
		return transport.NewError(transport.CategoryUnavailable, op,
			fmt.Sprintf("vault server error: %d", ex.status), err)
	}
	return transport.NewError(transport.CategoryBadReply, op, "failed to parse response",
		errors.Join(transport.ErrMalformedReply, err))
}

func classifyDoError(ctx context.Context, op transport.Operation, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return transport.NewError(transport.CategoryTimeout, op, "request timeout", err)
	case errors.Is(ctx.Err(), context.Canceled):
		return transport.NewError(transport.CategoryCanceled, op, "request canceled", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return transport.NewError(transport.CategoryTimeout, op, "request timeout", err)
	}
	return transport.NewError(transport.CategoryUnavailable, op, "failed to execute request", err)
}

var _ transport.Transport = (*Client)(nil)
