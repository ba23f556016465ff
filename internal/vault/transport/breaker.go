package transport

import (
	"context"
	"errors"
	"log/slog"

	"cardvault/pkg/platform/circuit"
)

// BreakerTransport refuses calls while its breaker is open. Only transient
// transport errors count against the breaker; business rejections are
// successful calls as far as the transport is concerned.
type BreakerTransport struct {
	next    Transport
	breaker *circuit.Breaker
	logger  *slog.Logger
}

// BreakerOption configures a BreakerTransport.
type BreakerOption func(*BreakerTransport)

// WithBreakerLogger logs breaker state transitions.
func WithBreakerLogger(logger *slog.Logger) BreakerOption {
	return func(t *BreakerTransport) {
		t.logger = logger
	}
}

// WithBreaker wraps next with breaker.
func WithBreaker(next Transport, breaker *circuit.Breaker, opts ...BreakerOption) *BreakerTransport {
	t := &BreakerTransport{next: next, breaker: breaker}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Invoke forwards to the wrapped transport unless the circuit is open.
func (t *BreakerTransport) Invoke(ctx context.Context, op Operation, req Request) (*Reply, error) {
	if !t.breaker.Allow() {
		return nil, NewError(CategoryCircuitOpen, op, "call refused", ErrCircuitOpen)
	}

	reply, err := t.next.Invoke(ctx, op, req)
	if err != nil {
		if IsRetryable(err) {
			t.logChange(t.breaker.RecordFailure(), op, err)
		}
		return nil, err
	}

	t.logChange(t.breaker.RecordSuccess(), op, nil)
	return reply, nil
}

func (t *BreakerTransport) logChange(change circuit.StateChange, op Operation, err error) {
	if t.logger == nil {
		return
	}
	switch {
	case change.Opened:
		t.logger.Warn("vault circuit opened",
			"breaker", t.breaker.Name(),
			"operation", string(op),
			"error", err,
		)
	case change.Closed:
		t.logger.Info("vault circuit closed",
			"breaker", t.breaker.Name(),
			"operation", string(op),
		)
	}
}

// IsCircuitOpen reports whether err was produced by an open breaker.
func IsCircuitOpen(err error) bool {
	return errors.Is(err, ErrCircuitOpen)
}

var _ Transport = (*BreakerTransport)(nil)
