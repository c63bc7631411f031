// Package breaker wraps a payment provider in a circuit breaker so a failing
// gateway is not hammered while it recovers. While the breaker is open,
// Initiate fails fast with ErrOpen.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/xraph/checkout/payment"
)

// ErrOpen is returned while the breaker rejects calls.
var ErrOpen = errors.New("breaker: payment provider unavailable")

// Compile-time interface check.
var _ payment.AsyncProvider = (*Provider)(nil)

// Provider is a payment.Provider guarded by a circuit breaker.
type Provider struct {
	inner  payment.Provider
	cb     *gobreaker.CircuitBreaker[*payment.Handle]
	logger *slog.Logger
}

// Settings tune the breaker.
type Settings struct {
	// ConsecutiveFailures trips the breaker (default: 5).
	ConsecutiveFailures uint32
	// Timeout is how long the breaker stays open before probing (default: 30s).
	Timeout time.Duration
	// HalfOpenRequests is the number of probes allowed while half-open (default: 1).
	HalfOpenRequests uint32
}

// Wrap guards inner with a circuit breaker.
func Wrap(inner payment.Provider, s Settings, logger *slog.Logger) *Provider {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.Timeout == 0 {
		s.Timeout = 30 * time.Second
	}
	if s.HalfOpenRequests == 0 {
		s.HalfOpenRequests = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Provider{inner: inner, logger: logger}
	p.cb = gobreaker.NewCircuitBreaker[*payment.Handle](gobreaker.Settings{
		Name:        inner.Name(),
		MaxRequests: s.HalfOpenRequests,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		// A caller giving up is not a gateway failure.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("payment provider breaker state changed",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})
	return p
}

// Name implements payment.Provider.
func (p *Provider) Name() string { return p.inner.Name() }

// Attach implements payment.AsyncProvider by forwarding to the wrapped
// provider when it confirms in process.
func (p *Provider) Attach(c payment.Confirmer) {
	if ap, ok := p.inner.(payment.AsyncProvider); ok {
		ap.Attach(c)
	}
}

// State reports the breaker state: "closed", "half-open" or "open".
func (p *Provider) State() string { return p.cb.State().String() }

// Initiate implements payment.Provider.
func (p *Provider) Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.Handle, error) {
	h, err := p.cb.Execute(func() (*payment.Handle, error) {
		return p.inner.Initiate(ctx, req)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	return h, err
}
