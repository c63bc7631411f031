// Package demo provides a payment provider that settles every attempt on its
// own after a delay, for showcases and local development. Confirmations are
// delivered through the same Confirmer path a real webhook takes.
package demo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/checkout/payment"
)

// Name is the provider name recorded on payments.
const Name = "demo"

// Compile-time interface check.
var _ payment.AsyncProvider = (*Provider)(nil)

// Provider simulates a gateway. Each Initiate schedules one confirmation
// event, success or failure, after the configured delay.
type Provider struct {
	delay           time.Duration
	failureRate     int
	confirmAttempts uint
	logger          *slog.Logger
	roll            func() int

	mu        sync.RWMutex
	confirmer payment.Confirmer

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// Option configures a Provider.
type Option func(*Provider)

// WithDelay sets how long the provider waits before confirming.
func WithDelay(d time.Duration) Option {
	return func(p *Provider) { p.delay = d }
}

// WithFailureRate sets the percentage (0-100) of attempts that fail.
func WithFailureRate(percent int) Option {
	return func(p *Provider) { p.failureRate = min(max(percent, 0), 100) }
}

// WithConfirmAttempts bounds how often delivery of a confirmation is retried
// while the engine has not yet recorded the payment.
func WithConfirmAttempts(n uint) Option {
	return func(p *Provider) {
		if n > 0 {
			p.confirmAttempts = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) { p.logger = logger }
}

// New creates a demo provider. Defaults: 3s delay, no failures.
func New(opts ...Option) *Provider {
	p := &Provider{
		delay:           3 * time.Second,
		confirmAttempts: 5,
		logger:          slog.Default(),
		roll:            func() int { return rand.IntN(100) + 1 },
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements payment.Provider.
func (p *Provider) Name() string { return Name }

// Attach implements payment.AsyncProvider.
func (p *Provider) Attach(c payment.Confirmer) {
	p.mu.Lock()
	p.confirmer = c
	p.mu.Unlock()
}

// Initiate implements payment.Provider. It answers immediately and confirms
// in the background.
func (p *Provider) Initiate(_ context.Context, req payment.InitiateRequest) (*payment.Handle, error) {
	p.mu.RLock()
	c := p.confirmer
	p.mu.RUnlock()
	if c == nil {
		return nil, errors.New("demo: provider is not attached to an engine")
	}

	txn := fmt.Sprintf("DEMO_TXN_%010d", rand.Int64N(10_000_000_000))

	ev := payment.Event{
		Provider:      Name,
		Reference:     req.Reference,
		OrderID:       req.OrderID,
		Amount:        req.Amount,
		Status:        payment.EventSuccess,
		TransactionID: txn,
	}
	if p.failureRate > 0 && p.roll() <= p.failureRate {
		ev.Status = payment.EventFailure
		ev.Reason = "declined by demo gateway"
	}

	p.wg.Add(1)
	go p.deliver(c, ev)

	return &payment.Handle{
		Handle: txn,
		RedirectURL: fmt.Sprintf("upi://pay?pa=merchant@upi&pn=Checkout&am=%s&cu=%s&tn=%s",
			req.Amount.FormatMajor(), req.Amount.Currency, txn),
	}, nil
}

// Close stops pending confirmations and waits for in-flight deliveries.
func (p *Provider) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

func (p *Provider) deliver(c payment.Confirmer, ev payment.Event) {
	defer p.wg.Done()

	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-p.stop:
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-p.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = time.Second

	// Initiate returns before the engine records the payment, so the first
	// delivery can race ahead of it.
	_, err := backoff.Retry(ctx, func() (*payment.Outcome, error) {
		out, err := c.ConfirmPayment(ctx, ev)
		if errors.Is(err, payment.ErrNotFound) {
			return nil, err
		}
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		return out, nil
	}, backoff.WithBackOff(b), backoff.WithMaxTries(p.confirmAttempts))
	if err != nil {
		p.logger.Warn("demo: confirmation not delivered",
			"reference", ev.Reference,
			"order_id", ev.OrderID.String(),
			"error", err,
		)
		return
	}

	p.logger.Debug("demo: confirmation delivered",
		"reference", ev.Reference,
		"status", string(ev.Status),
	)
}
