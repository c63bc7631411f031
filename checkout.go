package checkout

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/checkout/catalog"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/plugin"
	"github.com/xraph/checkout/pricing"
	"github.com/xraph/checkout/store"
)

// Defaults applied by New.
const (
	DefaultTaxRatePercent = "5"
	DefaultCurrency       = "inr"
	DefaultExitTokenTTL   = 10 * time.Minute
	DefaultOrderTTL       = 15 * time.Minute
	DefaultSweepInterval  = time.Minute
	DefaultSweepBatch     = 100
	DefaultIssueAttempts  = 3
)

// maxRaceAttempts bounds how often an operation rereads and retries after
// losing a compare-and-set to a concurrent caller.
const maxRaceAttempts = 5

// Engine is the self-checkout workflow engine. It turns carts into priced
// orders, reconciles payment confirmations and issues and verifies exit
// tokens. All state lives in the store; an Engine may be shared freely
// between goroutines and several Engines may share one store.
type Engine struct {
	store    store.Store
	catalog  catalog.Catalog
	provider payment.Provider
	plugins  *plugin.Registry
	logger   *slog.Logger
	clock    func() time.Time

	// Background workers
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	// Configuration
	policy               pricing.Policy
	exitTokenTTL         time.Duration
	orderTTL             time.Duration
	sweepInterval        time.Duration
	sweepBatch           int
	issueAttempts        uint
	issueInitialInterval time.Duration
	issueMaxInterval     time.Duration
	skipMigrate          bool
}

// New creates a new Engine backed by s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:                s,
		catalog:              catalog.NewMemory(),
		plugins:              plugin.NewRegistry(),
		logger:               slog.Default(),
		clock:                time.Now,
		stopChan:             make(chan struct{}),
		policy:               pricing.MustPolicy(DefaultTaxRatePercent, DefaultCurrency),
		exitTokenTTL:         DefaultExitTokenTTL,
		orderTTL:             DefaultOrderTTL,
		sweepInterval:        DefaultSweepInterval,
		sweepBatch:           DefaultSweepBatch,
		issueAttempts:        DefaultIssueAttempts,
		issueInitialInterval: 500 * time.Millisecond,
		issueMaxInterval:     2 * time.Second,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCatalog sets the product catalog consulted when items are added.
func WithCatalog(c catalog.Catalog) Option {
	return func(e *Engine) {
		e.catalog = c
	}
}

// WithPaymentProvider sets the outbound payment provider.
func WithPaymentProvider(p payment.Provider) Option {
	return func(e *Engine) {
		e.provider = p
	}
}

// WithPricingPolicy replaces the tax rate and currency.
func WithPricingPolicy(p pricing.Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithTaxRate sets the tax percentage applied to every subtotal.
func WithTaxRate(percent decimal.Decimal) Option {
	return func(e *Engine) {
		e.policy.RatePercent = percent
	}
}

// WithCurrency sets the currency every cart and order is priced in.
func WithCurrency(currency string) Option {
	return func(e *Engine) {
		e.policy.Currency = currency
	}
}

// WithExitTokenTTL sets how long an exit token stays valid.
func WithExitTokenTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.exitTokenTTL = ttl
		}
	}
}

// WithOrderTTL sets how long a pending order waits for payment before the
// sweeper cancels it. Zero disables expiry.
func WithOrderTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.orderTTL = ttl
	}
}

// WithExpirySweep configures the pending-order sweeper. An interval of zero
// disables it.
func WithExpirySweep(interval time.Duration, batch int) Option {
	return func(e *Engine) {
		e.sweepInterval = interval
		if batch > 0 {
			e.sweepBatch = batch
		}
	}
}

// WithIssueRetry configures IssueExitTokenWithRetry.
func WithIssueRetry(attempts uint, initial, maxInterval time.Duration) Option {
	return func(e *Engine) {
		if attempts > 0 {
			e.issueAttempts = attempts
		}
		if initial > 0 {
			e.issueInitialInterval = initial
		}
		if maxInterval > 0 {
			e.issueMaxInterval = maxInterval
		}
	}
}

// WithoutMigrate stops Start from migrating the store. Use it when the schema
// is managed outside the engine.
func WithoutMigrate() Option {
	return func(e *Engine) {
		e.skipMigrate = true
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// Store returns the engine's store.
func (e *Engine) Store() store.Store { return e.store }

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Policy returns the pricing policy carts and orders are priced under.
func (e *Engine) Policy() pricing.Policy { return e.policy }

// Logger returns the engine's logger.
func (e *Engine) Logger() *slog.Logger { return e.logger }

// Start migrates the store, initialises plugins and starts the pending-order
// sweeper.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.policy.Validate(); err != nil {
		return err
	}

	if !e.skipMigrate {
		if err := e.store.Migrate(ctx); err != nil {
			return err
		}
	}

	if ap, ok := e.provider.(payment.AsyncProvider); ok {
		ap.Attach(e)
	}

	e.plugins.EmitInit(ctx, e)

	if e.sweepInterval > 0 && e.orderTTL > 0 {
		e.wg.Add(1)
		go e.expirySweepWorker(context.WithoutCancel(ctx))
	}

	e.logger.Info("checkout engine started",
		"tax_rate", e.policy.RatePercent.String(),
		"currency", e.policy.Currency,
		"exit_token_ttl", e.exitTokenTTL,
		"order_ttl", e.orderTTL,
		"sweep_interval", e.sweepInterval,
	)

	return nil
}

// Stop shuts down background workers and closes the store.
func (e *Engine) Stop() error {
	e.stopOnce.Do(func() { close(e.stopChan) })
	e.wg.Wait()

	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Health pings the store.
func (e *Engine) Health(ctx context.Context) error {
	return e.store.Ping(ctx)
}

func (e *Engine) now() time.Time {
	return e.clock().UTC()
}

// expirySweepWorker cancels pending orders that outlived their payment window.
func (e *Engine) expirySweepWorker(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.stopChan:
			return

		case <-ticker.C:
			start := time.Now()
			n, err := e.ExpirePendingOrders(ctx)
			if err != nil {
				e.logger.Error("failed to sweep expired orders", "error", err)
				continue
			}
			if n > 0 {
				e.logger.Debug("swept expired orders",
					"cancelled", n,
					"elapsed_ms", time.Since(start).Milliseconds(),
				)
			}
		}
	}
}
