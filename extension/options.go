package extension

import (
	"time"

	"github.com/xraph/grove"

	checkout "github.com/xraph/checkout"
	"github.com/xraph/checkout/catalog"
	"github.com/xraph/checkout/observability"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/plugin"
	"github.com/xraph/checkout/store"
)

// Option configures the checkout Forge extension.
type Option func(*Extension)

// WithStore sets the store for the checkout engine.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB builds the store from a grove database. backend selects the
// store implementation and must match the driver db was opened with.
func WithGroveDB(db *grove.DB, backend Backend) Option {
	return func(e *Extension) {
		e.groveDB = db
		e.backend = backend
	}
}

// WithCatalog sets the product catalog.
func WithCatalog(c catalog.Catalog) Option {
	return func(e *Extension) {
		e.checkoutOpts = append(e.checkoutOpts, checkout.WithCatalog(c))
	}
}

// WithPaymentProvider sets the outbound payment provider.
func WithPaymentProvider(p payment.Provider) Option {
	return func(e *Extension) {
		e.checkoutOpts = append(e.checkoutOpts, checkout.WithPaymentProvider(p))
	}
}

// WithCheckoutOption passes a checkout.Option through to the underlying engine.
func WithCheckoutOption(opt checkout.Option) Option {
	return func(e *Extension) {
		e.checkoutOpts = append(e.checkoutOpts, opt)
	}
}

// WithMetrics records checkout lifecycle metrics through factory.
func WithMetrics(factory observability.MetricFactory) Option {
	return WithPlugin(observability.NewMetricsExtension(factory))
}

// WithPlugin registers a checkout plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.checkoutOpts = append(e.checkoutOpts, checkout.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}

// WithTaxRatePercent sets the flat tax rate, e.g. "5" or "12.5".
func WithTaxRatePercent(rate string) Option {
	return func(e *Extension) { e.config.TaxRatePercent = rate }
}

// WithCurrency sets the store currency.
func WithCurrency(currency string) Option {
	return func(e *Extension) { e.config.Currency = currency }
}

// WithExitTokenTTL sets the exit token lifetime.
func WithExitTokenTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.ExitTokenTTL = d }
}

// WithOrderTTL sets how long orders may wait for payment.
func WithOrderTTL(d time.Duration) Option {
	return func(e *Extension) { e.config.OrderTTL = d }
}

// WithSweepInterval sets how often expired pending orders are cancelled.
func WithSweepInterval(d time.Duration) Option {
	return func(e *Extension) { e.config.SweepInterval = d }
}
