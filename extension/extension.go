// Package extension provides the Forge extension adapter for the checkout
// engine.
//
// It implements the forge.Extension interface to integrate checkout
// into a Forge application with DI registration, configuration loading
// and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.checkout" or "checkout" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	checkout "github.com/xraph/checkout"
	"github.com/xraph/checkout/store"
	"github.com/xraph/checkout/store/memory"
	mongostore "github.com/xraph/checkout/store/mongo"
	pgstore "github.com/xraph/checkout/store/postgres"
	sqlitestore "github.com/xraph/checkout/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "checkout"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Self-checkout engine: carts, orders, payments and exit tokens"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Backend names the grove driver a database was opened with.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
	BackendMongo    Backend = "mongo"
)

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts the checkout engine as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config       Config
	engine       *checkout.Engine
	store        store.Store
	groveDB      *grove.DB
	backend      Backend
	checkoutOpts []checkout.Option
}

// New creates a new checkout Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying checkout engine.
// This is nil until Register is called.
func (e *Extension) Engine() *checkout.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the checkout engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := e.resolveStore()
		if err != nil {
			return err
		}
		e.store = s
	}

	opts, err := e.buildCheckoutOpts()
	if err != nil {
		return err
	}

	e.engine = checkout.New(e.store, opts...)

	return vessel.Provide(fapp.Container(), func() (*checkout.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("checkout: extension not initialized")
	}

	if err := e.engine.Start(ctx); err != nil {
		return err
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("checkout: store not initialized")
	}
	return e.store.Ping(ctx)
}

// resolveStore picks the grove-backed store matching the configured backend,
// or the memory store when no database was supplied.
func (e *Extension) resolveStore() (store.Store, error) {
	if e.groveDB == nil {
		return memory.New(), nil
	}

	switch e.backend {
	case BackendPostgres:
		return pgstore.New(e.groveDB), nil
	case BackendSQLite:
		return sqlitestore.New(e.groveDB), nil
	case BackendMongo:
		var opts []mongostore.Option
		if e.config.MongoTransactions {
			opts = append(opts, mongostore.WithTransactions())
		}
		return mongostore.New(e.groveDB, opts...), nil
	default:
		return nil, fmt.Errorf("checkout: unknown store backend %q", e.backend)
	}
}

// buildCheckoutOpts constructs checkout.Option values from the resolved config.
func (e *Extension) buildCheckoutOpts() ([]checkout.Option, error) {
	opts := make([]checkout.Option, 0, len(e.checkoutOpts)+6)

	rate, err := decimal.NewFromString(e.config.TaxRatePercent)
	if err != nil {
		return nil, fmt.Errorf("checkout: invalid tax_rate_percent %q: %w", e.config.TaxRatePercent, err)
	}

	opts = append(opts,
		checkout.WithTaxRate(rate),
		checkout.WithCurrency(e.config.Currency),
		checkout.WithExitTokenTTL(e.config.ExitTokenTTL),
		checkout.WithOrderTTL(e.config.OrderTTL),
		checkout.WithExpirySweep(e.config.SweepInterval, e.config.SweepBatch),
	)

	if e.config.DisableMigrate {
		opts = append(opts, checkout.WithoutMigrate())
	}

	// Append any pass-through checkout options.
	opts = append(opts, e.checkoutOpts...)

	return opts, nil
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("checkout: configuration is required but not found in config files; " +
				"ensure 'extensions.checkout' or 'checkout' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("checkout: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("tax_rate_percent", e.config.TaxRatePercent),
		forge.F("currency", e.config.Currency),
		forge.F("exit_token_ttl", e.config.ExitTokenTTL),
		forge.F("order_ttl", e.config.OrderTTL),
		forge.F("sweep_interval", e.config.SweepInterval),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.checkout", "checkout"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("checkout: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("checkout: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.TaxRatePercent == "" {
		cfg.TaxRatePercent = defaults.TaxRatePercent
	}
	if cfg.Currency == "" {
		cfg.Currency = defaults.Currency
	}
	if cfg.ExitTokenTTL == 0 {
		cfg.ExitTokenTTL = defaults.ExitTokenTTL
	}
	if cfg.OrderTTL == 0 {
		cfg.OrderTTL = defaults.OrderTTL
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = defaults.SweepInterval
	}
	if cfg.SweepBatch == 0 {
		cfg.SweepBatch = defaults.SweepBatch
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence; programmatic values fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	if yamlConfig.TaxRatePercent == "" {
		yamlConfig.TaxRatePercent = programmaticConfig.TaxRatePercent
	}
	if yamlConfig.Currency == "" {
		yamlConfig.Currency = programmaticConfig.Currency
	}
	if yamlConfig.ExitTokenTTL == 0 {
		yamlConfig.ExitTokenTTL = programmaticConfig.ExitTokenTTL
	}
	if yamlConfig.OrderTTL == 0 {
		yamlConfig.OrderTTL = programmaticConfig.OrderTTL
	}
	if yamlConfig.SweepInterval == 0 {
		yamlConfig.SweepInterval = programmaticConfig.SweepInterval
	}
	if yamlConfig.SweepBatch == 0 {
		yamlConfig.SweepBatch = programmaticConfig.SweepBatch
	}

	// Fill remaining zeros with defaults.
	return mergeWithDefaults(yamlConfig)
}
