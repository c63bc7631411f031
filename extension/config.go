package extension

import "time"

// Config holds the checkout extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.checkout" or "checkout" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// TaxRatePercent is the flat tax rate applied to every order, as a
	// decimal string such as "5" or "12.5" (default: "5").
	TaxRatePercent string `json:"tax_rate_percent" mapstructure:"tax_rate_percent" yaml:"tax_rate_percent"`

	// Currency is the ISO 4217 code all prices are held in (default: "inr").
	Currency string `json:"currency" mapstructure:"currency" yaml:"currency"`

	// ExitTokenTTL is how long a freshly issued exit token stays valid (default: 10m).
	ExitTokenTTL time.Duration `json:"exit_token_ttl" mapstructure:"exit_token_ttl" yaml:"exit_token_ttl"`

	// OrderTTL is how long an order may wait for payment before the sweeper
	// cancels it (default: 15m).
	OrderTTL time.Duration `json:"order_ttl" mapstructure:"order_ttl" yaml:"order_ttl"`

	// SweepInterval controls how often expired pending orders are cancelled (default: 1m).
	SweepInterval time.Duration `json:"sweep_interval" mapstructure:"sweep_interval" yaml:"sweep_interval"`

	// SweepBatch caps the orders cancelled per sweep (default: 100).
	SweepBatch int `json:"sweep_batch" mapstructure:"sweep_batch" yaml:"sweep_batch"`

	// MongoTransactions settles orders and payments inside a multi-document
	// transaction. Needs a replica set or sharded cluster.
	MongoTransactions bool `json:"mongo_transactions" mapstructure:"mongo_transactions" yaml:"mongo_transactions"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		TaxRatePercent: "5",
		Currency:       "inr",
		ExitTokenTTL:   10 * time.Minute,
		OrderTTL:       15 * time.Minute,
		SweepInterval:  time.Minute,
		SweepBatch:     100,
	}
}
