// Package config loads the checkout daemon's settings from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Payment modes.
const (
	PaymentModeDemo   = "demo"
	PaymentModeStripe = "stripe"
)

// Config holds daemon settings.
type Config struct {
	HTTPAddr  string
	LogLevel  string
	JWTSecret string

	TaxRatePercent decimal.Decimal
	Currency       string
	ExitTokenTTL   time.Duration
	OrderTTL       time.Duration

	PaymentMode         string
	DemoPaymentDelay    time.Duration
	DemoFailureRate     int
	StripeSecretKey     string
	StripeWebhookSecret string
	WebhookSecret       string

	RedisAddr    string
	KafkaBrokers []string
	KafkaTopic   string
}

// Load reads .env files (when present) and then the process environment.
// Variables already set in the environment win over .env values.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}

	var errs []error
	duration := func(key, def string) time.Duration {
		d, err := time.ParseDuration(env(key, def))
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("config: %s must be a positive duration", key))
		}
		return d
	}

	cfg := &Config{
		HTTPAddr:            env("HTTP_ADDR", ":8080"),
		LogLevel:            env("LOG_LEVEL", "info"),
		JWTSecret:           env("JWT_SECRET", ""),
		Currency:            strings.ToLower(env("CURRENCY", "inr")),
		ExitTokenTTL:        duration("EXIT_TOKEN_TTL", "10m"),
		OrderTTL:            duration("ORDER_TTL", "15m"),
		PaymentMode:         strings.ToLower(env("PAYMENT_MODE", PaymentModeDemo)),
		DemoPaymentDelay:    duration("DEMO_PAYMENT_DELAY", "3s"),
		StripeSecretKey:     env("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: env("STRIPE_WEBHOOK_SECRET", ""),
		WebhookSecret:       env("WEBHOOK_SECRET", ""),
		RedisAddr:           env("REDIS_ADDR", ""),
		KafkaTopic:          env("KAFKA_TOPIC", "checkout-events"),
	}

	if cfg.JWTSecret == "" {
		errs = append(errs, errors.New("config: JWT_SECRET is required"))
	}

	rate, err := decimal.NewFromString(env("TAX_RATE_PERCENT", "5"))
	if err != nil || rate.IsNegative() {
		errs = append(errs, errors.New("config: TAX_RATE_PERCENT must be a non-negative number"))
	}
	cfg.TaxRatePercent = rate

	failureRate, err := strconv.Atoi(env("DEMO_FAILURE_RATE", "0"))
	if err != nil || failureRate < 0 || failureRate > 100 {
		errs = append(errs, errors.New("config: DEMO_FAILURE_RATE must be between 0 and 100"))
	}
	cfg.DemoFailureRate = failureRate

	switch cfg.PaymentMode {
	case PaymentModeDemo:
	case PaymentModeStripe:
		if cfg.StripeSecretKey == "" || cfg.StripeWebhookSecret == "" {
			errs = append(errs, errors.New("config: stripe mode needs STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET"))
		}
	default:
		errs = append(errs, fmt.Errorf("config: unknown PAYMENT_MODE %q", cfg.PaymentMode))
	}

	for _, b := range strings.Split(env("KAFKA_BROKERS", ""), ",") {
		if b = strings.TrimSpace(b); b != "" {
			cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}
