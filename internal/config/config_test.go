package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookup(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{"JWT_SECRET": "s3cret"}))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "5", cfg.TaxRatePercent.String())
	assert.Equal(t, "inr", cfg.Currency)
	assert.Equal(t, 10*time.Minute, cfg.ExitTokenTTL)
	assert.Equal(t, 15*time.Minute, cfg.OrderTTL)
	assert.Equal(t, PaymentModeDemo, cfg.PaymentMode)
	assert.Equal(t, 3*time.Second, cfg.DemoPaymentDelay)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "checkout-events", cfg.KafkaTopic)
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(lookup(map[string]string{
		"JWT_SECRET":            "s3cret",
		"TAX_RATE_PERCENT":      "12.5",
		"CURRENCY":              "USD",
		"EXIT_TOKEN_TTL":        "5m",
		"PAYMENT_MODE":          "stripe",
		"STRIPE_SECRET_KEY":     "sk_test",
		"STRIPE_WEBHOOK_SECRET": "whsec",
		"KAFKA_BROKERS":         "k1:9092, k2:9092,",
	}))
	require.NoError(t, err)

	assert.Equal(t, "12.5", cfg.TaxRatePercent.String())
	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, 5*time.Minute, cfg.ExitTokenTTL)
	assert.Equal(t, PaymentModeStripe, cfg.PaymentMode)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
}

func TestFromEnvErrors(t *testing.T) {
	tests := []struct {
		name string
		vars map[string]string
		want string
	}{
		{"missing secret", map[string]string{}, "JWT_SECRET"},
		{"bad tax", map[string]string{"JWT_SECRET": "x", "TAX_RATE_PERCENT": "-1"}, "TAX_RATE_PERCENT"},
		{"bad ttl", map[string]string{"JWT_SECRET": "x", "ORDER_TTL": "soon"}, "ORDER_TTL"},
		{"bad failure rate", map[string]string{"JWT_SECRET": "x", "DEMO_FAILURE_RATE": "150"}, "DEMO_FAILURE_RATE"},
		{"stripe without keys", map[string]string{"JWT_SECRET": "x", "PAYMENT_MODE": "stripe"}, "STRIPE_SECRET_KEY"},
		{"unknown mode", map[string]string{"JWT_SECRET": "x", "PAYMENT_MODE": "cash"}, "PAYMENT_MODE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromEnv(lookup(tt.vars))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("JWT_SECRET=from-file\n"), 0o600))
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.JWTSecret)
}
