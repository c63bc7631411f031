package extension

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/checkout/observability"
	"github.com/xraph/checkout/store/memory"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{Currency: "usd"})

	assert.Equal(t, "usd", cfg.Currency)
	assert.Equal(t, "5", cfg.TaxRatePercent)
	assert.Equal(t, 10*time.Minute, cfg.ExitTokenTTL)
	assert.Equal(t, 15*time.Minute, cfg.OrderTTL)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, 100, cfg.SweepBatch)
}

func TestMergeConfigurations(t *testing.T) {
	yaml := Config{TaxRatePercent: "18", OrderTTL: 5 * time.Minute}
	programmatic := Config{
		DisableMigrate: true,
		TaxRatePercent: "12",
		Currency:       "eur",
		OrderTTL:       time.Hour,
	}

	cfg := mergeConfigurations(yaml, programmatic)

	assert.True(t, cfg.DisableMigrate)
	assert.Equal(t, "18", cfg.TaxRatePercent, "file config wins")
	assert.Equal(t, 5*time.Minute, cfg.OrderTTL, "file config wins")
	assert.Equal(t, "eur", cfg.Currency, "programmatic fills gaps")
	assert.Equal(t, 10*time.Minute, cfg.ExitTokenTTL, "defaults fill the rest")
}

func TestResolveStore(t *testing.T) {
	t.Run("memory without database", func(t *testing.T) {
		e := New()
		s, err := e.resolveStore()
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, s)
	})
}

func TestBuildCheckoutOpts(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		e := New(WithDisableMigrate())
		e.config = mergeWithDefaults(e.config)

		opts, err := e.buildCheckoutOpts()
		require.NoError(t, err)
		assert.Len(t, opts, 6)
	})

	t.Run("bad tax rate", func(t *testing.T) {
		e := New(WithTaxRatePercent("five"))
		e.config = mergeWithDefaults(e.config)

		_, err := e.buildCheckoutOpts()
		assert.Error(t, err)
	})
}

type nopMetric struct{}

func (nopMetric) Inc()            {}
func (nopMetric) Add(float64)     {}
func (nopMetric) Observe(float64) {}

type nopFactory struct{}

func (nopFactory) Counter(string) observability.Counter     { return nopMetric{} }
func (nopFactory) Histogram(string) observability.Histogram { return nopMetric{} }

func TestWithMetrics(t *testing.T) {
	e := New(WithMetrics(nopFactory{}))
	e.config = mergeWithDefaults(e.config)

	opts, err := e.buildCheckoutOpts()
	require.NoError(t, err)
	assert.Len(t, opts, 6, "five config options plus the metrics plugin")
}
