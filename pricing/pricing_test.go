package pricing_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/checkout/pricing"
	"github.com/xraph/checkout/types"
)

func TestCompute(t *testing.T) {
	tests := []struct {
		name     string
		rate     string
		lines    []pricing.Line
		subtotal int64
		tax      int64
		total    int64
	}{
		{
			name: "two lines at 18 percent",
			rate: "18",
			lines: []pricing.Line{
				{UnitPrice: types.INR(100), Quantity: 2},
				{UnitPrice: types.INR(50), Quantity: 3},
			},
			subtotal: 350, tax: 63, total: 413,
		},
		{
			name:     "empty",
			rate:     "18",
			subtotal: 0, tax: 0, total: 0,
		},
		{
			name:     "half rounds up",
			rate:     "5",
			lines:    []pricing.Line{{UnitPrice: types.INR(10), Quantity: 1}},
			subtotal: 10, tax: 1, total: 11,
		},
		{
			name:     "below half rounds down",
			rate:     "5",
			lines:    []pricing.Line{{UnitPrice: types.INR(9), Quantity: 1}},
			subtotal: 9, tax: 0, total: 9,
		},
		{
			name:     "fractional rate",
			rate:     "12.5",
			lines:    []pricing.Line{{UnitPrice: types.INR(1999), Quantity: 3}},
			subtotal: 5997, tax: 750, total: 6747,
		},
		{
			name:     "zero rate",
			rate:     "0",
			lines:    []pricing.Line{{UnitPrice: types.INR(1234), Quantity: 1}},
			subtotal: 1234, tax: 0, total: 1234,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pricing.Compute(tt.lines, pricing.MustPolicy(tt.rate, "inr"))
			assert.Equal(t, tt.subtotal, got.Subtotal.Amount)
			assert.Equal(t, tt.tax, got.Tax.Amount)
			assert.Equal(t, tt.total, got.Total.Amount)
			assert.Equal(t, got.Subtotal.Add(got.Tax), got.Total)
			assert.Equal(t, "inr", got.Total.Currency)
		})
	}
}

func TestComputeAggregatesWithinOneMinorUnit(t *testing.T) {
	policy := pricing.MustPolicy("18", "inr")
	lines := []pricing.Line{
		{UnitPrice: types.INR(333), Quantity: 1},
		{UnitPrice: types.INR(777), Quantity: 3},
		{UnitPrice: types.INR(101), Quantity: 7},
		{UnitPrice: types.INR(5), Quantity: 11},
	}

	whole := pricing.Compute(lines, policy)

	var subtotal, tax int64
	for _, l := range lines {
		part := pricing.Compute([]pricing.Line{l}, policy)
		subtotal += part.Subtotal.Amount
		tax += part.Tax.Amount
	}

	assert.Equal(t, whole.Subtotal.Amount, subtotal)
	drift := whole.Tax.Amount - tax
	assert.LessOrEqual(t, drift, int64(len(lines)))
	assert.GreaterOrEqual(t, drift, -int64(len(lines)))
}

func TestNewPolicy(t *testing.T) {
	p, err := pricing.NewPolicy(" 18 ", "INR")
	require.NoError(t, err)
	assert.True(t, p.RatePercent.Equal(decimal.NewFromInt(18)))
	assert.Equal(t, "inr", p.Currency)

	_, err = pricing.NewPolicy("abc", "inr")
	assert.Error(t, err)

	_, err = pricing.NewPolicy("-1", "inr")
	assert.Error(t, err)

	_, err = pricing.NewPolicy("101", "inr")
	assert.Error(t, err)

	_, err = pricing.NewPolicy("5", "")
	assert.Error(t, err)
}

func TestRoundHalfUp(t *testing.T) {
	assert.Equal(t, int64(3), pricing.RoundHalfUp(decimal.RequireFromString("2.5")))
	assert.Equal(t, int64(2), pricing.RoundHalfUp(decimal.RequireFromString("2.49")))
	assert.Equal(t, int64(63), pricing.RoundHalfUp(decimal.RequireFromString("63.0")))
}

func TestComputeChecked(t *testing.T) {
	p := pricing.MustPolicy("18", "inr")

	totals, err := pricing.ComputeChecked([]pricing.Line{
		{UnitPrice: types.INR(100), Quantity: 2},
		{UnitPrice: types.INR(50), Quantity: 3},
	}, p)
	require.NoError(t, err)
	assert.Equal(t, pricing.Compute([]pricing.Line{
		{UnitPrice: types.INR(100), Quantity: 2},
		{UnitPrice: types.INR(50), Quantity: 3},
	}, p), totals)

	tests := []struct {
		name  string
		lines []pricing.Line
	}{
		{"line wraps", []pricing.Line{{UnitPrice: types.INR(100), Quantity: 1 << 62}}},
		{"subtotal wraps", []pricing.Line{
			{UnitPrice: types.INR(1 << 61), Quantity: 3},
			{UnitPrice: types.INR(1 << 61), Quantity: 2},
		}},
		{"tax pushes total over", []pricing.Line{{UnitPrice: types.INR(8_000_000_000_000_000_000), Quantity: 1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := pricing.ComputeChecked(tt.lines, p)
			assert.ErrorIs(t, err, types.ErrOverflow)
		})
	}
}
