// Package pricing computes cart and order totals.
//
// Compute is the only place subtotal, tax and total are derived. Cart display
// and order compilation both call it with the same Policy, so a shopper never
// sees a number the order would not charge.
package pricing

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/xraph/checkout/types"
)

var hundred = decimal.NewFromInt(100)

// Policy fixes how tax is applied and in which currency totals are expressed.
type Policy struct {
	RatePercent decimal.Decimal
	Currency    string
}

// NewPolicy parses a tax rate such as "18" or "12.5".
func NewPolicy(ratePercent, currency string) (Policy, error) {
	rate, err := decimal.NewFromString(strings.TrimSpace(ratePercent))
	if err != nil {
		return Policy{}, fmt.Errorf("pricing: parse tax rate %q: %w", ratePercent, err)
	}
	p := Policy{RatePercent: rate, Currency: strings.ToLower(currency)}
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// MustPolicy is like NewPolicy but panics on error.
func MustPolicy(ratePercent, currency string) Policy {
	p, err := NewPolicy(ratePercent, currency)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate checks the rate is within [0, 100] and a currency is set.
func (p Policy) Validate() error {
	if p.RatePercent.IsNegative() || p.RatePercent.GreaterThan(hundred) {
		return fmt.Errorf("pricing: tax rate %s out of range", p.RatePercent)
	}
	if p.Currency == "" {
		return fmt.Errorf("pricing: currency is required")
	}
	return nil
}

// Line is one priced quantity.
type Line struct {
	UnitPrice types.Money
	Quantity  int64
}

// Subtotal returns unit price times quantity.
func (l Line) Subtotal() types.Money {
	return l.UnitPrice.Multiply(l.Quantity)
}

// Totals is the result of Compute.
type Totals struct {
	Subtotal types.Money `json:"subtotal"`
	Tax      types.Money `json:"tax"`
	Total    types.Money `json:"total"`
}

// Compute sums the lines and applies the policy's tax rate.
// Tax is rounded half-up to the minor unit; Total is always Subtotal + Tax.
func Compute(lines []Line, p Policy) Totals {
	subtotal := types.Zero(p.Currency)
	for _, l := range lines {
		subtotal = subtotal.Add(l.Subtotal())
	}

	tax := types.New(TaxOn(subtotal.Amount, p.RatePercent), p.Currency)

	return Totals{
		Subtotal: subtotal,
		Tax:      tax,
		Total:    subtotal.Add(tax),
	}
}

// ComputeChecked is Compute for amounts that must be charged: it fails with
// types.ErrOverflow instead of wrapping when a line, the subtotal or the total
// does not fit in an int64.
func ComputeChecked(lines []Line, p Policy) (Totals, error) {
	subtotal := types.Zero(p.Currency)
	for _, l := range lines {
		line, err := l.UnitPrice.CheckedMultiply(l.Quantity)
		if err != nil {
			return Totals{}, err
		}
		if subtotal, err = subtotal.CheckedAdd(line); err != nil {
			return Totals{}, err
		}
	}

	tax := types.New(TaxOn(subtotal.Amount, p.RatePercent), p.Currency)
	total, err := subtotal.CheckedAdd(tax)
	if err != nil {
		return Totals{}, err
	}

	return Totals{Subtotal: subtotal, Tax: tax, Total: total}, nil
}

// TaxOn returns round-half-up(amount * ratePercent / 100) in minor units.
func TaxOn(amount int64, ratePercent decimal.Decimal) int64 {
	return RoundHalfUp(decimal.NewFromInt(amount).Mul(ratePercent).Div(hundred))
}

// RoundHalfUp rounds to the nearest integer with ties going away from zero.
// Amounts handled here are never negative, so this is half-up.
func RoundHalfUp(d decimal.Decimal) int64 {
	return d.Round(0).IntPart()
}
