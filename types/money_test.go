package types

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
)

func TestMoneyConstructors(t *testing.T) {
	tests := []struct {
		name     string
		money    Money
		amount   int64
		currency string
		display  string
	}{
		{"INR", INR(41300), 41300, "inr", "₹413.00"},
		{"USD", USD(4900), 4900, "usd", "$49.00"},
		{"EUR", EUR(19900), 19900, "eur", "€199.00"},
		{"JPY", JPY(100), 100, "jpy", "¥100"},
		{"New lowercases", New(250, "INR"), 250, "inr", "₹2.50"},
		{"Zero", Zero("INR"), 0, "inr", "₹0.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.money.Amount != tt.amount {
				t.Errorf("Amount: got %d, want %d", tt.money.Amount, tt.amount)
			}
			if tt.money.Currency != tt.currency {
				t.Errorf("Currency: got %s, want %s", tt.money.Currency, tt.currency)
			}
			if tt.money.String() != tt.display {
				t.Errorf("Display: got %s, want %s", tt.money.String(), tt.display)
			}
		})
	}
}

func TestMoneyArithmetic(t *testing.T) {
	tests := []struct {
		name     string
		op       func() Money
		expected Money
	}{
		{"Add", func() Money { return INR(100).Add(INR(200)) }, INR(300)},
		{"Subtract", func() Money { return INR(500).Subtract(INR(200)) }, INR(300)},
		{"Multiply", func() Money { return INR(100).Multiply(3) }, INR(300)},
		{"Chained", func() Money { return INR(100).Multiply(2).Add(INR(50).Multiply(3)) }, INR(350)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := tt.op(); !result.Equal(tt.expected) {
				t.Errorf("Got %v, want %v", result, tt.expected)
			}
		})
	}
}

func TestMoneyCurrencyMismatch(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("Expected panic for currency mismatch")
		}
	}()

	_ = INR(100).Add(USD(100))
}

func TestMoneyPredicates(t *testing.T) {
	tests := []struct {
		name       string
		money      Money
		isZero     bool
		isPositive bool
		isNegative bool
	}{
		{"Zero", INR(0), true, false, false},
		{"Positive", INR(100), false, true, false},
		{"Negative", INR(-100), false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.money.IsZero(); got != tt.isZero {
				t.Errorf("IsZero: got %v, want %v", got, tt.isZero)
			}
			if got := tt.money.IsPositive(); got != tt.isPositive {
				t.Errorf("IsPositive: got %v, want %v", got, tt.isPositive)
			}
			if got := tt.money.IsNegative(); got != tt.isNegative {
				t.Errorf("IsNegative: got %v, want %v", got, tt.isNegative)
			}
		})
	}
}

func TestMoneyFormatMajor(t *testing.T) {
	tests := []struct {
		money    Money
		expected string
	}{
		{INR(41300), "413.00"},
		{INR(1), "0.01"},
		{INR(0), "0.00"},
		{INR(-4900), "-49.00"},
		{INR(-1), "-0.01"},
		{JPY(12345), "12345"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.money.FormatMajor(); got != tt.expected {
				t.Errorf("FormatMajor: got %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestMoneyJSON(t *testing.T) {
	data, err := json.Marshal(USD(4900))
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}

	expected := `{"amount":4900,"currency":"usd","display":"$49.00"}`
	if string(data) != expected {
		t.Errorf("JSON: got %s, want %s", string(data), expected)
	}

	var back Money
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if !back.Equal(USD(4900)) {
		t.Errorf("Unmarshal: got %v, want %v", back, USD(4900))
	}
}

func TestSum(t *testing.T) {
	tests := []struct {
		name     string
		values   []Money
		expected Money
	}{
		{"Empty", nil, Zero("inr")},
		{"Single", []Money{INR(100)}, INR(100)},
		{"Multiple", []Money{INR(100), INR(200), INR(300)}, INR(600)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := Sum("inr", tt.values...); !result.Equal(tt.expected) {
				t.Errorf("Sum: got %v, want %v", result, tt.expected)
			}
		})
	}
}

func BenchmarkMoneyString(b *testing.B) {
	m := INR(41300)
	for b.Loop() {
		_ = m.String()
	}
}

func TestMoneyCheckedArithmetic(t *testing.T) {
	tests := []struct {
		name    string
		run     func() (Money, error)
		want    int64
		wantErr bool
	}{
		{"multiply", func() (Money, error) { return INR(100).CheckedMultiply(3) }, 300, false},
		{"multiply by zero", func() (Money, error) { return INR(math.MaxInt64).CheckedMultiply(0) }, 0, false},
		{"multiply at limit", func() (Money, error) { return INR(math.MaxInt64 / 2).CheckedMultiply(2) }, math.MaxInt64 - 1, false},
		{"multiply overflow", func() (Money, error) { return INR(100).CheckedMultiply(1 << 62) }, 0, true},
		{"multiply negative", func() (Money, error) { return INR(100).CheckedMultiply(-1) }, 0, true},
		{"add", func() (Money, error) { return INR(100).CheckedAdd(INR(50)) }, 150, false},
		{"add overflow", func() (Money, error) { return INR(math.MaxInt64).CheckedAdd(INR(1)) }, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.run()
			if tt.wantErr {
				if !errors.Is(err, ErrOverflow) {
					t.Fatalf("err: got %v, want ErrOverflow", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.Amount != tt.want {
				t.Errorf("Amount: got %d, want %d", got.Amount, tt.want)
			}
		})
	}
}
