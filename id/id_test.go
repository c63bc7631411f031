package id_test

import (
	"strings"
	"testing"

	"github.com/xraph/checkout/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"CartID", id.NewCartID, "cart_"},
		{"CartItemID", id.NewCartItemID, "citem_"},
		{"OrderID", id.NewOrderID, "ord_"},
		{"OrderItemID", id.NewOrderItemID, "oitem_"},
		{"PaymentID", id.NewPaymentID, "pay_"},
		{"ExitTokenID", id.NewExitTokenID, "xtok_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"CartID", id.NewCartID, id.ParseCartID},
		{"CartItemID", id.NewCartItemID, id.ParseCartItemID},
		{"OrderID", id.NewOrderID, id.ParseOrderID},
		{"OrderItemID", id.NewOrderItemID, id.ParseOrderItemID},
		{"PaymentID", id.NewPaymentID, id.ParsePaymentID},
		{"ExitTokenID", id.NewExitTokenID, id.ParseExitTokenID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if !parsed.Equal(original) {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		parseFn func(string) (id.ID, error)
	}{
		{"ParseCartID rejects ord_", id.NewOrderID().String(), id.ParseCartID},
		{"ParseOrderID rejects pay_", id.NewPaymentID().String(), id.ParseOrderID},
		{"ParsePaymentID rejects xtok_", id.NewExitTokenID().String(), id.ParsePaymentID},
		{"ParseExitTokenID rejects cart_", id.NewCartID().String(), id.ParseExitTokenID},
		{"ParseCartItemID rejects oitem_", id.NewOrderItemID().String(), id.ParseCartItemID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.parseFn(tt.input); err == nil {
				t.Errorf("expected error for cross-type parse of %q, got nil", tt.input)
			}
		})
	}
}

func TestParseEmpty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("expected error for empty string")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("expected empty string, got %q", i.String())
	}
	if i.Prefix() != "" {
		t.Errorf("expected empty prefix, got %q", i.Prefix())
	}
}

func TestMarshalUnmarshalText(t *testing.T) {
	original := id.NewOrderID()
	data, err := original.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText failed: %v", err)
	}

	var restored id.ID
	if err := restored.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText failed: %v", err)
	}
	if restored.String() != original.String() {
		t.Errorf("mismatch: %q != %q", restored.String(), original.String())
	}

	var empty id.ID
	if err := empty.UnmarshalText(nil); err != nil {
		t.Fatalf("UnmarshalText(nil) failed: %v", err)
	}
	if !empty.IsNil() {
		t.Error("expected nil after unmarshal of empty input")
	}
}

func TestValueScan(t *testing.T) {
	original := id.NewExitTokenID()
	val, err := original.Value()
	if err != nil {
		t.Fatalf("Value failed: %v", err)
	}

	var scanned id.ID
	if err := scanned.Scan(val); err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if scanned.String() != original.String() {
		t.Errorf("mismatch: %q != %q", scanned.String(), original.String())
	}

	var nilID id.ID
	val, err = nilID.Value()
	if err != nil {
		t.Fatalf("Value(nil) failed: %v", err)
	}
	if val != nil {
		t.Errorf("expected nil value for nil ID, got %v", val)
	}

	if err := scanned.Scan(42); err == nil {
		t.Error("expected error scanning an int")
	}
}

func TestUniqueness(t *testing.T) {
	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		s := id.NewOrderID().String()
		if _, dup := seen[s]; dup {
			t.Fatalf("duplicate order ID %q", s)
		}
		seen[s] = struct{}{}
	}
}
