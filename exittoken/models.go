// Package exittoken mints and classifies the single-use passes that let a
// shopper leave the store with a paid order.
package exittoken

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/types"
)

var ErrNotFound = errors.New("checkout: exit token not found")

// entropyBytes is the number of random bytes behind every token value (256 bits).
const entropyBytes = 32

type Status string

const (
	StatusUnused  Status = "unused"
	StatusUsed    Status = "used"
	StatusExpired Status = "expired"
)

// Token is an exit pass bound to one order. Generation counts how many
// tokens the order has had; stores keep (OrderID, Generation) unique so two
// concurrent reissues cannot both mint a replacement.
type Token struct {
	types.Entity
	ID         id.ExitTokenID `json:"id"`
	Value      string         `json:"token"`
	OrderID    id.OrderID     `json:"order_id"`
	Generation int            `json:"generation"`
	IssuedAt   time.Time      `json:"issued_at"`
	ExpiresAt  time.Time      `json:"expires_at"`
	Status     Status         `json:"status"`
	UsedAt     *time.Time     `json:"used_at,omitempty"`
	VerifiedBy string         `json:"verified_by,omitempty"`
}

// New mints an unused token for orderID valid for ttl from now.
func New(orderID id.OrderID, generation int, now time.Time, ttl time.Duration) (*Token, error) {
	value, err := Generate()
	if err != nil {
		return nil, err
	}
	now = now.UTC()
	return &Token{
		Entity:     types.NewEntityAt(now),
		ID:         id.NewExitTokenID(),
		Value:      value,
		OrderID:    orderID,
		Generation: generation,
		IssuedAt:   now,
		ExpiresAt:  now.Add(ttl),
		Status:     StatusUnused,
	}, nil
}

// Generate returns a URL-safe random token value.
func Generate() (string, error) {
	buf := make([]byte, entropyBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("exittoken: read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// ExpiredAt reports whether the token's lifetime is over at now. A token whose
// expiry equals now is already expired.
func (t *Token) ExpiredAt(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsActive reports whether the token is unused and still within its lifetime.
func (t *Token) IsActive(now time.Time) bool {
	return t.Status == StatusUnused && !t.ExpiredAt(now)
}

// Clone returns a copy of the token.
func (t *Token) Clone() *Token {
	cp := *t
	return &cp
}

// Outcome is the verdict a gate terminal renders.
type Outcome string

const (
	OutcomeValid       Outcome = "valid"
	OutcomeInvalid     Outcome = "invalid"
	OutcomeExpired     Outcome = "expired"
	OutcomeAlreadyUsed Outcome = "already_used"
)

// Classify decides what a verification of t at now would yield, before any
// state is changed. A nil token is invalid.
func Classify(t *Token, now time.Time) Outcome {
	switch {
	case t == nil:
		return OutcomeInvalid
	case t.Status == StatusUsed:
		return OutcomeAlreadyUsed
	case t.Status == StatusExpired || t.ExpiredAt(now):
		return OutcomeExpired
	}
	return OutcomeValid
}

// Summary is what the gate shows the operator for a valid token.
type Summary struct {
	OrderID     id.OrderID   `json:"order_id"`
	OrderNumber string       `json:"order_number"`
	Customer    string       `json:"customer"`
	Items       []order.Item `json:"items"`
	ItemCount   int64        `json:"item_count"`
	Total       types.Money  `json:"total"`
}

// SummaryOf builds the gate summary of o.
func SummaryOf(o *order.Order) *Summary {
	return &Summary{
		OrderID:     o.ID,
		OrderNumber: o.Number,
		Customer:    o.OwnerID,
		Items:       append([]order.Item(nil), o.Items...),
		ItemCount:   o.ItemCount(),
		Total:       o.Total,
	}
}

// Result is the answer to a verification.
type Result struct {
	Valid     bool       `json:"valid"`
	Status    Outcome    `json:"status"`
	Summary   *Summary   `json:"order,omitempty"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Denied builds a negative result.
func Denied(outcome Outcome, t *Token) *Result {
	r := &Result{Status: outcome}
	if t != nil {
		r.UsedAt = t.UsedAt
		expires := t.ExpiresAt
		r.ExpiresAt = &expires
	}
	return r
}
