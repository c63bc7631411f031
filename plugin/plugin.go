// Package plugin provides the hook system checkout extensions attach to.
// A plugin implements Plugin plus any subset of the hook interfaces below;
// the registry discovers which ones at registration time.
package plugin

import (
	"context"

	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts. engine is the *checkout.Engine.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Cart and order hooks
// ──────────────────────────────────────────────────

// OnCartUpdated is called after every successful cart mutation.
type OnCartUpdated interface {
	Plugin
	OnCartUpdated(ctx context.Context, snap *cart.Snapshot) error
}

// OnOrderCompiled is called when a cart is frozen into an order.
type OnOrderCompiled interface {
	Plugin
	OnOrderCompiled(ctx context.Context, o *order.Order) error
}

// OnOrderCancelled is called when a pending order is cancelled by its owner
// or by the expiry sweeper.
type OnOrderCancelled interface {
	Plugin
	OnOrderCancelled(ctx context.Context, o *order.Order, reason string) error
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentInitiated is called when a payment attempt is created.
type OnPaymentInitiated interface {
	Plugin
	OnPaymentInitiated(ctx context.Context, p *payment.Payment) error
}

// OnOrderPaid is called once per order, when a confirmation moves it to paid.
type OnOrderPaid interface {
	Plugin
	OnOrderPaid(ctx context.Context, o *order.Order, p *payment.Payment) error
}

// OnPaymentFailed is called when a failure confirmation closes an order.
type OnPaymentFailed interface {
	Plugin
	OnPaymentFailed(ctx context.Context, o *order.Order, p *payment.Payment) error
}

// OnPaymentFlagged is called when a payment needs manual reconciliation.
type OnPaymentFlagged interface {
	Plugin
	OnPaymentFlagged(ctx context.Context, p *payment.Payment, reason string) error
}

// ──────────────────────────────────────────────────
// Exit hooks
// ──────────────────────────────────────────────────

// OnExitTokenIssued is called when a token is minted, including replacements.
type OnExitTokenIssued interface {
	Plugin
	OnExitTokenIssued(ctx context.Context, o *order.Order, t *exittoken.Token) error
}

// OnExitVerified is called when a gate accepts a token.
type OnExitVerified interface {
	Plugin
	OnExitVerified(ctx context.Context, o *order.Order, t *exittoken.Token) error
}

// OnExitDenied is called when a gate rejects a token. t is nil when the
// value matched nothing.
type OnExitDenied interface {
	Plugin
	OnExitDenied(ctx context.Context, outcome exittoken.Outcome, t *exittoken.Token) error
}
