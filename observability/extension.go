// Package observability provides a metrics plugin for the checkout engine
// that records lifecycle event counts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin             = (*MetricsExtension)(nil)
	_ plugin.OnInit             = (*MetricsExtension)(nil)
	_ plugin.OnCartUpdated      = (*MetricsExtension)(nil)
	_ plugin.OnOrderCompiled    = (*MetricsExtension)(nil)
	_ plugin.OnOrderCancelled   = (*MetricsExtension)(nil)
	_ plugin.OnPaymentInitiated = (*MetricsExtension)(nil)
	_ plugin.OnOrderPaid        = (*MetricsExtension)(nil)
	_ plugin.OnPaymentFailed    = (*MetricsExtension)(nil)
	_ plugin.OnPaymentFlagged   = (*MetricsExtension)(nil)
	_ plugin.OnExitTokenIssued  = (*MetricsExtension)(nil)
	_ plugin.OnExitVerified     = (*MetricsExtension)(nil)
	_ plugin.OnExitDenied       = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records checkout lifecycle metrics.
// Register it as an engine plugin to track the funnel from cart to gate.
type MetricsExtension struct {
	factory MetricFactory

	// Cart metrics
	CartUpdated Counter
	CartItems   Histogram

	// Order metrics
	OrderCompiled  Counter
	OrderCancelled Counter
	OrderExpired   Counter
	OrderTotal     Histogram

	// Payment metrics
	PaymentInitiated Counter
	OrderPaid        Counter
	PaymentFailed    Counter
	PaymentFlagged   Counter
	TimeToPay        Histogram

	// Exit metrics
	ExitTokenIssued   Counter
	ExitTokenReissued Counter
	ExitVerified      Counter
	ExitInvalid       Counter
	ExitExpired       Counter
	ExitAlreadyUsed   Counter
	TimeToExit        Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use app.Metrics() in forge extensions.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Cart metrics
		CartUpdated: factory.Counter("checkout.cart.updated"),
		CartItems:   factory.Histogram("checkout.cart.items"),

		// Order metrics
		OrderCompiled:  factory.Counter("checkout.order.compiled"),
		OrderCancelled: factory.Counter("checkout.order.cancelled"),
		OrderExpired:   factory.Counter("checkout.order.expired"),
		OrderTotal:     factory.Histogram("checkout.order.total_minor"),

		// Payment metrics
		PaymentInitiated: factory.Counter("checkout.payment.initiated"),
		OrderPaid:        factory.Counter("checkout.order.paid"),
		PaymentFailed:    factory.Counter("checkout.payment.failed"),
		PaymentFlagged:   factory.Counter("checkout.payment.flagged"),
		TimeToPay:        factory.Histogram("checkout.payment.time_to_pay_ms"),

		// Exit metrics
		ExitTokenIssued:   factory.Counter("checkout.exit.token.issued"),
		ExitTokenReissued: factory.Counter("checkout.exit.token.reissued"),
		ExitVerified:      factory.Counter("checkout.exit.verified"),
		ExitInvalid:       factory.Counter("checkout.exit.denied.invalid"),
		ExitExpired:       factory.Counter("checkout.exit.denied.expired"),
		ExitAlreadyUsed:   factory.Counter("checkout.exit.denied.already_used"),
		TimeToExit:        factory.Histogram("checkout.exit.time_to_exit_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ interface{}) error {
	return nil
}

// ──────────────────────────────────────────────────
// Cart and order hooks
// ──────────────────────────────────────────────────

// OnCartUpdated implements plugin.OnCartUpdated.
func (m *MetricsExtension) OnCartUpdated(_ context.Context, snap *cart.Snapshot) error {
	m.CartUpdated.Inc()
	m.CartItems.Observe(float64(snap.ItemCount()))
	return nil
}

// OnOrderCompiled implements plugin.OnOrderCompiled.
func (m *MetricsExtension) OnOrderCompiled(_ context.Context, o *order.Order) error {
	m.OrderCompiled.Inc()
	m.OrderTotal.Observe(float64(o.Total.Amount))
	return nil
}

// OnOrderCancelled implements plugin.OnOrderCancelled.
func (m *MetricsExtension) OnOrderCancelled(_ context.Context, _ *order.Order, reason string) error {
	if reason == "expired" {
		m.OrderExpired.Inc()
		return nil
	}
	m.OrderCancelled.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentInitiated implements plugin.OnPaymentInitiated.
func (m *MetricsExtension) OnPaymentInitiated(_ context.Context, _ *payment.Payment) error {
	m.PaymentInitiated.Inc()
	return nil
}

// OnOrderPaid implements plugin.OnOrderPaid.
func (m *MetricsExtension) OnOrderPaid(_ context.Context, o *order.Order, _ *payment.Payment) error {
	m.OrderPaid.Inc()
	if o.PaidAt != nil {
		m.TimeToPay.Observe(float64(o.PaidAt.Sub(o.CreatedAt).Milliseconds()))
	}
	return nil
}

// OnPaymentFailed implements plugin.OnPaymentFailed.
func (m *MetricsExtension) OnPaymentFailed(_ context.Context, _ *order.Order, _ *payment.Payment) error {
	m.PaymentFailed.Inc()
	return nil
}

// OnPaymentFlagged implements plugin.OnPaymentFlagged.
func (m *MetricsExtension) OnPaymentFlagged(_ context.Context, _ *payment.Payment, _ string) error {
	m.PaymentFlagged.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Exit hooks
// ──────────────────────────────────────────────────

// OnExitTokenIssued implements plugin.OnExitTokenIssued.
func (m *MetricsExtension) OnExitTokenIssued(_ context.Context, _ *order.Order, t *exittoken.Token) error {
	if t.Generation > 1 {
		m.ExitTokenReissued.Inc()
		return nil
	}
	m.ExitTokenIssued.Inc()
	return nil
}

// OnExitVerified implements plugin.OnExitVerified.
func (m *MetricsExtension) OnExitVerified(_ context.Context, o *order.Order, _ *exittoken.Token) error {
	m.ExitVerified.Inc()
	if o.PaidAt != nil && o.ExitedAt != nil {
		m.TimeToExit.Observe(float64(o.ExitedAt.Sub(*o.PaidAt).Milliseconds()))
	}
	return nil
}

// OnExitDenied implements plugin.OnExitDenied.
func (m *MetricsExtension) OnExitDenied(_ context.Context, outcome exittoken.Outcome, _ *exittoken.Token) error {
	switch outcome {
	case exittoken.OutcomeExpired:
		m.ExitExpired.Inc()
	case exittoken.OutcomeAlreadyUsed:
		m.ExitAlreadyUsed.Inc()
	default:
		m.ExitInvalid.Inc()
	}
	return nil
}
