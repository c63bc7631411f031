// Package stripe adapts Stripe PaymentIntents to the checkout payment
// provider boundary. Initiate creates an intent tagged with the order and
// payment reference; ParseWebhook turns signed Stripe webhook deliveries into
// payment events for the engine.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	stripego "github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
	"github.com/stripe/stripe-go/v81/webhook"

	checkout "github.com/xraph/checkout"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/types"
)

// Name is the provider name recorded on payments.
const Name = "stripe"

// Metadata keys written on every PaymentIntent.
const (
	MetaOrderID     = "order_id"
	MetaOrderNumber = "order_number"
	MetaReference   = "reference"
	MetaOwnerID     = "user_id"
)

// ErrUnhandledEvent is returned by ParseWebhook for event types that carry no
// payment outcome. Callers acknowledge them without further action.
var ErrUnhandledEvent = errors.New("stripe: unhandled event type")

// Compile-time interface check.
var _ payment.Provider = (*Provider)(nil)

type intentCreator interface {
	New(params *stripego.PaymentIntentParams) (*stripego.PaymentIntent, error)
}

// Provider creates Stripe PaymentIntents.
type Provider struct {
	intents       intentCreator
	webhookSecret string
	methods       []string
}

// Option configures a Provider.
type Option func(*Provider)

// WithPaymentMethodTypes restricts the payment method types offered,
// e.g. "card" or "upi".
func WithPaymentMethodTypes(methods ...string) Option {
	return func(p *Provider) { p.methods = methods }
}

// New creates a Stripe provider from a secret API key and the signing
// secret of the webhook endpoint.
func New(secretKey, webhookSecret string, opts ...Option) *Provider {
	sc := client.New(secretKey, nil)
	p := &Provider{
		intents:       sc.PaymentIntents,
		webhookSecret: webhookSecret,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements payment.Provider.
func (p *Provider) Name() string { return Name }

// Initiate implements payment.Provider. The order ID and payment reference
// together form the Stripe idempotency key.
func (p *Provider) Initiate(ctx context.Context, req payment.InitiateRequest) (*payment.Handle, error) {
	params := &stripego.PaymentIntentParams{
		Amount:      stripego.Int64(req.Amount.Amount),
		Currency:    stripego.String(strings.ToLower(req.Amount.Currency)),
		Description: stripego.String("Order " + req.OrderNumber),
	}
	if len(p.methods) > 0 {
		params.PaymentMethodTypes = stripego.StringSlice(p.methods)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.OrderID.String() + ":" + req.Reference)
	params.AddMetadata(MetaOrderID, req.OrderID.String())
	params.AddMetadata(MetaOrderNumber, req.OrderNumber)
	params.AddMetadata(MetaReference, req.Reference)
	params.AddMetadata(MetaOwnerID, req.OwnerID)

	pi, err := p.intents.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create payment intent: %w", err)
	}

	return &payment.Handle{
		Handle:       pi.ID,
		ClientSecret: pi.ClientSecret,
	}, nil
}

// ParseWebhook verifies a Stripe webhook delivery and converts it into a
// payment event. sigHeader is the Stripe-Signature header value.
func (p *Provider) ParseWebhook(payload []byte, sigHeader string) (*payment.Event, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, p.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", checkout.ErrWebhookSignature, err)
	}

	var status payment.EventStatus
	switch string(event.Type) {
	case "payment_intent.succeeded":
		status = payment.EventSuccess
	case "payment_intent.payment_failed", "payment_intent.canceled":
		status = payment.EventFailure
	default:
		return nil, ErrUnhandledEvent
	}

	var pi stripego.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
		return nil, fmt.Errorf("%w: %w", checkout.ErrInvalidEvent, err)
	}

	return eventFromIntent(&pi, status)
}

func eventFromIntent(pi *stripego.PaymentIntent, status payment.EventStatus) (*payment.Event, error) {
	orderID, err := id.ParseOrderID(pi.Metadata[MetaOrderID])
	if err != nil {
		return nil, fmt.Errorf("%w: order_id metadata: %w", checkout.ErrInvalidEvent, err)
	}

	reference := pi.Metadata[MetaReference]
	if reference == "" {
		return nil, fmt.Errorf("%w: reference metadata missing on %s", checkout.ErrInvalidEvent, pi.ID)
	}

	amount := pi.Amount
	if status == payment.EventSuccess && pi.AmountReceived > 0 {
		amount = pi.AmountReceived
	}

	ev := &payment.Event{
		Provider:      Name,
		Reference:     reference,
		OrderID:       orderID,
		Amount:        types.New(amount, string(pi.Currency)),
		Status:        status,
		TransactionID: pi.ID,
	}
	if status == payment.EventFailure {
		ev.Reason = string(pi.Status)
		if pi.LastPaymentError != nil && pi.LastPaymentError.Msg != "" {
			ev.Reason = pi.LastPaymentError.Msg
		}
	}
	return ev, nil
}
