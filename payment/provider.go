package payment

import (
	"context"

	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/types"
)

// InitiateRequest is what the coordinator sends a provider when a shopper
// starts paying.
type InitiateRequest struct {
	OrderID     id.OrderID
	OrderNumber string
	OwnerID     string
	Reference   string
	Amount      types.Money
	Method      string
}

// Handle is the provider's answer to Initiate. Handle identifies the attempt on
// the provider side; ClientSecret and RedirectURL are passed to the shopper's
// device when the provider needs them.
type Handle struct {
	Handle       string
	ClientSecret string
	RedirectURL  string
}

// Provider is an outbound payment gateway. Confirmation never comes back
// through Initiate; it arrives later as an Event.
type Provider interface {
	Name() string
	Initiate(ctx context.Context, req InitiateRequest) (*Handle, error)
}

// Outcome describes the effect ConfirmPayment had.
type Outcome struct {
	Payment     *Payment     `json:"payment"`
	OrderStatus order.Status `json:"order_status"`
	Action      string       `json:"action"`
	Applied     bool         `json:"applied"`
}

// Confirmer accepts provider events. The engine implements it.
type Confirmer interface {
	ConfirmPayment(ctx context.Context, ev Event) (*Outcome, error)
}

// AsyncProvider is a provider that delivers its own confirmations in process
// and therefore needs a Confirmer to talk back to.
type AsyncProvider interface {
	Provider
	Attach(c Confirmer)
}
