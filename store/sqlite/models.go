package sqlite

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/types"
)

// ==================== Cart models ====================

type cartModel struct {
	grove.BaseModel `grove:"table:checkout_carts"`

	ID        string          `grove:"id,pk"`
	OwnerID   string          `grove:"owner_id"`
	Items     json.RawMessage `grove:"items"`
	Version   int64           `grove:"version"`
	CreatedAt time.Time       `grove:"created_at"`
	UpdatedAt time.Time       `grove:"updated_at"`
}

func toCartModel(c *cart.Cart) (*cartModel, error) {
	items, err := marshalItems(c.Items)
	if err != nil {
		return nil, err
	}
	return &cartModel{
		ID:        c.ID.String(),
		OwnerID:   c.OwnerID,
		Items:     items,
		Version:   c.Version,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}, nil
}

func fromCartModel(m *cartModel) (*cart.Cart, error) {
	cartID, err := id.ParseCartID(m.ID)
	if err != nil {
		return nil, err
	}

	items := []cart.Item{}
	if len(m.Items) > 0 {
		if err := json.Unmarshal(m.Items, &items); err != nil {
			return nil, err
		}
	}

	return &cart.Cart{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:      cartID,
		OwnerID: m.OwnerID,
		Items:   items,
		Version: m.Version,
	}, nil
}

// ==================== Order models ====================

type orderModel struct {
	grove.BaseModel `grove:"table:checkout_orders"`

	ID             string          `grove:"id,pk"`
	Number         string          `grove:"number"`
	OwnerID        string          `grove:"owner_id"`
	CartID         string          `grove:"cart_id"`
	CartVersion    int64           `grove:"cart_version"`
	Items          json.RawMessage `grove:"items"`
	Subtotal       int64           `grove:"subtotal"`
	Tax            int64           `grove:"tax"`
	Total          int64           `grove:"total"`
	Currency       string          `grove:"currency"`
	TaxRatePercent string          `grove:"tax_rate_percent"`
	Status         string          `grove:"status"`
	ExpiresAt      *time.Time      `grove:"expires_at"`
	PaidAt         *time.Time      `grove:"paid_at"`
	ExitedAt       *time.Time      `grove:"exited_at"`
	ClosedAt       *time.Time      `grove:"closed_at"`
	CreatedAt      time.Time       `grove:"created_at"`
	UpdatedAt      time.Time       `grove:"updated_at"`
}

func toOrderModel(o *order.Order) (*orderModel, error) {
	items, err := marshalItems(o.Items)
	if err != nil {
		return nil, err
	}
	return &orderModel{
		ID:             o.ID.String(),
		Number:         o.Number,
		OwnerID:        o.OwnerID,
		CartID:         o.CartID.String(),
		CartVersion:    o.CartVersion,
		Items:          items,
		Subtotal:       o.Subtotal.Amount,
		Tax:            o.Tax.Amount,
		Total:          o.Total.Amount,
		Currency:       o.Currency,
		TaxRatePercent: o.TaxRatePercent,
		Status:         string(o.Status),
		ExpiresAt:      nullableTime(o.ExpiresAt),
		PaidAt:         o.PaidAt,
		ExitedAt:       o.ExitedAt,
		ClosedAt:       o.ClosedAt,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}, nil
}

func fromOrderModel(m *orderModel) (*order.Order, error) {
	orderID, err := id.ParseOrderID(m.ID)
	if err != nil {
		return nil, err
	}
	var cartID id.CartID
	if m.CartID != "" {
		if cartID, err = id.ParseCartID(m.CartID); err != nil {
			return nil, err
		}
	}

	var items []order.Item
	if len(m.Items) > 0 {
		if err := json.Unmarshal(m.Items, &items); err != nil {
			return nil, err
		}
	}

	o := &order.Order{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             orderID,
		Number:         m.Number,
		OwnerID:        m.OwnerID,
		CartID:         cartID,
		CartVersion:    m.CartVersion,
		Items:          items,
		Subtotal:       types.New(m.Subtotal, m.Currency),
		Tax:            types.New(m.Tax, m.Currency),
		Total:          types.New(m.Total, m.Currency),
		TaxRatePercent: m.TaxRatePercent,
		Currency:       m.Currency,
		Status:         order.Status(m.Status),
		PaidAt:         m.PaidAt,
		ExitedAt:       m.ExitedAt,
		ClosedAt:       m.ClosedAt,
	}
	if m.ExpiresAt != nil {
		o.ExpiresAt = *m.ExpiresAt
	}
	return o, nil
}

// ==================== Payment models ====================

type paymentModel struct {
	grove.BaseModel `grove:"table:checkout_payments"`

	ID            string     `grove:"id,pk"`
	OrderID       string     `grove:"order_id"`
	Provider      string     `grove:"provider"`
	Method        string     `grove:"method"`
	Reference     string     `grove:"reference"`
	Handle        string     `grove:"handle"`
	ClientSecret  string     `grove:"client_secret"`
	RedirectURL   string     `grove:"redirect_url"`
	Amount        int64      `grove:"amount"`
	Currency      string     `grove:"currency"`
	Status        string     `grove:"status"`
	TransactionID string     `grove:"transaction_id"`
	FailureReason string     `grove:"failure_reason"`
	NeedsReview   bool       `grove:"needs_review"`
	ReviewReason  string     `grove:"review_reason"`
	ConfirmedAt   *time.Time `grove:"confirmed_at"`
	CreatedAt     time.Time  `grove:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"`
}

func toPaymentModel(p *payment.Payment) *paymentModel {
	return &paymentModel{
		ID:            p.ID.String(),
		OrderID:       p.OrderID.String(),
		Provider:      p.Provider,
		Method:        p.Method,
		Reference:     p.Reference,
		Handle:        p.Handle,
		ClientSecret:  p.ClientSecret,
		RedirectURL:   p.RedirectURL,
		Amount:        p.Amount.Amount,
		Currency:      p.Amount.Currency,
		Status:        string(p.Status),
		TransactionID: p.TransactionID,
		FailureReason: p.FailureReason,
		NeedsReview:   p.NeedsReview,
		ReviewReason:  p.ReviewReason,
		ConfirmedAt:   p.ConfirmedAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func fromPaymentModel(m *paymentModel) (*payment.Payment, error) {
	paymentID, err := id.ParsePaymentID(m.ID)
	if err != nil {
		return nil, err
	}
	orderID, err := id.ParseOrderID(m.OrderID)
	if err != nil {
		return nil, err
	}

	return &payment.Payment{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:            paymentID,
		OrderID:       orderID,
		Provider:      m.Provider,
		Method:        m.Method,
		Reference:     m.Reference,
		Handle:        m.Handle,
		ClientSecret:  m.ClientSecret,
		RedirectURL:   m.RedirectURL,
		Amount:        types.New(m.Amount, m.Currency),
		Status:        payment.Status(m.Status),
		TransactionID: m.TransactionID,
		FailureReason: m.FailureReason,
		NeedsReview:   m.NeedsReview,
		ReviewReason:  m.ReviewReason,
		ConfirmedAt:   m.ConfirmedAt,
	}, nil
}

// ==================== Exit token models ====================

type exitTokenModel struct {
	grove.BaseModel `grove:"table:checkout_exit_tokens"`

	ID         string     `grove:"id,pk"`
	Value      string     `grove:"value"`
	OrderID    string     `grove:"order_id"`
	Generation int        `grove:"generation"`
	IssuedAt   time.Time  `grove:"issued_at"`
	ExpiresAt  time.Time  `grove:"expires_at"`
	Status     string     `grove:"status"`
	UsedAt     *time.Time `grove:"used_at"`
	VerifiedBy string     `grove:"verified_by"`
	CreatedAt  time.Time  `grove:"created_at"`
	UpdatedAt  time.Time  `grove:"updated_at"`
}

func toExitTokenModel(t *exittoken.Token) *exitTokenModel {
	return &exitTokenModel{
		ID:         t.ID.String(),
		Value:      t.Value,
		OrderID:    t.OrderID.String(),
		Generation: t.Generation,
		IssuedAt:   t.IssuedAt,
		ExpiresAt:  t.ExpiresAt,
		Status:     string(t.Status),
		UsedAt:     t.UsedAt,
		VerifiedBy: t.VerifiedBy,
		CreatedAt:  t.CreatedAt,
		UpdatedAt:  t.UpdatedAt,
	}
}

func fromExitTokenModel(m *exitTokenModel) (*exittoken.Token, error) {
	tokenID, err := id.ParseExitTokenID(m.ID)
	if err != nil {
		return nil, err
	}
	orderID, err := id.ParseOrderID(m.OrderID)
	if err != nil {
		return nil, err
	}

	return &exittoken.Token{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:         tokenID,
		Value:      m.Value,
		OrderID:    orderID,
		Generation: m.Generation,
		IssuedAt:   m.IssuedAt,
		ExpiresAt:  m.ExpiresAt,
		Status:     exittoken.Status(m.Status),
		UsedAt:     m.UsedAt,
		VerifiedBy: m.VerifiedBy,
	}, nil
}

// ==================== Helpers ====================

func marshalItems[T any](items []T) (json.RawMessage, error) {
	if items == nil {
		items = []T{}
	}
	return json.Marshal(items)
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
