package mongo

import (
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

	ID        string          `grove:"id"          bson:"cart_id"`
	OwnerID   string          `grove:"owner_id,pk" bson:"_id"`
	Items     []cartItemModel `grove:"items"       bson:"items"`
	Version   int64           `grove:"version"     bson:"version"`
	CreatedAt time.Time       `grove:"created_at"  bson:"created_at"`
	UpdatedAt time.Time       `grove:"updated_at"  bson:"updated_at"`
}

type cartItemModel struct {
	ID         string `bson:"id"`
	ProductRef string `bson:"product_ref"`
	Name       string `bson:"name"`
	SKU        string `bson:"sku,omitempty"`
	UnitPrice  int64  `bson:"unit_price"`
	Currency   string `bson:"currency"`
	Quantity   int64  `bson:"quantity"`
}

func toCartModel(c *cart.Cart) *cartModel {
	items := make([]cartItemModel, len(c.Items))
	for i, it := range c.Items {
		items[i] = cartItemModel{
			ID:         it.ID.String(),
			ProductRef: it.ProductRef,
			Name:       it.Name,
			SKU:        it.SKU,
			UnitPrice:  it.UnitPrice.Amount,
			Currency:   it.UnitPrice.Currency,
			Quantity:   it.Quantity,
		}
	}
	return &cartModel{
		ID:        c.ID.String(),
		OwnerID:   c.OwnerID,
		Items:     items,
		Version:   c.Version,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromCartModel(m *cartModel) (*cart.Cart, error) {
	cartID, err := id.ParseCartID(m.ID)
	if err != nil {
		return nil, err
	}

	items := make([]cart.Item, len(m.Items))
	for i, it := range m.Items {
		itemID, err := id.ParseCartItemID(it.ID)
		if err != nil {
			return nil, err
		}
		items[i] = cart.Item{
			ID:         itemID,
			ProductRef: it.ProductRef,
			Name:       it.Name,
			SKU:        it.SKU,
			UnitPrice:  types.New(it.UnitPrice, it.Currency),
			Quantity:   it.Quantity,
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

	ID             string           `grove:"id,pk"            bson:"_id"`
	Number         string           `grove:"number"           bson:"number"`
	OwnerID        string           `grove:"owner_id"         bson:"owner_id"`
	CartID         string           `grove:"cart_id"          bson:"cart_id"`
	CartVersion    int64            `grove:"cart_version"     bson:"cart_version"`
	Items          []orderItemModel `grove:"items"            bson:"items"`
	Subtotal       int64            `grove:"subtotal"         bson:"subtotal"`
	Tax            int64            `grove:"tax"              bson:"tax"`
	Total          int64            `grove:"total"            bson:"total"`
	Currency       string           `grove:"currency"         bson:"currency"`
	TaxRatePercent string           `grove:"tax_rate_percent" bson:"tax_rate_percent"`
	Status         string           `grove:"status"           bson:"status"`
	ExpiresAt      *time.Time       `grove:"expires_at"       bson:"expires_at,omitempty"`
	PaidAt         *time.Time       `grove:"paid_at"          bson:"paid_at,omitempty"`
	ExitedAt       *time.Time       `grove:"exited_at"        bson:"exited_at,omitempty"`
	ClosedAt       *time.Time       `grove:"closed_at"        bson:"closed_at,omitempty"`
	CreatedAt      time.Time        `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time        `grove:"updated_at"       bson:"updated_at"`
}

type orderItemModel struct {
	ID         string `bson:"id"`
	ProductRef string `bson:"product_ref"`
	Name       string `bson:"name"`
	SKU        string `bson:"sku,omitempty"`
	UnitPrice  int64  `bson:"unit_price"`
	Quantity   int64  `bson:"quantity"`
	Subtotal   int64  `bson:"subtotal"`
}

func toOrderModel(o *order.Order) *orderModel {
	items := make([]orderItemModel, len(o.Items))
	for i, it := range o.Items {
		items[i] = orderItemModel{
			ID:         it.ID.String(),
			ProductRef: it.ProductRef,
			Name:       it.Name,
			SKU:        it.SKU,
			UnitPrice:  it.UnitPrice.Amount,
			Quantity:   it.Quantity,
			Subtotal:   it.Subtotal.Amount,
		}
	}

	var expiresAt *time.Time
	if !o.ExpiresAt.IsZero() {
		t := o.ExpiresAt
		expiresAt = &t
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
		ExpiresAt:      expiresAt,
		PaidAt:         o.PaidAt,
		ExitedAt:       o.ExitedAt,
		ClosedAt:       o.ClosedAt,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
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

	items := make([]order.Item, len(m.Items))
	for i, it := range m.Items {
		itemID, err := id.ParseOrderItemID(it.ID)
		if err != nil {
			return nil, err
		}
		items[i] = order.Item{
			ID:         itemID,
			ProductRef: it.ProductRef,
			Name:       it.Name,
			SKU:        it.SKU,
			UnitPrice:  types.New(it.UnitPrice, m.Currency),
			Quantity:   it.Quantity,
			Subtotal:   types.New(it.Subtotal, m.Currency),
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

	ID            string     `grove:"id,pk"          bson:"_id"`
	OrderID       string     `grove:"order_id"       bson:"order_id"`
	Provider      string     `grove:"provider"       bson:"provider"`
	Method        string     `grove:"method"         bson:"method"`
	Reference     string     `grove:"reference"      bson:"reference"`
	Handle        string     `grove:"handle"         bson:"handle,omitempty"`
	ClientSecret  string     `grove:"client_secret"  bson:"client_secret,omitempty"`
	RedirectURL   string     `grove:"redirect_url"   bson:"redirect_url,omitempty"`
	Amount        int64      `grove:"amount"         bson:"amount"`
	Currency      string     `grove:"currency"       bson:"currency"`
	Status        string     `grove:"status"         bson:"status"`
	TransactionID string     `grove:"transaction_id" bson:"transaction_id"`
	FailureReason string     `grove:"failure_reason" bson:"failure_reason"`
	NeedsReview   bool       `grove:"needs_review"   bson:"needs_review"`
	ReviewReason  string     `grove:"review_reason"  bson:"review_reason"`
	ConfirmedAt   *time.Time `grove:"confirmed_at"   bson:"confirmed_at,omitempty"`
	CreatedAt     time.Time  `grove:"created_at"     bson:"created_at"`
	UpdatedAt     time.Time  `grove:"updated_at"     bson:"updated_at"`
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

	ID         string     `grove:"id,pk"       bson:"_id"`
	Value      string     `grove:"value"       bson:"value"`
	OrderID    string     `grove:"order_id"    bson:"order_id"`
	Generation int        `grove:"generation"  bson:"generation"`
	IssuedAt   time.Time  `grove:"issued_at"   bson:"issued_at"`
	ExpiresAt  time.Time  `grove:"expires_at"  bson:"expires_at"`
	Status     string     `grove:"status"      bson:"status"`
	UsedAt     *time.Time `grove:"used_at"     bson:"used_at,omitempty"`
	VerifiedBy string     `grove:"verified_by" bson:"verified_by,omitempty"`
	CreatedAt  time.Time  `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time  `grove:"updated_at"  bson:"updated_at"`
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
