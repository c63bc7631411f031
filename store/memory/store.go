// Package memory is an in-process store.Store. A single mutex serialises
// writers, which makes every compare-and-set trivially linearisable. Records
// are cloned on the way in and out so callers never share state with the map.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	checkout "github.com/xraph/checkout"
	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
	"github.com/xraph/checkout/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	// Cart storage, keyed by owner
	carts map[string]*cart.Cart

	// Order storage
	orders       map[string]*order.Order
	orderNumbers map[string]string

	// Payment storage
	payments    map[string]*payment.Payment
	paymentRefs map[string]string

	// Exit token storage
	tokens        map[string]*exittoken.Token
	tokenValues   map[string]string
	tokenByGen    map[string]string
	tokensByOrder map[string][]string
}

func New() *Store {
	return &Store{
		carts:         make(map[string]*cart.Cart),
		orders:        make(map[string]*order.Order),
		orderNumbers:  make(map[string]string),
		payments:      make(map[string]*payment.Payment),
		paymentRefs:   make(map[string]string),
		tokens:        make(map[string]*exittoken.Token),
		tokenValues:   make(map[string]string),
		tokenByGen:    make(map[string]string),
		tokensByOrder: make(map[string][]string),
	}
}

// ==================== Cart Store ====================

func (s *Store) GetCart(_ context.Context, ownerID string) (*cart.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carts[ownerID]
	if !ok {
		return nil, checkout.ErrCartNotFound
	}
	return c.Clone(), nil
}

func (s *Store) SaveCart(_ context.Context, c *cart.Cart, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.carts[c.OwnerID]
	switch {
	case !ok && expectedVersion != 0:
		return checkout.ErrStaleCart
	case ok && current.Version != expectedVersion:
		return checkout.ErrStaleCart
	}
	s.carts[c.OwnerID] = c.Clone()
	return nil
}

func (s *Store) ClearCart(_ context.Context, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.carts[ownerID]; ok {
		c.Clear()
	}
	return nil
}

// ==================== Order Store ====================

func (s *Store) CreateOrder(_ context.Context, o *order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID.String()]; exists {
		return checkout.ErrAlreadyExists
	}
	if _, exists := s.orderNumbers[o.Number]; exists {
		return checkout.ErrAlreadyExists
	}
	s.orders[o.ID.String()] = o.Clone()
	s.orderNumbers[o.Number] = o.ID.String()
	return nil
}

func (s *Store) GetOrder(_ context.Context, orderID id.OrderID) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if o, ok := s.orders[orderID.String()]; ok {
		return o.Clone(), nil
	}
	return nil, checkout.ErrOrderNotFound
}

func (s *Store) GetOrderByNumber(_ context.Context, number string) (*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.orderNumbers[number]; ok {
		return s.orders[key].Clone(), nil
	}
	return nil, checkout.ErrOrderNotFound
}

func (s *Store) ListOrders(_ context.Context, ownerID string, opts order.ListOpts) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*order.Order, 0)
	for _, o := range s.orders {
		if o.OwnerID != ownerID {
			continue
		}
		if opts.Status != "" && o.Status != opts.Status {
			continue
		}
		result = append(result, o.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID.String() > result[j].ID.String()
		}
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return paginate(result, opts.Offset, opts.Limit), nil
}

func (s *Store) TransitionOrder(_ context.Context, orderID id.OrderID, from, to order.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.transitionLocked(orderID, from, to, at)
}

func (s *Store) transitionLocked(orderID id.OrderID, from, to order.Status, at time.Time) error {
	o, ok := s.orders[orderID.String()]
	if !ok {
		return checkout.ErrOrderNotFound
	}
	if o.Status != from {
		return checkout.ErrConcurrentUpdate
	}
	o.Apply(to, at)
	return nil
}

func (s *Store) ListExpiredPending(_ context.Context, before time.Time, limit int) ([]*order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*order.Order, 0)
	for _, o := range s.orders {
		if o.IsExpired(before) {
			result = append(result, o.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExpiresAt.Before(result[j].ExpiresAt) })
	return paginate(result, 0, limit), nil
}

// ==================== Payment Store ====================

func paymentRefKey(orderID id.OrderID, reference string) string {
	return orderID.String() + "|" + reference
}

func (s *Store) CreatePayment(_ context.Context, p *payment.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := paymentRefKey(p.OrderID, p.Reference)
	if _, exists := s.paymentRefs[key]; exists {
		return checkout.ErrAlreadyExists
	}
	if _, exists := s.payments[p.ID.String()]; exists {
		return checkout.ErrAlreadyExists
	}
	s.payments[p.ID.String()] = p.Clone()
	s.paymentRefs[key] = p.ID.String()
	return nil
}

func (s *Store) GetPayment(_ context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, ok := s.payments[paymentID.String()]; ok {
		return p.Clone(), nil
	}
	return nil, checkout.ErrPaymentNotFound
}

func (s *Store) GetPaymentByReference(_ context.Context, orderID id.OrderID, reference string) (*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.paymentRefs[paymentRefKey(orderID, reference)]; ok {
		return s.payments[key].Clone(), nil
	}
	return nil, checkout.ErrPaymentNotFound
}

func (s *Store) ListPayments(_ context.Context, orderID id.OrderID) ([]*payment.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*payment.Payment, 0)
	for _, p := range s.payments {
		if p.OrderID.Equal(orderID) {
			result = append(result, p.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (s *Store) SupersedePayments(_ context.Context, orderID id.OrderID, keep id.PaymentID, reason string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, p := range s.payments {
		if !p.OrderID.Equal(orderID) || p.ID.Equal(keep) || p.Status != payment.StatusInitiated {
			continue
		}
		p.Status = payment.StatusFailed
		p.FailureReason = reason
		p.TouchAt(at)
		n++
	}
	return n, nil
}

func (s *Store) MarkOrderPaid(_ context.Context, orderID id.OrderID, paymentID id.PaymentID, transactionID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.initiatedPaymentLocked(paymentID)
	if err != nil {
		return err
	}
	if err := s.transitionLocked(orderID, order.StatusPendingPayment, order.StatusPaid, at); err != nil {
		return err
	}
	settle(p, payment.StatusSuccess, transactionID, "", at)
	return nil
}

func (s *Store) MarkOrderPaymentFailed(_ context.Context, orderID id.OrderID, paymentID id.PaymentID, transactionID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.initiatedPaymentLocked(paymentID)
	if err != nil {
		return err
	}
	if err := s.transitionLocked(orderID, order.StatusPendingPayment, order.StatusPaymentFailed, at); err != nil {
		return err
	}
	settle(p, payment.StatusFailed, transactionID, reason, at)
	return nil
}

func (s *Store) FailPayment(_ context.Context, paymentID id.PaymentID, transactionID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.initiatedPaymentLocked(paymentID)
	if err != nil {
		return err
	}
	settle(p, payment.StatusFailed, transactionID, reason, at)
	return nil
}

func (s *Store) FlagPayment(_ context.Context, paymentID id.PaymentID, reason string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.payments[paymentID.String()]
	if !ok {
		return checkout.ErrPaymentNotFound
	}
	p.NeedsReview = true
	p.ReviewReason = reason
	p.TouchAt(at)
	return nil
}

func (s *Store) initiatedPaymentLocked(paymentID id.PaymentID) (*payment.Payment, error) {
	p, ok := s.payments[paymentID.String()]
	if !ok {
		return nil, checkout.ErrPaymentNotFound
	}
	if p.Status != payment.StatusInitiated {
		return nil, checkout.ErrConcurrentUpdate
	}
	return p, nil
}

func settle(p *payment.Payment, status payment.Status, transactionID, reason string, at time.Time) {
	at = at.UTC()
	p.Status = status
	p.TransactionID = transactionID
	p.FailureReason = reason
	p.ConfirmedAt = &at
	p.TouchAt(at)
}

// ==================== Exit Token Store ====================

func tokenGenKey(orderID id.OrderID, generation int) string {
	return orderID.String() + "|" + strconv.Itoa(generation)
}

func (s *Store) CreateExitToken(_ context.Context, t *exittoken.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	genKey := tokenGenKey(t.OrderID, t.Generation)
	if _, exists := s.tokenByGen[genKey]; exists {
		return checkout.ErrAlreadyExists
	}
	if _, exists := s.tokenValues[t.Value]; exists {
		return checkout.ErrAlreadyExists
	}

	key := t.ID.String()
	s.tokens[key] = t.Clone()
	s.tokenValues[t.Value] = key
	s.tokenByGen[genKey] = key
	s.tokensByOrder[t.OrderID.String()] = append(s.tokensByOrder[t.OrderID.String()], key)
	return nil
}

func (s *Store) GetExitTokenByValue(_ context.Context, value string) (*exittoken.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if key, ok := s.tokenValues[value]; ok {
		return s.tokens[key].Clone(), nil
	}
	return nil, checkout.ErrExitTokenNotFound
}

func (s *Store) GetActiveExitToken(_ context.Context, orderID id.OrderID, now time.Time) (*exittoken.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active *exittoken.Token
	for _, key := range s.tokensByOrder[orderID.String()] {
		t := s.tokens[key]
		if t.IsActive(now) && (active == nil || t.Generation > active.Generation) {
			active = t
		}
	}
	if active == nil {
		return nil, checkout.ErrExitTokenNotFound
	}
	return active.Clone(), nil
}

func (s *Store) LatestExitToken(_ context.Context, orderID id.OrderID) (*exittoken.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *exittoken.Token
	for _, key := range s.tokensByOrder[orderID.String()] {
		t := s.tokens[key]
		if latest == nil || t.Generation > latest.Generation {
			latest = t
		}
	}
	if latest == nil {
		return nil, checkout.ErrExitTokenNotFound
	}
	return latest.Clone(), nil
}

func (s *Store) ConsumeExitToken(_ context.Context, value string, now time.Time, verifiedBy string) (*exittoken.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, ok := s.tokenValues[value]
	if !ok {
		return nil, checkout.ErrExitTokenNotFound
	}
	t := s.tokens[key]
	if !t.IsActive(now) {
		return nil, checkout.ErrConcurrentUpdate
	}

	at := now.UTC()
	t.Status = exittoken.StatusUsed
	t.UsedAt = &at
	t.VerifiedBy = verifiedBy
	t.TouchAt(at)
	return t.Clone(), nil
}

func (s *Store) ExpireExitToken(_ context.Context, tokenID id.ExitTokenID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tokens[tokenID.String()]
	if !ok {
		return checkout.ErrExitTokenNotFound
	}
	if t.Status != exittoken.StatusUnused {
		return checkout.ErrConcurrentUpdate
	}
	t.Status = exittoken.StatusExpired
	t.TouchAt(at)
	return nil
}

// ==================== Lifecycle ====================

func (s *Store) Migrate(_ context.Context) error {
	return nil // No migration needed for memory store
}

func (s *Store) Ping(_ context.Context) error {
	return nil // Always available
}

func (s *Store) Close() error {
	return nil // Nothing to close
}

// Helper functions

func paginate[T any](items []T, offset, limit int) []T {
	start := max(offset, 0)
	if start > len(items) {
		start = len(items)
	}
	end := start + limit
	if limit <= 0 || end > len(items) {
		end = len(items)
	}
	return items[start:end]
}
