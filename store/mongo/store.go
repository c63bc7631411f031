package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	checkout "github.com/xraph/checkout"
	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
	checkoutstore "github.com/xraph/checkout/store"
)

// Collection name constants.
const (
	colCarts      = "checkout_carts"
	colOrders     = "checkout_orders"
	colPayments   = "checkout_payments"
	colExitTokens = "checkout_exit_tokens"
)

// compile-time interface check
var _ checkoutstore.Store = (*Store)(nil)

var errLostRace = errors.New("checkout/mongo: settle lost the race")

// Store implements store.Store using MongoDB via Grove ORM.
//
// Settling an order and its payment touches two collections. By default the
// order moves first and is moved back if the payment does not follow; with
// WithTransactions both writes run in one multi-document transaction.
type Store struct {
	db           *grove.DB
	mdb          *mongodriver.MongoDB
	transactions bool
}

// Option configures a Store.
type Option func(*Store)

// WithTransactions settles orders inside a driver session transaction. The
// deployment must be a replica set or sharded cluster.
func WithTransactions() Option {
	return func(s *Store) { s.transactions = true }
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB, opts ...Option) *Store {
	s := &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all checkout collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()

	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("checkout/mongo: migrate %s indexes: %w", col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Cart Store ====================

func (s *Store) GetCart(ctx context.Context, ownerID string) (*cart.Cart, error) {
	var m cartModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": ownerID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, checkout.ErrCartNotFound
		}
		return nil, fmt.Errorf("checkout/mongo: get cart: %w", err)
	}
	return fromCartModel(&m)
}

func (s *Store) SaveCart(ctx context.Context, c *cart.Cart, expectedVersion int64) error {
	m := toCartModel(c)

	if expectedVersion == 0 {
		_, err := s.mdb.NewInsert(m).Exec(ctx)
		if err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return checkout.ErrStaleCart
			}
			return fmt.Errorf("checkout/mongo: create cart: %w", err)
		}
		return nil
	}

	res, err := s.mdb.NewUpdate((*cartModel)(nil)).
		Filter(bson.M{"_id": c.OwnerID, "version": expectedVersion}).
		Set("items", m.Items).
		Set("version", m.Version).
		Set("updated_at", m.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("checkout/mongo: save cart: %w", err)
	}
	if res.MatchedCount() == 0 {
		return checkout.ErrStaleCart
	}
	return nil
}

func (s *Store) ClearCart(ctx context.Context, ownerID string) error {
	_, err := s.mdb.NewUpdate((*cartModel)(nil)).
		Filter(bson.M{"_id": ownerID}).
		SetUpdate(bson.M{
			"$set": bson.M{"items": bson.A{}, "updated_at": now()},
			"$inc": bson.M{"version": 1},
		}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("checkout/mongo: clear cart: %w", err)
	}
	return nil
}

// ==================== Order Store ====================

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	_, err := s.mdb.NewInsert(toOrderModel(o)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return checkout.ErrAlreadyExists
		}
		return fmt.Errorf("checkout/mongo: create order: %w", err)
	}
	return nil
}

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	return s.findOrder(ctx, bson.M{"_id": orderID.String()})
}

func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	return s.findOrder(ctx, bson.M{"number": number})
}

func (s *Store) findOrder(ctx context.Context, filter bson.M) (*order.Order, error) {
	var m orderModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, checkout.ErrOrderNotFound
		}
		return nil, fmt.Errorf("checkout/mongo: get order: %w", err)
	}
	return fromOrderModel(&m)
}

func (s *Store) ListOrders(ctx context.Context, ownerID string, opts order.ListOpts) ([]*order.Order, error) {
	var models []orderModel

	filter := bson.M{"owner_id": ownerID}
	if opts.Status != "" {
		filter["status"] = string(opts.Status)
	}

	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("checkout/mongo: list orders: %w", err)
	}
	return fromOrderModels(models)
}

func (s *Store) TransitionOrder(ctx context.Context, orderID id.OrderID, from, to order.Status, at time.Time) error {
	update := s.mdb.NewUpdate((*orderModel)(nil)).
		Filter(bson.M{"_id": orderID.String(), "status": string(from)}).
		Set("status", string(to)).
		Set("updated_at", at)
	if field := stampField(to); field != "" {
		update = update.Set(field, at)
	}

	res, err := update.Exec(ctx)
	if err != nil {
		return fmt.Errorf("checkout/mongo: transition order: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetOrder(ctx, orderID); err != nil {
			return err
		}
		return checkout.ErrConcurrentUpdate
	}
	return nil
}

func (s *Store) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*order.Order, error) {
	var models []orderModel

	q := s.mdb.NewFind(&models).
		Filter(bson.M{
			"status":     string(order.StatusPendingPayment),
			"expires_at": bson.M{"$ne": nil, "$lte": before},
		}).
		Sort(bson.D{{Key: "expires_at", Value: 1}})
	if limit > 0 {
		q = q.Limit(int64(limit))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("checkout/mongo: list expired orders: %w", err)
	}
	return fromOrderModels(models)
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	_, err := s.mdb.NewInsert(toPaymentModel(p)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return checkout.ErrAlreadyExists
		}
		return fmt.Errorf("checkout/mongo: create payment: %w", err)
	}
	return nil
}

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	return s.findPayment(ctx, bson.M{"_id": paymentID.String()})
}

func (s *Store) GetPaymentByReference(ctx context.Context, orderID id.OrderID, reference string) (*payment.Payment, error) {
	return s.findPayment(ctx, bson.M{"order_id": orderID.String(), "reference": reference})
}

func (s *Store) findPayment(ctx context.Context, filter bson.M) (*payment.Payment, error) {
	var m paymentModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, checkout.ErrPaymentNotFound
		}
		return nil, fmt.Errorf("checkout/mongo: get payment: %w", err)
	}
	return fromPaymentModel(&m)
}

func (s *Store) ListPayments(ctx context.Context, orderID id.OrderID) ([]*payment.Payment, error) {
	var models []paymentModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"order_id": orderID.String()}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkout/mongo: list payments: %w", err)
	}

	result := make([]*payment.Payment, len(models))
	for i := range models {
		p, err := fromPaymentModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = p
	}
	return result, nil
}

func (s *Store) SupersedePayments(ctx context.Context, orderID id.OrderID, keep id.PaymentID, reason string, at time.Time) (int64, error) {
	res, err := s.mdb.Collection(colPayments).UpdateMany(ctx,
		bson.M{
			"order_id": orderID.String(),
			"status":   string(payment.StatusInitiated),
			"_id":      bson.M{"$ne": keep.String()},
		},
		bson.M{"$set": bson.M{
			"status":         string(payment.StatusFailed),
			"failure_reason": reason,
			"updated_at":     at,
		}},
	)
	if err != nil {
		return 0, fmt.Errorf("checkout/mongo: supersede payments: %w", err)
	}
	return res.ModifiedCount, nil
}

func (s *Store) MarkOrderPaid(ctx context.Context, orderID id.OrderID, paymentID id.PaymentID, transactionID string, at time.Time) error {
	return s.settle(ctx, orderID, paymentID, order.StatusPaid, payment.StatusSuccess, transactionID, "", at)
}

func (s *Store) MarkOrderPaymentFailed(ctx context.Context, orderID id.OrderID, paymentID id.PaymentID, transactionID, reason string, at time.Time) error {
	return s.settle(ctx, orderID, paymentID, order.StatusPaymentFailed, payment.StatusFailed, transactionID, reason, at)
}

func (s *Store) settle(ctx context.Context, orderID id.OrderID, paymentID id.PaymentID, orderStatus order.Status, paymentStatus payment.Status, transactionID, reason string, at time.Time) error {
	p, err := s.GetPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if p.Status != payment.StatusInitiated || !p.OrderID.Equal(orderID) {
		return checkout.ErrConcurrentUpdate
	}

	pair := s.settlement(orderID, paymentID, orderStatus, paymentStatus, transactionID, reason, at)

	var moved bool
	if s.transactions {
		moved, err = s.inTransaction(ctx, func(ctx context.Context) (bool, error) {
			return checkoutstore.Settle(ctx, pair)
		})
	} else {
		moved, err = checkoutstore.Settle(ctx, pair)
	}
	if err != nil {
		return fmt.Errorf("checkout/mongo: settle order %s: %w", orderID, err)
	}
	if !moved {
		return checkout.ErrConcurrentUpdate
	}
	return nil
}

func (s *Store) settlement(orderID id.OrderID, paymentID id.PaymentID, orderStatus order.Status, paymentStatus payment.Status, transactionID, reason string, at time.Time) checkoutstore.Settlement {
	orders := s.mdb.Collection(colOrders)
	return checkoutstore.Settlement{
		Order: func(ctx context.Context) (bool, error) {
			res, err := orders.UpdateOne(ctx,
				bson.M{"_id": orderID.String(), "status": string(order.StatusPendingPayment)},
				bson.M{"$set": bson.M{
					"status":                string(orderStatus),
					stampField(orderStatus): at,
					"updated_at":            at,
				}},
			)
			if err != nil {
				return false, err
			}
			return res.MatchedCount > 0, nil
		},
		Payment: func(ctx context.Context) (bool, error) {
			res, err := s.mdb.NewUpdate((*paymentModel)(nil)).
				Filter(bson.M{"_id": paymentID.String(), "status": string(payment.StatusInitiated)}).
				Set("status", string(paymentStatus)).
				Set("transaction_id", transactionID).
				Set("failure_reason", reason).
				Set("confirmed_at", at).
				Set("updated_at", at).
				Exec(ctx)
			if err != nil {
				return false, err
			}
			return res.MatchedCount() > 0, nil
		},
		Revert: func(ctx context.Context) error {
			_, err := orders.UpdateOne(ctx,
				bson.M{"_id": orderID.String(), "status": string(orderStatus)},
				bson.M{
					"$set":   bson.M{"status": string(order.StatusPendingPayment), "updated_at": at},
					"$unset": bson.M{stampField(orderStatus): ""},
				},
			)
			return err
		},
	}
}

// inTransaction runs fn in a session transaction. The driver retries fn on
// transient transaction errors.
func (s *Store) inTransaction(ctx context.Context, fn func(ctx context.Context) (bool, error)) (bool, error) {
	sess, err := s.mdb.Collection(colOrders).Database().Client().StartSession()
	if err != nil {
		return false, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	var moved bool
	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		var err error
		moved, err = fn(ctx)
		if err == nil && !moved {
			// Abort; nothing of a lost race is committed.
			return nil, errLostRace
		}
		return nil, err
	})
	if errors.Is(err, errLostRace) {
		return false, nil
	}
	return moved, err
}

func (s *Store) FailPayment(ctx context.Context, paymentID id.PaymentID, transactionID, reason string, at time.Time) error {
	res, err := s.mdb.NewUpdate((*paymentModel)(nil)).
		Filter(bson.M{"_id": paymentID.String(), "status": string(payment.StatusInitiated)}).
		Set("status", string(payment.StatusFailed)).
		Set("transaction_id", transactionID).
		Set("failure_reason", reason).
		Set("confirmed_at", at).
		Set("updated_at", at).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("checkout/mongo: fail payment: %w", err)
	}
	if res.MatchedCount() == 0 {
		if _, err := s.GetPayment(ctx, paymentID); err != nil {
			return err
		}
		return checkout.ErrConcurrentUpdate
	}
	return nil
}

func (s *Store) FlagPayment(ctx context.Context, paymentID id.PaymentID, reason string, at time.Time) error {
	res, err := s.mdb.NewUpdate((*paymentModel)(nil)).
		Filter(bson.M{"_id": paymentID.String()}).
		Set("needs_review", true).
		Set("review_reason", reason).
		Set("updated_at", at).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("checkout/mongo: flag payment: %w", err)
	}
	if res.MatchedCount() == 0 {
		return checkout.ErrPaymentNotFound
	}
	return nil
}

// ==================== Exit Token Store ====================

func (s *Store) CreateExitToken(ctx context.Context, t *exittoken.Token) error {
	_, err := s.mdb.NewInsert(toExitTokenModel(t)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return checkout.ErrAlreadyExists
		}
		return fmt.Errorf("checkout/mongo: create exit token: %w", err)
	}
	return nil
}

func (s *Store) GetExitTokenByValue(ctx context.Context, value string) (*exittoken.Token, error) {
	return s.findExitToken(ctx, bson.M{"value": value})
}

func (s *Store) GetActiveExitToken(ctx context.Context, orderID id.OrderID, now time.Time) (*exittoken.Token, error) {
	return s.findExitToken(ctx, bson.M{
		"order_id":   orderID.String(),
		"status":     string(exittoken.StatusUnused),
		"expires_at": bson.M{"$gt": now},
	})
}

func (s *Store) LatestExitToken(ctx context.Context, orderID id.OrderID) (*exittoken.Token, error) {
	return s.findExitToken(ctx, bson.M{"order_id": orderID.String()})
}

func (s *Store) findExitToken(ctx context.Context, filter bson.M) (*exittoken.Token, error) {
	var m exitTokenModel
	err := s.mdb.NewFind(&m).
		Filter(filter).
		Sort(bson.D{{Key: "generation", Value: -1}}).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, checkout.ErrExitTokenNotFound
		}
		return nil, fmt.Errorf("checkout/mongo: get exit token: %w", err)
	}
	return fromExitTokenModel(&m)
}

func (s *Store) ConsumeExitToken(ctx context.Context, value string, now time.Time, verifiedBy string) (*exittoken.Token, error) {
	res, err := s.mdb.NewUpdate((*exitTokenModel)(nil)).
		Filter(bson.M{
			"value":      value,
			"status":     string(exittoken.StatusUnused),
			"expires_at": bson.M{"$gt": now},
		}).
		Set("status", string(exittoken.StatusUsed)).
		Set("used_at", now).
		Set("verified_by", verifiedBy).
		Set("updated_at", now).
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("checkout/mongo: consume exit token: %w", err)
	}

	t, err := s.GetExitTokenByValue(ctx, value)
	if err != nil {
		return nil, err
	}
	if res.MatchedCount() == 0 {
		return nil, checkout.ErrConcurrentUpdate
	}
	return t, nil
}

func (s *Store) ExpireExitToken(ctx context.Context, tokenID id.ExitTokenID, at time.Time) error {
	res, err := s.mdb.NewUpdate((*exitTokenModel)(nil)).
		Filter(bson.M{"_id": tokenID.String(), "status": string(exittoken.StatusUnused)}).
		Set("status", string(exittoken.StatusExpired)).
		Set("updated_at", at).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("checkout/mongo: expire exit token: %w", err)
	}
	if res.MatchedCount() == 0 {
		return checkout.ErrConcurrentUpdate
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// stampField is the timestamp field set when an order enters status.
func stampField(status order.Status) string {
	switch status {
	case order.StatusPaid:
		return "paid_at"
	case order.StatusExited:
		return "exited_at"
	case order.StatusCancelled, order.StatusPaymentFailed:
		return "closed_at"
	default:
		return ""
	}
}

func fromOrderModels(models []orderModel) ([]*order.Order, error) {
	result := make([]*order.Order, len(models))
	for i := range models {
		o, err := fromOrderModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = o
	}
	return result, nil
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all checkout collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colCarts: {},
		colOrders: {
			{
				Keys:    bson.D{{Key: "number", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}, {Key: "expires_at", Value: 1}}},
		},
		colPayments: {
			{
				Keys:    bson.D{{Key: "order_id", Value: 1}, {Key: "reference", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "needs_review", Value: 1}}},
		},
		colExitTokens: {
			{
				Keys:    bson.D{{Key: "value", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "order_id", Value: 1}, {Key: "generation", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
	}
}
