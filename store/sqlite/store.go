package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	checkout "github.com/xraph/checkout"
	"github.com/xraph/checkout/cart"
	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/order"
	"github.com/xraph/checkout/payment"
	checkoutstore "github.com/xraph/checkout/store"
)

// compile-time interface check
var _ checkoutstore.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("checkout/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("checkout/sqlite: migration failed: %w", err)
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
	m := new(cartModel)
	err := s.sdb.NewSelect(m).
		Where("owner_id = ?", ownerID).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, checkout.ErrCartNotFound
		}
		return nil, err
	}
	return fromCartModel(m)
}

func (s *Store) SaveCart(ctx context.Context, c *cart.Cart, expectedVersion int64) error {
	m, err := toCartModel(c)
	if err != nil {
		return err
	}

	if expectedVersion == 0 {
		res, err := s.sdb.NewInsert(m).
			OnConflict("(owner_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		return staleUnlessAffected(res)
	}

	res, err := s.sdb.NewUpdate((*cartModel)(nil)).
		Set("items = ?", m.Items).
		Set("version = ?", m.Version).
		Set("updated_at = ?", m.UpdatedAt).
		Where("owner_id = ?", c.OwnerID).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		return err
	}
	return staleUnlessAffected(res)
}

func (s *Store) ClearCart(ctx context.Context, ownerID string) error {
	_, err := s.sdb.NewUpdate((*cartModel)(nil)).
		Set("items = ?", json.RawMessage("[]")).
		Set("version = version + 1").
		Set("updated_at = ?", now()).
		Where("owner_id = ?", ownerID).
		Exec(ctx)
	return err
}

// ==================== Order Store ====================

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	m, err := toOrderModel(o)
	if err != nil {
		return err
	}
	res, err := s.sdb.NewInsert(m).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	return existsUnlessAffected(res)
}

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	m := new(orderModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", orderID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, checkout.ErrOrderNotFound
		}
		return nil, err
	}
	return fromOrderModel(m)
}

func (s *Store) GetOrderByNumber(ctx context.Context, number string) (*order.Order, error) {
	m := new(orderModel)
	err := s.sdb.NewSelect(m).
		Where("number = ?", number).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, checkout.ErrOrderNotFound
		}
		return nil, err
	}
	return fromOrderModel(m)
}

func (s *Store) ListOrders(ctx context.Context, ownerID string, opts order.ListOpts) ([]*order.Order, error) {
	var models []orderModel
	q := s.sdb.NewSelect(&models).Where("owner_id = ?", ownerID)

	if opts.Status != "" {
		q = q.Where("status = ?", string(opts.Status))
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at DESC, id DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromOrderModels(models)
}

func (s *Store) TransitionOrder(ctx context.Context, orderID id.OrderID, from, to order.Status, at time.Time) error {
	q := s.sdb.NewUpdate((*orderModel)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", at)
	if col := stampColumn(to); col != "" {
		q = q.Set(col+" = ?", at)
	}
	res, err := q.
		Where("id = ?", orderID.String()).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetOrder(ctx, orderID); err != nil {
			return err
		}
		return checkout.ErrConcurrentUpdate
	}
	return nil
}

func (s *Store) ListExpiredPending(ctx context.Context, before time.Time, limit int) ([]*order.Order, error) {
	var models []orderModel
	q := s.sdb.NewSelect(&models).
		Where("status = ?", string(order.StatusPendingPayment)).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", before).
		OrderExpr("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	return fromOrderModels(models)
}

// ==================== Payment Store ====================

func (s *Store) CreatePayment(ctx context.Context, p *payment.Payment) error {
	res, err := s.sdb.NewInsert(toPaymentModel(p)).
		OnConflict("(order_id, reference) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	return existsUnlessAffected(res)
}

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	m := new(paymentModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", paymentID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, checkout.ErrPaymentNotFound
		}
		return nil, err
	}
	return fromPaymentModel(m)
}

func (s *Store) GetPaymentByReference(ctx context.Context, orderID id.OrderID, reference string) (*payment.Payment, error) {
	m := new(paymentModel)
	err := s.sdb.NewSelect(m).
		Where("order_id = ?", orderID.String()).
		Where("reference = ?", reference).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, checkout.ErrPaymentNotFound
		}
		return nil, err
	}
	return fromPaymentModel(m)
}

func (s *Store) ListPayments(ctx context.Context, orderID id.OrderID) ([]*payment.Payment, error) {
	var models []paymentModel
	err := s.sdb.NewSelect(&models).
		Where("order_id = ?", orderID.String()).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
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
	res, err := s.sdb.NewUpdate((*paymentModel)(nil)).
		Set("status = ?", string(payment.StatusFailed)).
		Set("failure_reason = ?", reason).
		Set("updated_at = ?", at).
		Where("order_id = ?", orderID.String()).
		Where("status = ?", string(payment.StatusInitiated)).
		Where("id <> ?", keep.String()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) MarkOrderPaid(ctx context.Context, orderID id.OrderID, paymentID id.PaymentID, transactionID string, at time.Time) error {
	return s.settle(ctx, orderID, paymentID, order.StatusPaid, payment.StatusSuccess, transactionID, "", at)
}

func (s *Store) MarkOrderPaymentFailed(ctx context.Context, orderID id.OrderID, paymentID id.PaymentID, transactionID, reason string, at time.Time) error {
	return s.settle(ctx, orderID, paymentID, order.StatusPaymentFailed, payment.StatusFailed, transactionID, reason, at)
}

// settle moves the order first, guarded on the payment still being
// initiated, then the payment, guarded the same way. A payment that does not
// follow sends the order back to pending_payment.
func (s *Store) settle(ctx context.Context, orderID id.OrderID, paymentID id.PaymentID, orderStatus order.Status, paymentStatus payment.Status, transactionID, reason string, at time.Time) error {
	moved, err := checkoutstore.Settle(ctx, checkoutstore.Settlement{
		Order: func(ctx context.Context) (bool, error) {
			res, err := s.sdb.NewUpdate((*orderModel)(nil)).
				Set("status = ?", string(orderStatus)).
				Set(stampColumn(orderStatus)+" = ?", at).
				Set("updated_at = ?", at).
				Where("id = ?", orderID.String()).
				Where("status = ?", string(order.StatusPendingPayment)).
				Where("EXISTS (SELECT 1 FROM checkout_payments WHERE id = ? AND order_id = ? AND status = ?)",
					paymentID.String(), orderID.String(), string(payment.StatusInitiated)).
				Exec(ctx)
			return affected(res, err)
		},
		Payment: func(ctx context.Context) (bool, error) {
			res, err := s.sdb.NewUpdate((*paymentModel)(nil)).
				Set("status = ?", string(paymentStatus)).
				Set("transaction_id = ?", transactionID).
				Set("failure_reason = ?", reason).
				Set("confirmed_at = ?", at).
				Set("updated_at = ?", at).
				Where("id = ?", paymentID.String()).
				Where("status = ?", string(payment.StatusInitiated)).
				Exec(ctx)
			return affected(res, err)
		},
		Revert: func(ctx context.Context) error {
			_, err := s.sdb.NewUpdate((*orderModel)(nil)).
				Set("status = ?", string(order.StatusPendingPayment)).
				Set(stampColumn(orderStatus) + " = NULL").
				Set("updated_at = ?", at).
				Where("id = ?", orderID.String()).
				Where("status = ?", string(orderStatus)).
				Exec(ctx)
			return err
		},
	})
	if err != nil {
		return fmt.Errorf("checkout/sqlite: settle order %s: %w", orderID, err)
	}
	if !moved {
		if _, err := s.GetPayment(ctx, paymentID); err != nil {
			return err
		}
		return checkout.ErrConcurrentUpdate
	}
	return nil
}

func affected(res rowsAffecter, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	return rows > 0, err
}

func (s *Store) FailPayment(ctx context.Context, paymentID id.PaymentID, transactionID, reason string, at time.Time) error {
	res, err := s.sdb.NewUpdate((*paymentModel)(nil)).
		Set("status = ?", string(payment.StatusFailed)).
		Set("transaction_id = ?", transactionID).
		Set("failure_reason = ?", reason).
		Set("confirmed_at = ?", at).
		Set("updated_at = ?", at).
		Where("id = ?", paymentID.String()).
		Where("status = ?", string(payment.StatusInitiated)).
		Exec(ctx)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, err := s.GetPayment(ctx, paymentID); err != nil {
			return err
		}
		return checkout.ErrConcurrentUpdate
	}
	return nil
}

func (s *Store) FlagPayment(ctx context.Context, paymentID id.PaymentID, reason string, at time.Time) error {
	res, err := s.sdb.NewUpdate((*paymentModel)(nil)).
		Set("needs_review = ?", true).
		Set("review_reason = ?", reason).
		Set("updated_at = ?", at).
		Where("id = ?", paymentID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return checkout.ErrPaymentNotFound
	}
	return nil
}

// ==================== Exit Token Store ====================

func (s *Store) CreateExitToken(ctx context.Context, t *exittoken.Token) error {
	res, err := s.sdb.NewInsert(toExitTokenModel(t)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	return existsUnlessAffected(res)
}

func (s *Store) GetExitTokenByValue(ctx context.Context, value string) (*exittoken.Token, error) {
	m := new(exitTokenModel)
	err := s.sdb.NewSelect(m).
		Where("value = ?", value).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, checkout.ErrExitTokenNotFound
		}
		return nil, err
	}
	return fromExitTokenModel(m)
}

func (s *Store) GetActiveExitToken(ctx context.Context, orderID id.OrderID, now time.Time) (*exittoken.Token, error) {
	m := new(exitTokenModel)
	err := s.sdb.NewSelect(m).
		Where("order_id = ?", orderID.String()).
		Where("status = ?", string(exittoken.StatusUnused)).
		Where("expires_at > ?", now).
		OrderExpr("generation DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, checkout.ErrExitTokenNotFound
		}
		return nil, err
	}
	return fromExitTokenModel(m)
}

func (s *Store) LatestExitToken(ctx context.Context, orderID id.OrderID) (*exittoken.Token, error) {
	m := new(exitTokenModel)
	err := s.sdb.NewSelect(m).
		Where("order_id = ?", orderID.String()).
		OrderExpr("generation DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, checkout.ErrExitTokenNotFound
		}
		return nil, err
	}
	return fromExitTokenModel(m)
}

func (s *Store) ConsumeExitToken(ctx context.Context, value string, now time.Time, verifiedBy string) (*exittoken.Token, error) {
	res, err := s.sdb.NewUpdate((*exitTokenModel)(nil)).
		Set("status = ?", string(exittoken.StatusUsed)).
		Set("used_at = ?", now).
		Set("verified_by = ?", verifiedBy).
		Set("updated_at = ?", now).
		Where("value = ?", value).
		Where("status = ?", string(exittoken.StatusUnused)).
		Where("expires_at > ?", now).
		Exec(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}

	t, err := s.GetExitTokenByValue(ctx, value)
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, checkout.ErrConcurrentUpdate
	}
	return t, nil
}

func (s *Store) ExpireExitToken(ctx context.Context, tokenID id.ExitTokenID, at time.Time) error {
	res, err := s.sdb.NewUpdate((*exitTokenModel)(nil)).
		Set("status = ?", string(exittoken.StatusExpired)).
		Set("updated_at = ?", at).
		Where("id = ?", tokenID.String()).
		Where("status = ?", string(exittoken.StatusUnused)).
		Exec(ctx)
	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return checkout.ErrConcurrentUpdate
	}
	return nil
}

// ==================== Helpers ====================

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// stampColumn is the timestamp column set when an order enters status.
func stampColumn(status order.Status) string {
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

// rowsAffecter is the part of an exec result the CAS helpers inspect.
type rowsAffecter interface {
	RowsAffected() (int64, error)
}

func staleUnlessAffected(res rowsAffecter) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return checkout.ErrStaleCart
	}
	return nil
}

func existsUnlessAffected(res rowsAffecter) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return checkout.ErrAlreadyExists
	}
	return nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
