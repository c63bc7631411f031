package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("checkout/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("checkout/postgres: migration failed: %w", err)
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
	err := s.pg.NewSelect(m).
		Where("owner_id = $1", ownerID).
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
		res, err := s.pg.NewInsert(m).
			OnConflict("(owner_id) DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		return staleUnlessAffected(res)
	}

	res, err := s.pg.NewUpdate((*cartModel)(nil)).
		Set("items = $1", m.Items).
		Set("version = $2", m.Version).
		Set("updated_at = $3", m.UpdatedAt).
		Where("owner_id = $4", c.OwnerID).
		Where("version = $5", expectedVersion).
		Exec(ctx)
	if err != nil {
		return err
	}
	return staleUnlessAffected(res)
}

func (s *Store) ClearCart(ctx context.Context, ownerID string) error {
	_, err := s.pg.NewUpdate((*cartModel)(nil)).
		Set("items = $1", json.RawMessage("[]")).
		Set("version = version + 1").
		Set("updated_at = $2", now()).
		Where("owner_id = $3", ownerID).
		Exec(ctx)
	return err
}

// ==================== Order Store ====================

func (s *Store) CreateOrder(ctx context.Context, o *order.Order) error {
	m, err := toOrderModel(o)
	if err != nil {
		return err
	}
	res, err := s.pg.NewInsert(m).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	return existsUnlessAffected(res)
}

func (s *Store) GetOrder(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	m := new(orderModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", orderID.String()).
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
	err := s.pg.NewSelect(m).
		Where("number = $1", number).
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
	q := s.pg.NewSelect(&models).Where("owner_id = $1", ownerID)

	if opts.Status != "" {
		q = q.Where("status = $2", string(opts.Status))
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
	q := s.pg.NewUpdate((*orderModel)(nil)).
		Set("status = $1", string(to)).
		Set("updated_at = $2", at)

	argIdx := 2
	if col := stampColumn(to); col != "" {
		argIdx++
		q = q.Set(fmt.Sprintf("%s = $%d", col, argIdx), at)
	}
	res, err := q.
		Where(fmt.Sprintf("id = $%d", argIdx+1), orderID.String()).
		Where(fmt.Sprintf("status = $%d", argIdx+2), string(from)).
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
	q := s.pg.NewSelect(&models).
		Where("status = $1", string(order.StatusPendingPayment)).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= $2", before).
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
	res, err := s.pg.NewInsert(toPaymentModel(p)).
		OnConflict("(order_id, reference) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	return existsUnlessAffected(res)
}

func (s *Store) GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error) {
	m := new(paymentModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", paymentID.String()).
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
	err := s.pg.NewSelect(m).
		Where("order_id = $1", orderID.String()).
		Where("reference = $2", reference).
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
	err := s.pg.NewSelect(&models).
		Where("order_id = $1", orderID.String()).
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
	res, err := s.pg.NewUpdate((*paymentModel)(nil)).
		Set("status = $1", string(payment.StatusFailed)).
		Set("failure_reason = $2", reason).
		Set("updated_at = $3", at).
		Where("order_id = $4", orderID.String()).
		Where("status = $5", string(payment.StatusInitiated)).
		Where("id <> $6", keep.String()).
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// settleSQL moves an order out of pending_payment and its payment out of
// initiated in one statement. The payment row is locked before the order is
// touched, so a concurrent supersede cannot leave the pair half applied.
const settleSQL = `
WITH p_lock AS (
    SELECT id FROM checkout_payments
    WHERE id = $3 AND order_id = $2 AND status = 'initiated'
    FOR UPDATE
), o AS (
    UPDATE checkout_orders
    SET status = $5, %[1]s = $1, updated_at = $1
    WHERE id = $2 AND status = 'pending_payment' AND EXISTS (SELECT 1 FROM p_lock)
    RETURNING id
), p AS (
    UPDATE checkout_payments
    SET status = $6, transaction_id = $4, failure_reason = $7, confirmed_at = $1, updated_at = $1
    WHERE id IN (SELECT id FROM p_lock) AND EXISTS (SELECT 1 FROM o)
    RETURNING id
)
SELECT count(*) FROM p`

func (s *Store) MarkOrderPaid(ctx context.Context, orderID id.OrderID, paymentID id.PaymentID, transactionID string, at time.Time) error {
	return s.settle(ctx, orderID, paymentID, order.StatusPaid, payment.StatusSuccess, transactionID, "", at)
}

func (s *Store) MarkOrderPaymentFailed(ctx context.Context, orderID id.OrderID, paymentID id.PaymentID, transactionID, reason string, at time.Time) error {
	return s.settle(ctx, orderID, paymentID, order.StatusPaymentFailed, payment.StatusFailed, transactionID, reason, at)
}

func (s *Store) settle(ctx context.Context, orderID id.OrderID, paymentID id.PaymentID, orderStatus order.Status, paymentStatus payment.Status, transactionID, reason string, at time.Time) error {
	var n int64
	err := s.pg.NewRaw(fmt.Sprintf(settleSQL, stampColumn(orderStatus)),
		at, orderID.String(), paymentID.String(), transactionID,
		string(orderStatus), string(paymentStatus), reason,
	).Scan(ctx, &n)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetPayment(ctx, paymentID); err != nil {
			return err
		}
		return checkout.ErrConcurrentUpdate
	}
	return nil
}

func (s *Store) FailPayment(ctx context.Context, paymentID id.PaymentID, transactionID, reason string, at time.Time) error {
	res, err := s.pg.NewUpdate((*paymentModel)(nil)).
		Set("status = $1", string(payment.StatusFailed)).
		Set("transaction_id = $2", transactionID).
		Set("failure_reason = $3", reason).
		Set("confirmed_at = $4", at).
		Set("updated_at = $5", at).
		Where("id = $6", paymentID.String()).
		Where("status = $7", string(payment.StatusInitiated)).
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
	res, err := s.pg.NewUpdate((*paymentModel)(nil)).
		Set("needs_review = $1", true).
		Set("review_reason = $2", reason).
		Set("updated_at = $3", at).
		Where("id = $4", paymentID.String()).
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
	res, err := s.pg.NewInsert(toExitTokenModel(t)).
		OnConflict("DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	return existsUnlessAffected(res)
}

func (s *Store) GetExitTokenByValue(ctx context.Context, value string) (*exittoken.Token, error) {
	m := new(exitTokenModel)
	err := s.pg.NewSelect(m).
		Where("value = $1", value).
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
	err := s.pg.NewSelect(m).
		Where("order_id = $1", orderID.String()).
		Where("status = $2", string(exittoken.StatusUnused)).
		Where("expires_at > $3", now).
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
	err := s.pg.NewSelect(m).
		Where("order_id = $1", orderID.String()).
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
	res, err := s.pg.NewUpdate((*exitTokenModel)(nil)).
		Set("status = $1", string(exittoken.StatusUsed)).
		Set("used_at = $2", now).
		Set("verified_by = $3", verifiedBy).
		Set("updated_at = $4", now).
		Where("value = $5", value).
		Where("status = $6", string(exittoken.StatusUnused)).
		Where("expires_at > $7", now).
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
	res, err := s.pg.NewUpdate((*exitTokenModel)(nil)).
		Set("status = $1", string(exittoken.StatusExpired)).
		Set("updated_at = $2", at).
		Where("id = $3", tokenID.String()).
		Where("status = $4", string(exittoken.StatusUnused)).
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
