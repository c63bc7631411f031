package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/xraph/checkout/exittoken"
	"github.com/xraph/checkout/id"
	"github.com/xraph/checkout/order"
)

// ──────────────────────────────────────────────────
// Exit tokens
// ──────────────────────────────────────────────────

// exitRecordAttempts bounds how often an admitted exit is written to the order.
const exitRecordAttempts = 3

// IssueExitToken hands out the exit pass for a paid order. The first call
// moves the order to exit_issued and clears the owner's cart. Later calls
// return the active token, or mint a replacement once it has expired, so an
// order never has more than one usable token. An order still awaiting
// payment fails with ErrNotPaid, which callers treat as transient.
func (e *Engine) IssueExitToken(ctx context.Context, ownerID string, orderID id.OrderID) (*exittoken.Token, error) {
	for range maxRaceAttempts {
		o, err := e.GetOwnedOrder(ctx, ownerID, orderID)
		if err != nil {
			return nil, err
		}

		var t *exittoken.Token
		switch o.Status {
		case order.StatusPendingPayment:
			return nil, ErrNotPaid

		case order.StatusPaid:
			t, err = e.firstExitToken(ctx, o)

		case order.StatusExitIssued:
			t, err = e.currentExitToken(ctx, o)

		case order.StatusExited:
			return nil, ErrAlreadyExited

		default:
			return nil, ErrInvalidState
		}

		if errors.Is(err, ErrConcurrentUpdate) || errors.Is(err, ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return t, nil
	}

	return nil, ErrConcurrentUpdate
}

// IssueExitTokenWithRetry calls IssueExitToken with exponential backoff while
// the order is not yet paid or a race was lost. It gives up after the
// configured number of attempts and returns the last error.
func (e *Engine) IssueExitTokenWithRetry(ctx context.Context, ownerID string, orderID id.OrderID) (*exittoken.Token, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = e.issueInitialInterval
	b.MaxInterval = e.issueMaxInterval

	attempt := 0
	operation := func() (*exittoken.Token, error) {
		attempt++
		t, err := e.IssueExitToken(ctx, ownerID, orderID)
		if err == nil {
			return t, nil
		}
		if IsTransient(err) || IsConcurrencyConflict(err) {
			e.logger.Debug("exit token not ready, retrying",
				"order_id", orderID.String(),
				"attempt", attempt,
				"error", err,
			)
			return nil, err
		}
		return nil, backoff.Permanent(err)
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(e.issueAttempts),
	)
}

func (e *Engine) firstExitToken(ctx context.Context, o *order.Order) (*exittoken.Token, error) {
	at := e.now()
	if err := e.store.TransitionOrder(ctx, o.ID, order.StatusPaid, order.StatusExitIssued, at); err != nil {
		return nil, err
	}
	o.Apply(order.StatusExitIssued, at)

	if err := e.store.ClearCart(ctx, o.OwnerID); err != nil {
		e.logger.Warn("failed to clear cart after checkout",
			"order_id", o.ID.String(),
			"owner_id", o.OwnerID,
			"error", err,
		)
	}

	return e.mintExitToken(ctx, o, 1)
}

func (e *Engine) currentExitToken(ctx context.Context, o *order.Order) (*exittoken.Token, error) {
	now := e.now()
	active, err := e.store.GetActiveExitToken(ctx, o.ID, now)
	if err == nil {
		return active, nil
	}
	if !errors.Is(err, ErrExitTokenNotFound) {
		return nil, err
	}

	generation := 1
	latest, err := e.store.LatestExitToken(ctx, o.ID)
	switch {
	case err == nil && latest.Status == exittoken.StatusUsed:
		// The gate admitted this order but the exited write was lost.
		e.repairExited(ctx, o, latest)
		return nil, ErrAlreadyExited
	case err == nil:
		generation = latest.Generation + 1
		if latest.Status == exittoken.StatusUnused {
			err = e.store.ExpireExitToken(ctx, latest.ID, now)
			if err != nil && !errors.Is(err, ErrConcurrentUpdate) {
				return nil, err
			}
		}
	case !errors.Is(err, ErrExitTokenNotFound):
		return nil, err
	}

	return e.mintExitToken(ctx, o, generation)
}

func (e *Engine) mintExitToken(ctx context.Context, o *order.Order, generation int) (*exittoken.Token, error) {
	t, err := exittoken.New(o.ID, generation, e.now(), e.exitTokenTTL)
	if err != nil {
		return nil, err
	}
	if err := e.store.CreateExitToken(ctx, t); err != nil {
		return nil, err
	}

	e.logger.Info("exit token issued",
		"order_id", o.ID.String(),
		"token_id", t.ID.String(),
		"generation", generation,
		"expires_at", t.ExpiresAt,
	)
	e.plugins.EmitExitTokenIssued(ctx, o, t)
	return t, nil
}

// VerifyExitToken checks a scanned or pasted token at the gate. A valid token
// is consumed in a single compare-and-set, so of any number of concurrent
// calls with the same token exactly one is told the shopper may leave.
// verifiedBy names the gate or operator and is recorded on the token.
func (e *Engine) VerifyExitToken(ctx context.Context, value, verifiedBy string) (*exittoken.Result, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return e.deny(ctx, exittoken.OutcomeInvalid, nil), nil
	}

	for range maxRaceAttempts {
		t, err := e.store.GetExitTokenByValue(ctx, value)
		if errors.Is(err, ErrExitTokenNotFound) {
			return e.deny(ctx, exittoken.OutcomeInvalid, nil), nil
		}
		if err != nil {
			return nil, err
		}

		now := e.now()
		switch exittoken.Classify(t, now) {
		case exittoken.OutcomeAlreadyUsed:
			return e.deny(ctx, exittoken.OutcomeAlreadyUsed, t), nil

		case exittoken.OutcomeExpired:
			if t.Status == exittoken.StatusUnused {
				if err := e.store.ExpireExitToken(ctx, t.ID, now); err != nil && !errors.Is(err, ErrConcurrentUpdate) {
					return nil, err
				}
				t.Status = exittoken.StatusExpired
			}
			return e.deny(ctx, exittoken.OutcomeExpired, t), nil

		case exittoken.OutcomeValid:
			used, err := e.store.ConsumeExitToken(ctx, value, now, verifiedBy)
			if errors.Is(err, ErrConcurrentUpdate) {
				continue
			}
			if err != nil {
				return nil, err
			}
			return e.admit(ctx, used)

		default:
			return e.deny(ctx, exittoken.OutcomeInvalid, t), nil
		}
	}

	return nil, ErrConcurrentUpdate
}

func (e *Engine) admit(ctx context.Context, t *exittoken.Token) (*exittoken.Result, error) {
	o, err := e.markExited(ctx, t.OrderID)
	if err != nil {
		e.logger.Error("exit token consumed but order not moved to exited",
			"order_id", t.OrderID.String(),
			"token_id", t.ID.String(),
			"error", err,
		)
		return nil, err
	}

	e.logger.Info("exit verified",
		"order_id", o.ID.String(),
		"number", o.Number,
		"token_id", t.ID.String(),
		"verified_by", t.VerifiedBy,
	)
	e.plugins.EmitExitVerified(ctx, o, t)

	return &exittoken.Result{
		Valid:     true,
		Status:    exittoken.OutcomeValid,
		Summary:   exittoken.SummaryOf(o),
		UsedAt:    t.UsedAt,
		ExpiresAt: &t.ExpiresAt,
	}, nil
}

// markExited moves the order exit_issued→exited, retrying store failures a
// few times. An order found already exited counts as done.
func (e *Engine) markExited(ctx context.Context, orderID id.OrderID) (*order.Order, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 50 * time.Millisecond
	b.MaxInterval = 500 * time.Millisecond

	operation := func() (*order.Order, error) {
		o, err := e.store.GetOrder(ctx, orderID)
		if IsNotFound(err) {
			return nil, backoff.Permanent(err)
		}
		if err != nil {
			return nil, err
		}

		switch o.Status {
		case order.StatusExited:
			return o, nil
		case order.StatusExitIssued:
		default:
			return nil, backoff.Permanent(fmt.Errorf("%w: order is %s", ErrInvalidState, o.Status))
		}

		at := e.now()
		if err := e.store.TransitionOrder(ctx, o.ID, order.StatusExitIssued, order.StatusExited, at); err != nil {
			return nil, err
		}
		o.Apply(order.StatusExited, at)
		return o, nil
	}

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(exitRecordAttempts),
	)
}

func (e *Engine) repairExited(ctx context.Context, o *order.Order, used *exittoken.Token) {
	err := e.store.TransitionOrder(ctx, o.ID, order.StatusExitIssued, order.StatusExited, e.now())
	if err != nil && !errors.Is(err, ErrConcurrentUpdate) {
		e.logger.Error("failed to mark order exited after token use",
			"order_id", o.ID.String(),
			"token_id", used.ID.String(),
			"error", err,
		)
		return
	}
	e.logger.Warn("order marked exited from used exit token",
		"order_id", o.ID.String(),
		"token_id", used.ID.String(),
	)
}

func (e *Engine) deny(ctx context.Context, outcome exittoken.Outcome, t *exittoken.Token) *exittoken.Result {
	attrs := []any{"outcome", string(outcome)}
	if t != nil {
		attrs = append(attrs, "order_id", t.OrderID.String(), "token_id", t.ID.String())
	}
	e.logger.Warn("exit denied", attrs...)
	e.plugins.EmitExitDenied(ctx, outcome, t)
	return exittoken.Denied(outcome, t)
}
