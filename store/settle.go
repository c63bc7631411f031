package store

import (
	"context"
	"errors"
	"fmt"
)

// Settlement is the write sequence for backends that cannot move an order
// and its payment in a single statement.
type Settlement struct {
	// Order moves the order out of pending_payment, guarded on it still being
	// pending. It reports whether the row was moved.
	Order func(ctx context.Context) (bool, error)

	// Payment moves the payment out of initiated, guarded on it still being
	// initiated. It reports whether the row was moved.
	Payment func(ctx context.Context) (bool, error)

	// Revert puts a moved order back into pending_payment.
	Revert func(ctx context.Context) error
}

// Settle runs s. It returns false with a nil error when either guard lost
// its race; the order is then back where it started. A failed payment write
// is reverted the same way and its error returned.
func Settle(ctx context.Context, s Settlement) (bool, error) {
	moved, err := s.Order(ctx)
	if err != nil || !moved {
		return false, err
	}

	moved, err = s.Payment(ctx)
	if err == nil && moved {
		return true, nil
	}

	if revErr := s.Revert(ctx); revErr != nil {
		revErr = fmt.Errorf("revert order: %w", revErr)
		if err == nil {
			return false, revErr
		}
		return false, errors.Join(err, revErr)
	}
	return false, err
}
