package exittoken

import (
	"context"
	"time"

	"github.com/xraph/checkout/id"
)

type Store interface {
	// CreateExitToken inserts a token. A clash on (order, generation) or on the
	// value returns ErrAlreadyExists.
	CreateExitToken(ctx context.Context, t *Token) error
	GetExitTokenByValue(ctx context.Context, value string) (*Token, error)

	// GetActiveExitToken returns the order's unused token that has not expired at now.
	GetActiveExitToken(ctx context.Context, orderID id.OrderID, now time.Time) (*Token, error)

	// LatestExitToken returns the order's token with the highest generation.
	LatestExitToken(ctx context.Context, orderID id.OrderID) (*Token, error)

	// ConsumeExitToken flips the token unused→used if it is unused and expires
	// after now, in a single indivisible step. Otherwise it returns
	// ErrConcurrentUpdate and changes nothing.
	ConsumeExitToken(ctx context.Context, value string, now time.Time, verifiedBy string) (*Token, error)

	// ExpireExitToken flips the token unused→expired. A token that is no longer
	// unused is left alone and ErrConcurrentUpdate is returned.
	ExpireExitToken(ctx context.Context, tokenID id.ExitTokenID, at time.Time) error
}
