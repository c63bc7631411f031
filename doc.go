// Package checkout is the backend of a scan-and-go self-checkout system.
//
// A shopper fills a cart on their own device, compiles it into an order,
// pays through an external provider and receives a short-lived exit token.
// A gate terminal verifies the token once and lets the shopper leave.
//
// Checkout is a library. The daemon in cmd/checkoutd exposes it over HTTP,
// but the Engine can be embedded directly:
//
//	import (
//	    "github.com/xraph/checkout"
//	    "github.com/xraph/checkout/store/postgres"
//	)
//
//	s := postgres.New(db)
//	eng := checkout.New(s,
//	    checkout.WithCatalog(products),
//	    checkout.WithPaymentProvider(provider),
//	)
//	if err := eng.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Stop()
//
// # Flow
//
// Carts are keyed by owner and versioned. Every mutation names the version
// the caller last read and fails with ErrStaleCart if another device got
// there first:
//
//	snap, err := eng.AddToCart(ctx, owner, snap.Version, "sku-123", 2)
//
// CompileOrder freezes the cart's prices into a pending order. Nothing on the
// cart changes until the shopper actually leaves:
//
//	o, err := eng.CompileOrder(ctx, owner)
//	p, err := eng.InitiatePayment(ctx, owner, o.ID, "card", "")
//
// The provider confirms asynchronously. ConfirmPayment tolerates duplicate
// and reordered deliveries and moves the order at most once:
//
//	out, err := eng.ConfirmPayment(ctx, event)
//
// Once paid, the shopper's device asks for an exit token. ErrNotPaid is
// transient while the confirmation is still in flight, which is what
// IssueExitTokenWithRetry absorbs:
//
//	tok, err := eng.IssueExitTokenWithRetry(ctx, owner, o.ID)
//	res, err := eng.VerifyExitToken(ctx, tok.Value, "gate-1")
//
// # Money
//
// Amounts are integers in the currency's minor unit. Tax is computed with
// decimal arithmetic and rounded half up, once per order, by the pricing
// package. Cart display and order compilation share the same code.
//
// # Concurrency
//
// Order, payment and exit-token statuses only move through compare-and-set
// transitions in the store. Any number of engines may share one store.
//
// # TypeID
//
// Entities use TypeIDs, which are opaque, unguessable in sequence and safe to
// put in URLs and QR payloads:
//
//	cart_01h2xcejqtf2nbrexx3vqjhp41
//	ord_01h2xcejqtf2nbrexx3vqjhp41
//	xtok_01h455vb4pex5vsknk084sn02q
package checkout
