package sqlite

import (
	"context"

	"github.com/xraph/grove/migrate"
)

// Migrations is the grove migration group for the checkout store (SQLite).
var Migrations = migrate.NewGroup("checkout")

func init() {
	Migrations.MustRegister(
		&migrate.Migration{
			Name:    "create_checkout_carts",
			Version: "20240101000001",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS checkout_carts (
    id         TEXT PRIMARY KEY,
    owner_id   TEXT NOT NULL,
    items      TEXT NOT NULL DEFAULT '[]',
    version    INTEGER NOT NULL DEFAULT 0,
    created_at TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_checkout_carts_owner ON checkout_carts (owner_id);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS checkout_carts`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_checkout_orders",
			Version: "20240101000002",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS checkout_orders (
    id               TEXT PRIMARY KEY,
    number           TEXT NOT NULL,
    owner_id         TEXT NOT NULL,
    cart_id          TEXT NOT NULL DEFAULT '',
    cart_version     INTEGER NOT NULL DEFAULT 0,
    items            TEXT NOT NULL DEFAULT '[]',
    subtotal         INTEGER NOT NULL DEFAULT 0,
    tax              INTEGER NOT NULL DEFAULT 0,
    total            INTEGER NOT NULL DEFAULT 0,
    currency         TEXT NOT NULL DEFAULT '',
    tax_rate_percent TEXT NOT NULL DEFAULT '0',
    status           TEXT NOT NULL DEFAULT 'pending_payment',
    expires_at       TEXT,
    paid_at          TEXT,
    exited_at        TEXT,
    closed_at        TEXT,
    created_at       TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at       TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_checkout_orders_number ON checkout_orders (number);
CREATE INDEX IF NOT EXISTS idx_checkout_orders_owner ON checkout_orders (owner_id, created_at);
CREATE INDEX IF NOT EXISTS idx_checkout_orders_pending ON checkout_orders (expires_at) WHERE status = 'pending_payment';
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS checkout_orders`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_checkout_payments",
			Version: "20240101000003",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS checkout_payments (
    id             TEXT PRIMARY KEY,
    order_id       TEXT NOT NULL REFERENCES checkout_orders (id),
    provider       TEXT NOT NULL DEFAULT '',
    method         TEXT NOT NULL DEFAULT '',
    reference      TEXT NOT NULL,
    handle         TEXT NOT NULL DEFAULT '',
    client_secret  TEXT NOT NULL DEFAULT '',
    redirect_url   TEXT NOT NULL DEFAULT '',
    amount         INTEGER NOT NULL DEFAULT 0,
    currency       TEXT NOT NULL DEFAULT '',
    status         TEXT NOT NULL DEFAULT 'initiated',
    transaction_id TEXT NOT NULL DEFAULT '',
    failure_reason TEXT NOT NULL DEFAULT '',
    needs_review   INTEGER NOT NULL DEFAULT 0,
    review_reason  TEXT NOT NULL DEFAULT '',
    confirmed_at   TEXT,
    created_at     TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at     TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_checkout_payments_reference ON checkout_payments (order_id, reference);
CREATE INDEX IF NOT EXISTS idx_checkout_payments_review ON checkout_payments (needs_review) WHERE needs_review = 1;
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS checkout_payments`)
				return err
			},
		},
		&migrate.Migration{
			Name:    "create_checkout_exit_tokens",
			Version: "20240101000004",
			Up: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `
CREATE TABLE IF NOT EXISTS checkout_exit_tokens (
    id          TEXT PRIMARY KEY,
    value       TEXT NOT NULL,
    order_id    TEXT NOT NULL REFERENCES checkout_orders (id),
    generation  INTEGER NOT NULL DEFAULT 1,
    issued_at   TEXT NOT NULL,
    expires_at  TEXT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'unused',
    used_at     TEXT,
    verified_by TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_checkout_exit_tokens_value ON checkout_exit_tokens (value);
CREATE UNIQUE INDEX IF NOT EXISTS idx_checkout_exit_tokens_generation ON checkout_exit_tokens (order_id, generation);
`)
				return err
			},
			Down: func(ctx context.Context, exec migrate.Executor) error {
				_, err := exec.Exec(ctx, `DROP TABLE IF EXISTS checkout_exit_tokens`)
				return err
			},
		},
	)
}
