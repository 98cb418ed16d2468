package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens the Postgres pool and verifies connectivity.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables the core depends on. The UNIQUE constraints
// on invoices.order_id and worker_earnings.invoice_id are load-bearing: they
// enforce at-most-one invoice per order and exactly-once earnings derivation
// even if two settlement reactions race.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS services (
			id UUID PRIMARY KEY,
			provider_id UUID NULL,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			city TEXT NOT NULL DEFAULT '',
			price_cents BIGINT NOT NULL DEFAULT 0 CHECK (price_cents >= 0),
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS orders (
			id UUID PRIMARY KEY,
			customer_id UUID NOT NULL,
			provider_id UUID NULL,
			service_id UUID NOT NULL REFERENCES services(id),
			description TEXT NOT NULL DEFAULT '',
			offered_price_cents BIGINT NULL CHECK (offered_price_cents IS NULL OR offered_price_cents > 0),
			location_lat DOUBLE PRECISION NULL,
			location_lng DOUBLE PRECISION NULL,
			location_address TEXT NULL,
			scheduled_at TIMESTAMPTZ NOT NULL,
			due_at TIMESTAMPTZ NULL,
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN (
				'pending', 'accepted', 'in_progress', 'completed',
				'approved_completed', 'declined', 'cancelled'
			)),
			decline_reason TEXT NOT NULL DEFAULT '',
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_orders_customer ON orders(customer_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_orders_provider ON orders(provider_id) WHERE provider_id IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status) WHERE NOT is_deleted;

		CREATE TABLE IF NOT EXISTS offers (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			provider_id UUID NOT NULL,
			proposed_price_cents BIGINT NOT NULL CHECK (proposed_price_cents > 0),
			accepted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_offers_order ON offers(order_id, created_at);

		CREATE TABLE IF NOT EXISTS negotiations (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			sender_id UUID NOT NULL,
			message TEXT NOT NULL,
			proposed_price_cents BIGINT NULL CHECK (proposed_price_cents IS NULL OR proposed_price_cents > 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_negotiations_order ON negotiations(order_id, created_at);

		CREATE TABLE IF NOT EXISTS invoices (
			id UUID PRIMARY KEY,
			order_id UUID NOT NULL UNIQUE REFERENCES orders(id),
			customer_id UUID NOT NULL,
			provider_id UUID NOT NULL,
			amount_cents BIGINT NOT NULL CHECK (amount_cents >= 1),
			status TEXT NOT NULL DEFAULT 'unpaid' CHECK (status IN ('unpaid', 'pending', 'paid')),
			payment_method TEXT NULL,
			issued_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			due_at TIMESTAMPTZ NOT NULL,
			paid_at TIMESTAMPTZ NULL
		);
		CREATE INDEX IF NOT EXISTS idx_invoices_customer ON invoices(customer_id, issued_at);
		CREATE INDEX IF NOT EXISTS idx_invoices_provider ON invoices(provider_id, issued_at);

		CREATE TABLE IF NOT EXISTS worker_earnings (
			id UUID PRIMARY KEY,
			invoice_id UUID NOT NULL UNIQUE REFERENCES invoices(id),
			order_id UUID NOT NULL REFERENCES orders(id),
			provider_id UUID NOT NULL,
			gross_cents BIGINT NOT NULL CHECK (gross_cents >= 0),
			fee_cents BIGINT NOT NULL CHECK (fee_cents >= 0),
			net_cents BIGINT NOT NULL CHECK (net_cents >= 0),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (fee_cents + net_cents = gross_cents)
		);
		CREATE INDEX IF NOT EXISTS idx_earnings_provider ON worker_earnings(provider_id, created_at);

		CREATE TABLE IF NOT EXISTS notifications (
			id UUID PRIMARY KEY,
			recipient_kind TEXT NOT NULL CHECK (recipient_kind IN ('customer', 'provider')),
			recipient_id UUID NOT NULL,
			actor_id UUID NULL,
			verb TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			short_message TEXT NOT NULL DEFAULT '',
			level TEXT NOT NULL DEFAULT 'info' CHECK (level IN ('info', 'success', 'warning', 'error')),
			requires_action BOOLEAN NOT NULL DEFAULT FALSE,
			action_taken TEXT NULL CHECK (action_taken IS NULL OR action_taken IN ('accepted', 'declined')),
			action_taken_at TIMESTAMPTZ NULL,
			context JSONB NULL,
			is_read BOOLEAN NOT NULL DEFAULT FALSE,
			read_at TIMESTAMPTZ NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_notifications_recipient ON notifications(recipient_kind, recipient_id, created_at);
		CREATE INDEX IF NOT EXISTS idx_notifications_unread ON notifications(recipient_kind, recipient_id) WHERE NOT is_read;
	`)
	if err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
