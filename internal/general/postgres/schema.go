package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Per-service schema DDL. Each service owns its tables and its outbox table;
// nothing is shared across service databases.

const customerSchema = `
CREATE TABLE IF NOT EXISTS customers (
	email           TEXT PRIMARY KEY,
	name            TEXT NOT NULL,
	status          TEXT NOT NULL,
	current_ride_id UUID,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS rides (
	id                    UUID PRIMARY KEY,
	saga_id               UUID NOT NULL,
	created_at            TIMESTAMPTZ NOT NULL,
	updated_at            TIMESTAMPTZ NOT NULL,
	customer_email        TEXT NOT NULL,
	driver_email          TEXT,
	pickup_lat            DOUBLE PRECISION NOT NULL,
	pickup_lng            DOUBLE PRECISION NOT NULL,
	pickup_address        TEXT NOT NULL DEFAULT '',
	pickup_city           TEXT NOT NULL DEFAULT '',
	dest_lat              DOUBLE PRECISION NOT NULL,
	dest_lng              DOUBLE PRECISION NOT NULL,
	dest_address          TEXT NOT NULL DEFAULT '',
	dest_city             TEXT NOT NULL DEFAULT '',
	status                TEXT NOT NULL,
	estimated_price_cents BIGINT NOT NULL,
	final_price_cents     BIGINT,
	paid_at               TIMESTAMPTZ,
	completed_at          TIMESTAMPTZ,
	version               BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_rides_customer_status ON rides (customer_email, status);

CREATE TABLE IF NOT EXISTS queued_requests (
	id                      UUID PRIMARY KEY,
	created_at              TIMESTAMPTZ NOT NULL,
	ride_id                 UUID NOT NULL,
	saga_id                 UUID NOT NULL,
	customer_email          TEXT NOT NULL,
	payment_request_payload BYTEA NOT NULL,
	queued_at               TIMESTAMPTZ NOT NULL,
	expires_at              TIMESTAMPTZ NOT NULL,
	status                  TEXT NOT NULL,
	version                 BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_queued_requests_fifo ON queued_requests (status, queued_at);

CREATE TABLE IF NOT EXISTS customer_outbox (
	id           UUID PRIMARY KEY,
	saga_id      UUID NOT NULL,
	event_type   TEXT NOT NULL,
	payload      BYTEA NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ,
	version      BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_customer_outbox_pending ON customer_outbox (status, created_at);
`

const paymentSchema = `
CREATE TABLE IF NOT EXISTS balances (
	customer_email TEXT PRIMARY KEY,
	amount_cents   BIGINT NOT NULL CHECK (amount_cents >= 0),
	last_updated   TIMESTAMPTZ NOT NULL,
	version        BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS transactions (
	id             UUID PRIMARY KEY,
	customer_email TEXT NOT NULL,
	ride_id        UUID,
	saga_id        UUID,
	amount_cents   BIGINT NOT NULL,
	status         TEXT NOT NULL,
	type           TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	created_at     TIMESTAMPTZ NOT NULL,
	processed_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transactions_saga ON transactions (saga_id, created_at);

CREATE TABLE IF NOT EXISTS payment_outbox (
	id           UUID PRIMARY KEY,
	saga_id      UUID NOT NULL,
	event_type   TEXT NOT NULL,
	payload      BYTEA NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ,
	version      BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_payment_outbox_pending ON payment_outbox (status, created_at);
`

const driverSchema = `
CREATE TABLE IF NOT EXISTS drivers (
	id              UUID PRIMARY KEY,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL,
	email           TEXT UNIQUE NOT NULL,
	name            TEXT NOT NULL DEFAULT '',
	latitude        DOUBLE PRECISION NOT NULL,
	longitude       DOUBLE PRECISION NOT NULL,
	city            TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	current_ride_id UUID,
	version         BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_drivers_available ON drivers (status, city);

CREATE TABLE IF NOT EXISTS driver_outbox (
	id           UUID PRIMARY KEY,
	saga_id      UUID NOT NULL,
	event_type   TEXT NOT NULL,
	payload      BYTEA NOT NULL,
	status       TEXT NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL,
	processed_at TIMESTAMPTZ,
	version      BIGINT NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_driver_outbox_pending ON driver_outbox (status, created_at);
`

var serviceSchemas = map[string]string{
	"customer-service": customerSchema,
	"payment-service":  paymentSchema,
	"driver-service":   driverSchema,
}

// EnsureSchema applies the owning service's DDL. Statements are idempotent;
// running them at every startup is safe.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool, service string) error {
	ddl, ok := serviceSchemas[service]
	if !ok {
		return fmt.Errorf("no schema registered for service %q", service)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	if _, err := tx.Exec(ctx, ddl); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("apply schema for %s: %w", service, err)
	}
	return tx.Commit(ctx)
}
