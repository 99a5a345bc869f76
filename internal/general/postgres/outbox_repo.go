package postgres

import (
	"context"
	"errors"
	"fmt"

	"ride-saga/internal/domain/outbox"
	"ride-saga/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Per-service outbox tables.
const (
	TableCustomerOutbox = "customer_outbox"
	TablePaymentOutbox  = "payment_outbox"
	TableDriverOutbox   = "driver_outbox"
)

// OutboxRepo persists one service's outbox records. Each service has its own
// table (customer_outbox, payment_outbox, driver_outbox) so the write stays
// inside that service's local transaction; the table name is fixed at
// construction, never taken from callers.
type OutboxRepo struct {
	table string
}

// NewOutboxRepo constructs an OutboxRepo bound to the given per-service table.
func NewOutboxRepo(table string) ports.OutboxRepository {
	switch table {
	case TableCustomerOutbox, TablePaymentOutbox, TableDriverOutbox:
	default:
		panic(fmt.Sprintf("unknown outbox table %q", table))
	}
	return &OutboxRepo{table: table}
}

// Append inserts a PENDING record inside the caller's transaction.
func (repo *OutboxRepo) Append(ctx context.Context, record *outbox.Record) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if record.ID == "" {
		record.ID = uuid.NewString()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO `+repo.table+` (
			id, saga_id, event_type, payload, status, created_at, version
		)
		VALUES ($1,$2,$3,$4,$5,$6,0)
	`,
		record.ID, record.SagaID, record.EventType, record.Payload,
		record.Status.String(), record.CreatedAt,
	)
	return err
}

// ListPending returns PENDING records ordered by creation time.
func (repo *OutboxRepo) ListPending(ctx context.Context, limit int) ([]*outbox.Record, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, saga_id, event_type, payload, status, created_at, processed_at, version
		FROM `+repo.table+`
		WHERE status = 'PENDING'
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*outbox.Record
	for rows.Next() {
		record, err := scanOutboxRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

// MarkProcessed persists the record's relay outcome guarded by the version
// column, so two overlapping relay cycles never double-publish silently.
func (repo *OutboxRepo) MarkProcessed(ctx context.Context, record *outbox.Record) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE `+repo.table+`
		SET status = $1, processed_at = $2, version = version + 1
		WHERE id = $3 AND version = $4
	`, record.Status.String(), record.ProcessedAt, record.ID, record.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrVersionConflict
	}

	record.Version++
	return nil
}

// scanOutboxRecord maps one row onto a domain outbox record.
func scanOutboxRecord(row pgx.Row) (*outbox.Record, error) {
	var out outbox.Record
	var statusText string

	err := row.Scan(
		&out.ID, &out.SagaID, &out.EventType, &out.Payload,
		&statusText, &out.CreatedAt, &out.ProcessedAt, &out.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}

	out.Status = outbox.Status(statusText)
	return &out, nil
}
