package postgres

import (
	"context"
	"errors"
	"time"

	"ride-saga/internal/domain/queue"
	"ride-saga/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// QueueRepo persists admission queue entries using pgx and plain SQL.
type QueueRepo struct{}

// NewQueueRepo constructs a new QueueRepo.
func NewQueueRepo() ports.QueueRepository {
	return &QueueRepo{}
}

const queueColumns = `
	id, created_at, ride_id, saga_id, customer_email,
	payment_request_payload, queued_at, expires_at, status, version
`

// Create inserts a new QUEUED entry.
func (repo *QueueRepo) Create(ctx context.Context, entry *queue.Entry) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO queued_requests (
			id, created_at, ride_id, saga_id, customer_email,
			payment_request_payload, queued_at, expires_at, status, version
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,0)
	`,
		entry.ID, entry.CreatedAt, entry.RideID, entry.SagaID, entry.CustomerEmail,
		entry.PaymentRequestPayload, entry.QueuedAt, entry.ExpiresAt, entry.Status.String(),
	)
	return err
}

// GetByID returns one entry by id.
func (repo *QueueRepo) GetByID(ctx context.Context, id string) (*queue.Entry, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+queueColumns+` FROM queued_requests WHERE id = $1`, id)
	return scanEntry(row)
}

// GetOpenForRide returns the ride's non-terminal entry, if any. There is at
// most one by invariant.
func (repo *QueueRepo) GetOpenForRide(ctx context.Context, rideID string) (*queue.Entry, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT `+queueColumns+`
		FROM queued_requests
		WHERE ride_id = $1 AND status IN ('QUEUED','PROCESSING')
		LIMIT 1
	`, rideID)
	return scanEntry(row)
}

// ListQueued returns QUEUED entries in strict enqueue order.
func (repo *QueueRepo) ListQueued(ctx context.Context, limit int) ([]*queue.Entry, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+queueColumns+`
		FROM queued_requests
		WHERE status = 'QUEUED'
		ORDER BY queued_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// ListQueuedExpiredBefore returns QUEUED entries already past expiry at cutoff.
func (repo *QueueRepo) ListQueuedExpiredBefore(ctx context.Context, cutoff time.Time) ([]*queue.Entry, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+queueColumns+`
		FROM queued_requests
		WHERE status = 'QUEUED' AND expires_at <= $1
		ORDER BY queued_at ASC
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEntries(rows)
}

// UpdateStatus writes the entry status guarded by the version column. A lost
// version check means another drain cycle claimed the entry first.
func (repo *QueueRepo) UpdateStatus(ctx context.Context, entry *queue.Entry) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE queued_requests
		SET status = $1, version = version + 1
		WHERE id = $2 AND version = $3
	`, entry.Status.String(), entry.ID, entry.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrVersionConflict
	}

	entry.Version++
	return nil
}

// scanEntry maps one row onto a domain queue entry.
func scanEntry(row pgx.Row) (*queue.Entry, error) {
	var out queue.Entry
	var statusText string

	err := row.Scan(
		&out.ID, &out.CreatedAt, &out.RideID, &out.SagaID, &out.CustomerEmail,
		&out.PaymentRequestPayload, &out.QueuedAt, &out.ExpiresAt, &statusText, &out.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}

	out.Status = queue.Status(statusText)
	return &out, nil
}

func scanEntries(rows pgx.Rows) ([]*queue.Entry, error) {
	var entries []*queue.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
