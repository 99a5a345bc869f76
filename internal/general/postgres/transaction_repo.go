package postgres

import (
	"context"

	"ride-saga/internal/domain/payment"
	"ride-saga/internal/ports"

	"github.com/google/uuid"
)

// TransactionRepo appends to the ledger log using pgx and plain SQL.
type TransactionRepo struct{}

// NewTransactionRepo constructs a new TransactionRepo.
func NewTransactionRepo() ports.TransactionRepository {
	return &TransactionRepo{}
}

// Append inserts one ledger log row. The table is append-only; there is no
// update path.
func (repo *TransactionRepo) Append(ctx context.Context, trx *payment.Transaction) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if trx.ID == "" {
		trx.ID = uuid.NewString()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO transactions (
			id, customer_email, ride_id, saga_id, amount_cents,
			status, type, description, created_at, processed_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`,
		trx.ID, trx.CustomerEmail, trx.RideID, trx.SagaID, trx.AmountCents,
		string(trx.Status), string(trx.Type), trx.Description, trx.CreatedAt, trx.ProcessedAt,
	)
	return err
}

// ListBySaga returns the log rows of one saga in append order.
func (repo *TransactionRepo) ListBySaga(ctx context.Context, sagaID string) ([]*payment.Transaction, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT id, customer_email, ride_id, saga_id, amount_cents,
		       status, type, description, created_at, processed_at
		FROM transactions
		WHERE saga_id = $1
		ORDER BY created_at ASC
	`, sagaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*payment.Transaction
	for rows.Next() {
		var trx payment.Transaction
		var statusText, typeText string
		if err := rows.Scan(
			&trx.ID, &trx.CustomerEmail, &trx.RideID, &trx.SagaID, &trx.AmountCents,
			&statusText, &typeText, &trx.Description, &trx.CreatedAt, &trx.ProcessedAt,
		); err != nil {
			return nil, err
		}
		trx.Status = payment.TransactionStatus(statusText)
		trx.Type = payment.TransactionType(typeText)
		out = append(out, &trx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
