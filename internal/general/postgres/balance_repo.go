package postgres

import (
	"context"
	"errors"

	"ride-saga/internal/domain/payment"
	"ride-saga/internal/ports"

	"github.com/jackc/pgx/v5"
)

// BalanceRepo persists customer balances using pgx and plain SQL.
type BalanceRepo struct{}

// NewBalanceRepo constructs a new BalanceRepo.
func NewBalanceRepo() ports.BalanceRepository {
	return &BalanceRepo{}
}

// GetByCustomer returns one balance by customer email.
func (repo *BalanceRepo) GetByCustomer(ctx context.Context, customerEmail string) (*payment.Balance, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out payment.Balance
	err = tx.QueryRow(ctx, `
		SELECT customer_email, amount_cents, last_updated, version
		FROM balances
		WHERE customer_email = $1
	`, customerEmail).Scan(&out.CustomerEmail, &out.AmountCents, &out.LastUpdated, &out.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}

	return &out, nil
}

// Create inserts a new balance row.
func (repo *BalanceRepo) Create(ctx context.Context, balance *payment.Balance) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO balances (customer_email, amount_cents, last_updated, version)
		VALUES ($1,$2,$3,0)
	`, balance.CustomerEmail, balance.AmountCents, balance.LastUpdated)
	return err
}

// Update writes the amount guarded by the version column. The amount check
// mirrors the domain invariant: no committed balance is ever negative.
func (repo *BalanceRepo) Update(ctx context.Context, balance *payment.Balance) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE balances
		SET amount_cents = $1, last_updated = $2, version = version + 1
		WHERE customer_email = $3 AND version = $4 AND $1 >= 0
	`, balance.AmountCents, balance.LastUpdated, balance.CustomerEmail, balance.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrVersionConflict
	}

	balance.Version++
	return nil
}
