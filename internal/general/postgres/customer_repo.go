package postgres

import (
	"context"
	"errors"

	"ride-saga/internal/domain/customer"
	"ride-saga/internal/ports"

	"github.com/jackc/pgx/v5"
)

// CustomerRepo persists customers using pgx and plain SQL.
type CustomerRepo struct{}

// NewCustomerRepo constructs a new CustomerRepo.
func NewCustomerRepo() ports.CustomerRepository {
	return &CustomerRepo{}
}

// GetByEmail returns one customer by email.
func (repo *CustomerRepo) GetByEmail(ctx context.Context, email string) (*customer.Customer, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	var out customer.Customer
	var statusText string

	err = tx.QueryRow(ctx, `
		SELECT email, name, status, current_ride_id, created_at, updated_at
		FROM customers
		WHERE email = $1
	`, email).Scan(&out.Email, &out.Name, &statusText, &out.CurrentRideID, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}

	out.Status = customer.Status(statusText)
	return &out, nil
}

// Create inserts a new customer row.
func (repo *CustomerRepo) Create(ctx context.Context, cust *customer.Customer) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO customers (email, name, status, current_ride_id, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, cust.Email, cust.Name, cust.Status.String(), cust.CurrentRideID, cust.CreatedAt, cust.UpdatedAt)
	return err
}

// Update writes the customer's status and ride reference.
func (repo *CustomerRepo) Update(ctx context.Context, cust *customer.Customer) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE customers
		SET name = $1, status = $2, current_ride_id = $3, updated_at = $4
		WHERE email = $5
	`, cust.Name, cust.Status.String(), cust.CurrentRideID, cust.UpdatedAt, cust.Email)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}
