package postgres

import (
	"context"
	"errors"

	"ride-saga/internal/domain/ride"
	"ride-saga/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RideRepo persists ride requests using pgx and plain SQL.
type RideRepo struct{}

// NewRideRepo constructs a new RideRepo.
func NewRideRepo() ports.RideRepository {
	return &RideRepo{}
}

const rideColumns = `
	id, saga_id, created_at, updated_at,
	customer_email, driver_email,
	pickup_lat, pickup_lng, pickup_address, pickup_city,
	dest_lat, dest_lng, dest_address, dest_city,
	status, estimated_price_cents, final_price_cents,
	paid_at, completed_at, version
`

// Create inserts a new ride row.
func (repo *RideRepo) Create(ctx context.Context, request *ride.Request) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if request.ID == "" {
		request.ID = uuid.NewString()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO rides (
			id, saga_id, created_at, updated_at,
			customer_email,
			pickup_lat, pickup_lng, pickup_address, pickup_city,
			dest_lat, dest_lng, dest_address, dest_city,
			status, estimated_price_cents, version
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,0)
	`,
		request.ID, request.SagaID, request.CreatedAt, request.UpdatedAt,
		request.CustomerEmail,
		request.Pickup.Latitude, request.Pickup.Longitude, request.Pickup.Address, request.Pickup.City,
		request.Destination.Latitude, request.Destination.Longitude, request.Destination.Address, request.Destination.City,
		request.Status.String(), request.EstimatedPriceCents,
	)
	return err
}

// GetByID returns one ride by id.
func (repo *RideRepo) GetByID(ctx context.Context, id string) (*ride.Request, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	return scanRide(row)
}

// GetActiveForCustomer returns the customer's non-terminal ride, if any.
func (repo *RideRepo) GetActiveForCustomer(ctx context.Context, customerEmail string) (*ride.Request, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `
		SELECT `+rideColumns+`
		FROM rides
		WHERE customer_email = $1
		  AND status IN ('CREATED','PAYMENT_PROCESSING','DRIVER_SEARCHING','DRIVER_ASSIGNED','RIDE_STARTED')
		ORDER BY created_at DESC
		LIMIT 1
	`, customerEmail)
	return scanRide(row)
}

// Update writes the full row guarded by the version column.
func (repo *RideRepo) Update(ctx context.Context, request *ride.Request) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE rides
		SET updated_at = $1,
		    driver_email = $2,
		    status = $3,
		    final_price_cents = $4,
		    paid_at = $5,
		    completed_at = $6,
		    version = version + 1
		WHERE id = $7 AND version = $8
	`,
		request.UpdatedAt, request.DriverEmail, request.Status.String(),
		request.FinalPriceCents, request.PaidAt, request.CompletedAt,
		request.ID, request.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrVersionConflict
	}

	request.Version++
	return nil
}

// scanRide maps one row onto a domain ride request.
func scanRide(row pgx.Row) (*ride.Request, error) {
	var out ride.Request
	var statusText string

	err := row.Scan(
		&out.ID, &out.SagaID, &out.CreatedAt, &out.UpdatedAt,
		&out.CustomerEmail, &out.DriverEmail,
		&out.Pickup.Latitude, &out.Pickup.Longitude, &out.Pickup.Address, &out.Pickup.City,
		&out.Destination.Latitude, &out.Destination.Longitude, &out.Destination.Address, &out.Destination.City,
		&statusText, &out.EstimatedPriceCents, &out.FinalPriceCents,
		&out.PaidAt, &out.CompletedAt, &out.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}

	out.Status = ride.Status(statusText)
	return &out, nil
}
