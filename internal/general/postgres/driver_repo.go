package postgres

import (
	"context"
	"errors"

	"ride-saga/internal/domain/driver"
	"ride-saga/internal/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DriverRepo persists drivers using pgx and plain SQL.
type DriverRepo struct{}

// NewDriverRepo constructs a new DriverRepo.
func NewDriverRepo() ports.DriverRepository {
	return &DriverRepo{}
}

const driverColumns = `
	id, created_at, updated_at, email, name,
	latitude, longitude, city, status, current_ride_id, version
`

// Create inserts a new driver row.
func (repo *DriverRepo) Create(ctx context.Context, drv *driver.Driver) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	if drv.ID == "" {
		drv.ID = uuid.NewString()
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO drivers (
			id, created_at, updated_at, email, name,
			latitude, longitude, city, status, current_ride_id, version
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,0)
	`,
		drv.ID, drv.CreatedAt, drv.UpdatedAt, drv.Email, drv.Name,
		drv.Latitude, drv.Longitude, drv.City, drv.Status.String(), drv.CurrentRideID,
	)
	return err
}

// GetByID returns one driver by id.
func (repo *DriverRepo) GetByID(ctx context.Context, id string) (*driver.Driver, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE id = $1`, id)
	return scanDriver(row)
}

// GetByEmail returns one driver by email.
func (repo *DriverRepo) GetByEmail(ctx context.Context, email string) (*driver.Driver, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE email = $1`, email)
	return scanDriver(row)
}

// GetByCurrentRide returns the driver currently claimed for the given ride.
func (repo *DriverRepo) GetByCurrentRide(ctx context.Context, rideID string) (*driver.Driver, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	row := tx.QueryRow(ctx, `SELECT `+driverColumns+` FROM drivers WHERE current_ride_id = $1`, rideID)
	return scanDriver(row)
}

// ListAvailableInCity returns AVAILABLE drivers in the given city.
func (repo *DriverRepo) ListAvailableInCity(ctx context.Context, city string) ([]*driver.Driver, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+driverColumns+`
		FROM drivers
		WHERE status = 'AVAILABLE' AND city = $1
	`, city)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDrivers(rows)
}

// ListAvailable returns all AVAILABLE drivers.
func (repo *DriverRepo) ListAvailable(ctx context.Context) ([]*driver.Driver, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT `+driverColumns+`
		FROM drivers
		WHERE status = 'AVAILABLE'
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanDrivers(rows)
}

// CountAvailable returns the number of AVAILABLE drivers.
func (repo *DriverRepo) CountAvailable(ctx context.Context) (int, error) {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return 0, err
	}

	var count int
	err = tx.QueryRow(ctx, `SELECT COUNT(*) FROM drivers WHERE status = 'AVAILABLE'`).Scan(&count)
	return count, err
}

// Update writes status, ride reference and location guarded by the version
// column. A lost version check means a concurrent claim won the driver.
func (repo *DriverRepo) Update(ctx context.Context, drv *driver.Driver) error {
	tx, err := MustTxFromContext(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		UPDATE drivers
		SET updated_at = $1,
		    latitude = $2,
		    longitude = $3,
		    city = $4,
		    status = $5,
		    current_ride_id = $6,
		    version = version + 1
		WHERE id = $7 AND version = $8
	`,
		drv.UpdatedAt, drv.Latitude, drv.Longitude, drv.City,
		drv.Status.String(), drv.CurrentRideID,
		drv.ID, drv.Version,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrVersionConflict
	}

	drv.Version++
	return nil
}

// scanDriver maps one row onto a domain driver.
func scanDriver(row pgx.Row) (*driver.Driver, error) {
	var out driver.Driver
	var statusText string

	err := row.Scan(
		&out.ID, &out.CreatedAt, &out.UpdatedAt, &out.Email, &out.Name,
		&out.Latitude, &out.Longitude, &out.City, &statusText, &out.CurrentRideID, &out.Version,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, err
	}

	out.Status = driver.Status(statusText)
	return &out, nil
}

func scanDrivers(rows pgx.Rows) ([]*driver.Driver, error) {
	var drivers []*driver.Driver
	for rows.Next() {
		drv, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		drivers = append(drivers, drv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return drivers, nil
}
