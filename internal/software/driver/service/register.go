package service

import (
	"context"
	"errors"

	"ride-saga/internal/domain/driver"
	"ride-saga/internal/ports"

	"github.com/google/uuid"
)

// RegisterDriver adds a driver to the pool, or refreshes the location of
// one already registered under the same email. Returns the driver id.
func (service *driverService) RegisterDriver(ctx context.Context, email, name string, latitude, longitude float64, city string) (string, error) {
	var driverID string

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		existing, err := service.driverRepo.GetByEmail(txCtx, email)
		if err == nil {
			existing.Latitude = latitude
			existing.Longitude = longitude
			existing.City = city
			if err := service.driverRepo.Update(txCtx, existing); err != nil {
				return err
			}
			driverID = existing.ID
			return nil
		}
		if !errors.Is(err, ports.ErrNotFound) {
			return err
		}

		drv, err := driver.NewDriver(email, name, latitude, longitude, city)
		if err != nil {
			return err
		}
		if err := service.driverRepo.Create(txCtx, drv); err != nil {
			return err
		}
		driverID = drv.ID

		// a fresh AVAILABLE driver changes the pool's capacity
		return service.appendAvailability(txCtx, uuid.NewString())
	})
	if err != nil {
		service.logger.Error(ctx, "driver_register_failed", "Failed to register driver", err, map[string]any{
			"email": email,
		})
		return "", err
	}

	service.logger.Info(ctx, "driver_registered", "Driver registered", map[string]any{
		"driver_id": driverID,
		"email":     email,
		"city":      city,
	})
	return driverID, nil
}
