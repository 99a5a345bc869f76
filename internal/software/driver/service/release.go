package service

import (
	"context"
	"encoding/json"
	"errors"

	"ride-saga/internal/domain/driver"
	"ride-saga/internal/domain/outbox"
	"ride-saga/internal/general/contracts"
	"ride-saga/internal/general/logger"
	"ride-saga/internal/ports"
)

// ProcessCompletion releases a driver after the ride finished or was
// cancelled. Releasing an already-available driver is a no-op, so a
// redelivered completion does no harm. Every release announces the new
// availability so the customer side's admission queue can drain.
func (service *driverService) ProcessCompletion(ctx context.Context, msg contracts.DriverCompletion) error {
	ctx = logger.WithSagaID(ctx, msg.SagaID)
	ctx = logger.WithRideID(ctx, msg.RideID)

	return service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		drv, err := service.driverRepo.GetByEmail(txCtx, msg.DriverEmail)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				service.logger.Error(txCtx, "completion_unknown_driver", "Completion names a driver the pool does not know", nil,
					map[string]any{"driver_email": msg.DriverEmail})
				return nil
			}
			return err
		}

		if drv.Status == driver.StatusAvailable {
			service.logger.Info(txCtx, "completion_duplicate_skipped", "Driver already released", map[string]any{
				"driver_email": drv.Email,
			})
			return nil
		}

		drv.Release()
		if err := service.driverRepo.Update(txCtx, drv); err != nil {
			return err
		}

		service.logger.Info(txCtx, "driver_released", "Driver released back to the pool", map[string]any{
			"driver_email": drv.Email,
			"ride_status":  msg.Status,
		})

		return service.appendAvailability(txCtx, msg.SagaID)
	})
}

// AnnounceAvailability publishes the current AVAILABLE head count in its
// own transaction. Used at startup and after registrations.
func (service *driverService) AnnounceAvailability(ctx context.Context, sagaID string) error {
	return service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		return service.appendAvailability(txCtx, sagaID)
	})
}

// appendAvailability schedules a DriverAvailability announcement inside the
// caller's transaction. The count is read from the drivers table, never
// from a process-local counter, so restarts and replicas agree.
func (service *driverService) appendAvailability(ctx context.Context, sagaID string) error {
	count, err := service.driverRepo.CountAvailable(ctx)
	if err != nil {
		return err
	}

	announcement := contracts.DriverAvailability{
		AvailableCount: count,
		Envelope: contracts.Envelope{
			SagaID:   sagaID,
			Producer: contracts.ProducerDriverService,
			SentAt:   service.clock.Now(),
		},
	}

	body, err := json.Marshal(announcement)
	if err != nil {
		return err
	}

	record, err := outbox.NewRecord(sagaID, contracts.EventDriverAvailability, body)
	if err != nil {
		return err
	}
	return service.outboxRepo.Append(ctx, record)
}
