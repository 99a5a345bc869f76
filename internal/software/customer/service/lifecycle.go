package service

import (
	"context"
	"errors"

	"ride-saga/internal/domain/queue"
	"ride-saga/internal/domain/ride"
	"ride-saga/internal/general/logger"
	"ride-saga/internal/ports"
)

// CancelRide cancels the customer's active ride. Valid until the ride has
// started; a completed debit is refunded and an assigned driver released.
func (service *customerService) CancelRide(ctx context.Context, customerEmail string) (ports.RideStatusResult, error) {
	var result ports.RideStatusResult

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		request, err := service.activeRide(txCtx, customerEmail)
		if err != nil {
			return err
		}
		txCtx = logger.WithSagaID(logger.WithRideID(txCtx, request.ID), request.SagaID)

		if !request.Status.Cancellable() {
			return ErrNotCancellable
		}

		hadDriver := request.DriverEmail != nil && *request.DriverEmail != ""

		if err := request.Fail(ride.StatusCancelled); err != nil {
			return err
		}
		if err := service.rideRepo.Update(txCtx, request); err != nil {
			return err
		}

		if err := service.closeOpenEntry(txCtx, request.ID, queue.StatusCancelled); err != nil {
			return err
		}
		if request.Refundable() {
			if err := service.appendRefund(txCtx, request, "ride cancelled"); err != nil {
				return err
			}
		}
		if hadDriver {
			if err := service.appendCompletion(txCtx, request, "CANCELLED"); err != nil {
				return err
			}
		}
		if err := service.resetCustomer(txCtx, customerEmail); err != nil {
			return err
		}

		service.logger.Info(txCtx, "ride_cancelled", "Ride cancelled by customer", map[string]any{
			"refunded":        request.Refundable(),
			"driver_released": hadDriver,
		})

		result = statusResult(request)
		return nil
	})
	if err != nil {
		return ports.RideStatusResult{}, err
	}
	return result, nil
}

// StartRide moves the customer's assigned ride into RIDE_STARTED.
func (service *customerService) StartRide(ctx context.Context, customerEmail string) (ports.RideStatusResult, error) {
	var result ports.RideStatusResult

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		request, err := service.activeRide(txCtx, customerEmail)
		if err != nil {
			return err
		}
		txCtx = logger.WithSagaID(logger.WithRideID(txCtx, request.ID), request.SagaID)

		if err := request.Start(); err != nil {
			return err
		}
		if err := service.rideRepo.Update(txCtx, request); err != nil {
			return err
		}

		service.logger.Info(txCtx, "ride_started", "Ride started", nil)
		result = statusResult(request)
		return nil
	})
	if err != nil {
		return ports.RideStatusResult{}, err
	}
	return result, nil
}

// CompleteRide finishes the customer's ride, freezes the final price,
// releases the driver, and frees the customer.
func (service *customerService) CompleteRide(ctx context.Context, customerEmail string) (ports.RideStatusResult, error) {
	var result ports.RideStatusResult

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		request, err := service.activeRide(txCtx, customerEmail)
		if err != nil {
			return err
		}
		txCtx = logger.WithSagaID(logger.WithRideID(txCtx, request.ID), request.SagaID)

		if err := request.Complete(); err != nil {
			return err
		}
		if err := service.rideRepo.Update(txCtx, request); err != nil {
			return err
		}

		if err := service.appendCompletion(txCtx, request, "COMPLETED"); err != nil {
			return err
		}
		if err := service.resetCustomer(txCtx, customerEmail); err != nil {
			return err
		}

		service.logger.Info(txCtx, "ride_completed", "Ride completed", map[string]any{
			"final_price_cents": request.FinalPriceCents,
		})
		result = statusResult(request)
		return nil
	})
	if err != nil {
		return ports.RideStatusResult{}, err
	}

	// the released driver frees capacity; try to drain ahead of the ticker
	service.signalDrain()
	return result, nil
}

// RideStatus reports the customer's active ride with its human-readable
// status line.
func (service *customerService) RideStatus(ctx context.Context, customerEmail string) (ports.RideStatusResult, error) {
	var result ports.RideStatusResult

	err := service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		request, err := service.activeRide(txCtx, customerEmail)
		if err != nil {
			return err
		}
		result = statusResult(request)
		return nil
	})
	if err != nil {
		return ports.RideStatusResult{}, err
	}
	return result, nil
}

// activeRide loads the customer's non-terminal ride.
func (service *customerService) activeRide(ctx context.Context, customerEmail string) (*ride.Request, error) {
	request, err := service.rideRepo.GetActiveForCustomer(ctx, customerEmail)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, ErrNoActiveRide
		}
		return nil, err
	}
	return request, nil
}

// statusResult maps a ride onto the customer-facing status DTO.
func statusResult(request *ride.Request) ports.RideStatusResult {
	result := ports.RideStatusResult{
		RideID:          request.ID,
		Status:          request.Status.String(),
		FinalPriceCents: request.FinalPriceCents,
		Message:         request.Status.Message(),
	}
	if request.DriverEmail != nil {
		result.DriverEmail = *request.DriverEmail
	}
	return result
}
