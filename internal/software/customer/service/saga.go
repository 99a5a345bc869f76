package service

import (
	"context"
	"encoding/json"
	"errors"

	"ride-saga/internal/domain/outbox"
	"ride-saga/internal/domain/queue"
	"ride-saga/internal/domain/ride"
	"ride-saga/internal/general/contracts"
	"ride-saga/internal/general/logger"
	"ride-saga/internal/ports"
)

// handlePaymentResponse advances or rolls back the saga after the ledger
// reported the debit outcome. A response for a ride that is no longer in
// PAYMENT_PROCESSING is stale (duplicate delivery, or the customer
// cancelled meanwhile) and is dropped with a log line.
func (service *customerService) handlePaymentResponse(ctx context.Context, msg contracts.PaymentResponse) error {
	ctx = logger.WithSagaID(ctx, msg.SagaID)
	ctx = logger.WithRideID(ctx, msg.RideID)

	return service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		request, err := service.rideRepo.GetByID(txCtx, msg.RideID)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				service.logger.Error(txCtx, "payment_response_unknown_ride", "Payment response for unknown ride", nil, nil)
				return nil
			}
			return err
		}

		if request.Status != ride.StatusPaymentProcessing {
			service.logger.Info(txCtx, "payment_response_stale", "Payment response ignored: ride moved on", map[string]any{
				"current_status": request.Status.String(),
			})
			return nil
		}

		if msg.Status == contracts.PaymentCompleted {
			return service.advanceToDriverSearch(txCtx, request)
		}
		return service.failPayment(txCtx, request, msg.FailureReason)
	})
}

// advanceToDriverSearch records the completed debit and schedules the
// driver claim request.
func (service *customerService) advanceToDriverSearch(ctx context.Context, request *ride.Request) error {
	if err := request.MarkPaid(); err != nil {
		return err
	}
	if err := service.rideRepo.Update(ctx, request); err != nil {
		return err
	}

	driverRequest := contracts.DriverRequest{
		RideID:        request.ID,
		CustomerEmail: request.CustomerEmail,
		Pickup: contracts.GeoPoint{
			Lat:     request.Pickup.Latitude,
			Lng:     request.Pickup.Longitude,
			Address: request.Pickup.Address,
			City:    request.Pickup.City,
		},
		Destination: contracts.GeoPoint{
			Lat:     request.Destination.Latitude,
			Lng:     request.Destination.Longitude,
			Address: request.Destination.Address,
			City:    request.Destination.City,
		},
		EstimatedPriceCents: request.EstimatedPriceCents,
		Envelope: contracts.Envelope{
			SagaID:   request.SagaID,
			Producer: contracts.ProducerCustomerService,
			SentAt:   service.clock.Now(),
		},
	}

	body, err := json.Marshal(driverRequest)
	if err != nil {
		return err
	}
	record, err := outbox.NewRecord(request.SagaID, contracts.EventDriverRequest, body)
	if err != nil {
		return err
	}
	if err := service.outboxRepo.Append(ctx, record); err != nil {
		return err
	}

	service.logger.Info(ctx, "payment_completed", "Payment completed, searching for driver", nil)
	return nil
}

// failPayment finalizes the ride as PAYMENT_FAILED and frees the customer.
// No refund: no funds moved for a refused debit.
func (service *customerService) failPayment(ctx context.Context, request *ride.Request, reason string) error {
	if err := request.Fail(ride.StatusPaymentFailed); err != nil {
		return err
	}
	if err := service.rideRepo.Update(ctx, request); err != nil {
		return err
	}
	if err := service.closeOpenEntry(ctx, request.ID, queue.StatusCompleted); err != nil {
		return err
	}
	if err := service.resetCustomer(ctx, request.CustomerEmail); err != nil {
		return err
	}

	service.logger.Info(ctx, "payment_failed", "Payment failed, ride terminated", map[string]any{
		"reason": reason,
	})
	return nil
}

// handleDriverResponse finishes the saga after the driver pool reported the
// claim outcome. A response for a ride that is not in DRIVER_SEARCHING is
// stale and dropped.
func (service *customerService) handleDriverResponse(ctx context.Context, msg contracts.DriverResponse) error {
	ctx = logger.WithSagaID(ctx, msg.SagaID)
	ctx = logger.WithRideID(ctx, msg.RideID)

	return service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		request, err := service.rideRepo.GetByID(txCtx, msg.RideID)
		if err != nil {
			if errors.Is(err, ports.ErrNotFound) {
				service.logger.Error(txCtx, "driver_response_unknown_ride", "Driver response for unknown ride", nil, nil)
				return nil
			}
			return err
		}

		if request.Status != ride.StatusDriverSearching {
			service.logger.Info(txCtx, "driver_response_stale", "Driver response ignored: ride moved on", map[string]any{
				"current_status": request.Status.String(),
			})
			return nil
		}

		if msg.Accepted {
			return service.assignDriver(txCtx, request, msg.DriverEmail)
		}
		return service.failDriverSearch(txCtx, request, msg.RejectionReason)
	})
}

// assignDriver completes the happy path: driver on the ride, customer on board.
func (service *customerService) assignDriver(ctx context.Context, request *ride.Request, driverEmail string) error {
	if err := request.AssignDriver(driverEmail); err != nil {
		return err
	}
	if err := service.rideRepo.Update(ctx, request); err != nil {
		return err
	}

	cust, err := service.customerRepo.GetByEmail(ctx, request.CustomerEmail)
	if err != nil {
		return err
	}
	cust.BoardRide()
	if err := service.customerRepo.Update(ctx, cust); err != nil {
		return err
	}

	if err := service.closeOpenEntry(ctx, request.ID, queue.StatusCompleted); err != nil {
		return err
	}

	service.logger.Info(ctx, "driver_assigned", "Driver assigned to ride", map[string]any{
		"driver_email": driverEmail,
	})
	return nil
}

// failDriverSearch compensates the completed debit and finalizes the ride
// as DRIVER_UNAVAILABLE.
func (service *customerService) failDriverSearch(ctx context.Context, request *ride.Request, reason string) error {
	if err := request.Fail(ride.StatusDriverUnavailable); err != nil {
		return err
	}
	if err := service.rideRepo.Update(ctx, request); err != nil {
		return err
	}

	if request.Refundable() {
		if err := service.appendRefund(ctx, request, "no driver available"); err != nil {
			return err
		}
	}
	if err := service.closeOpenEntry(ctx, request.ID, queue.StatusCompleted); err != nil {
		return err
	}
	if err := service.resetCustomer(ctx, request.CustomerEmail); err != nil {
		return err
	}

	service.logger.Info(ctx, "driver_unavailable", "No driver available, payment refunded", map[string]any{
		"reason": reason,
	})
	return nil
}

// ----- shared saga helpers -----

// appendRefund schedules the compensating credit for a ride whose debit
// had completed. The refunded amount equals the debited amount exactly.
func (service *customerService) appendRefund(ctx context.Context, request *ride.Request, reason string) error {
	refund := contracts.PaymentRefund{
		RideID:        request.ID,
		CustomerEmail: request.CustomerEmail,
		AmountCents:   request.EstimatedPriceCents,
		Reason:        reason,
		Envelope: contracts.Envelope{
			SagaID:   request.SagaID,
			Producer: contracts.ProducerCustomerService,
			SentAt:   service.clock.Now(),
		},
	}

	body, err := json.Marshal(refund)
	if err != nil {
		return err
	}
	record, err := outbox.NewRecord(request.SagaID, contracts.EventPaymentRefund, body)
	if err != nil {
		return err
	}
	return service.outboxRepo.Append(ctx, record)
}

// appendCompletion tells the driver service to release the assigned driver.
func (service *customerService) appendCompletion(ctx context.Context, request *ride.Request, status string) error {
	if request.DriverEmail == nil || *request.DriverEmail == "" {
		return nil
	}

	completion := contracts.DriverCompletion{
		DriverEmail:   *request.DriverEmail,
		RideID:        request.ID,
		CustomerEmail: request.CustomerEmail,
		Status:        status,
		Envelope: contracts.Envelope{
			SagaID:   request.SagaID,
			Producer: contracts.ProducerCustomerService,
			SentAt:   service.clock.Now(),
		},
	}

	body, err := json.Marshal(completion)
	if err != nil {
		return err
	}
	record, err := outbox.NewRecord(request.SagaID, contracts.EventDriverCompletion, body)
	if err != nil {
		return err
	}
	return service.outboxRepo.Append(ctx, record)
}

// resetCustomer returns the customer to AVAILABLE.
func (service *customerService) resetCustomer(ctx context.Context, email string) error {
	cust, err := service.customerRepo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil
		}
		return err
	}
	cust.Reset()
	return service.customerRepo.Update(ctx, cust)
}

// closeOpenEntry moves the ride's non-terminal queue entry (if any) to the
// given terminal status. Missing and already-closed entries are no-ops.
func (service *customerService) closeOpenEntry(ctx context.Context, rideID string, status queue.Status) error {
	entry, err := service.queueRepo.GetOpenForRide(ctx, rideID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil
		}
		return err
	}

	entry.Status = status
	if err := service.queueRepo.UpdateStatus(ctx, entry); err != nil {
		if errors.Is(err, ports.ErrVersionConflict) {
			// the drain loop got there first; its outcome stands
			return nil
		}
		return err
	}
	return nil
}
