package service

import (
	"context"
	"encoding/json"
	"errors"

	"ride-saga/internal/domain/customer"
	"ride-saga/internal/domain/outbox"
	"ride-saga/internal/domain/queue"
	"ride-saga/internal/domain/ride"
	"ride-saga/internal/general/contracts"
	"ride-saga/internal/general/logger"
	"ride-saga/internal/ports"

	"github.com/google/uuid"
)

// RequestRide is the saga entry point. It creates the ride, reserves the
// customer, and either starts the payment step immediately or parks the
// request in the admission queue when no driver capacity is known.
func (service *customerService) RequestRide(ctx context.Context, in ports.RequestRideInput) (ports.RequestRideResult, error) {
	sagaID := uuid.NewString()
	ctx = logger.WithSagaID(ctx, sagaID)

	pickup, err := ride.NewLocation(in.PickupLatitude, in.PickupLongitude, in.PickupAddress, in.PickupCity)
	if err != nil {
		return ports.RequestRideResult{}, err
	}
	destination, err := ride.NewLocation(in.DestLatitude, in.DestLongitude, in.DestinationAddress, in.DestinationCity)
	if err != nil {
		return ports.RequestRideResult{}, err
	}

	// probe once, before the transaction; the queue drain self-corrects if
	// capacity changed between the probe and the commit
	hasCapacity := service.capacity.AvailableDrivers(ctx) > 0

	var result ports.RequestRideResult
	err = service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		cust, err := service.findOrCreateCustomer(txCtx, in.CustomerEmail, in.CustomerName)
		if err != nil {
			return err
		}
		if cust.Status != customer.StatusAvailable {
			return ErrCustomerBusy
		}
		if _, err := service.rideRepo.GetActiveForCustomer(txCtx, cust.Email); err == nil {
			return ErrCustomerBusy
		} else if !errors.Is(err, ports.ErrNotFound) {
			return err
		}

		request, err := ride.NewRequest(cust.Email, pickup, destination)
		if err != nil {
			return err
		}
		request.SagaID = sagaID
		if err := service.rideRepo.Create(txCtx, request); err != nil {
			return err
		}

		if err := cust.BeginRequest(request.ID); err != nil {
			return err
		}
		if err := service.customerRepo.Update(txCtx, cust); err != nil {
			return err
		}

		// the saga-start event is frozen now; the queue path re-issues it
		// verbatim at drain time
		payload, err := service.buildPaymentRequest(request)
		if err != nil {
			return err
		}

		if hasCapacity {
			if err := service.startSaga(txCtx, request, payload); err != nil {
				return err
			}
		} else {
			if err := service.enqueue(txCtx, request, payload); err != nil {
				return err
			}
		}

		result = ports.RequestRideResult{
			RideID:              request.ID,
			SagaID:              sagaID,
			Status:              request.Status.String(),
			EstimatedPriceCents: request.EstimatedPriceCents,
			Queued:              !hasCapacity,
			Message:             request.Status.Message(),
		}
		return nil
	})
	if err != nil {
		service.logger.Error(ctx, "ride_request_failed", "Failed to request ride", err, map[string]any{
			"customer": in.CustomerEmail,
		})
		return ports.RequestRideResult{}, err
	}

	service.logger.Info(ctx, "ride_requested", "Ride requested", map[string]any{
		"ride_id":               result.RideID,
		"customer":              in.CustomerEmail,
		"estimated_price_cents": result.EstimatedPriceCents,
		"queued":                result.Queued,
	})
	return result, nil
}

// findOrCreateCustomer loads a customer by email, creating an AVAILABLE one
// on first contact.
func (service *customerService) findOrCreateCustomer(ctx context.Context, email, name string) (*customer.Customer, error) {
	cust, err := service.customerRepo.GetByEmail(ctx, email)
	if err == nil {
		return cust, nil
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return nil, err
	}

	cust, err = customer.NewCustomer(email, name)
	if err != nil {
		return nil, err
	}
	if err := service.customerRepo.Create(ctx, cust); err != nil {
		return nil, err
	}
	return cust, nil
}

// buildPaymentRequest serializes the saga-start event for this ride.
func (service *customerService) buildPaymentRequest(request *ride.Request) ([]byte, error) {
	msg := contracts.PaymentRequest{
		RideID:        request.ID,
		CustomerEmail: request.CustomerEmail,
		AmountCents:   request.EstimatedPriceCents,
		Description:   "ride fare",
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
		Envelope: contracts.Envelope{
			SagaID:   request.SagaID,
			Producer: contracts.ProducerCustomerService,
			SentAt:   service.clock.Now(),
		},
	}
	return json.Marshal(msg)
}

// startSaga moves the ride into PAYMENT_PROCESSING and schedules the
// payment request; both commit in the caller's transaction.
func (service *customerService) startSaga(ctx context.Context, request *ride.Request, paymentRequestPayload []byte) error {
	if err := request.BeginPayment(); err != nil {
		return err
	}
	if err := service.rideRepo.Update(ctx, request); err != nil {
		return err
	}

	record, err := outbox.NewRecord(request.SagaID, contracts.EventPaymentRequest, paymentRequestPayload)
	if err != nil {
		return err
	}
	return service.outboxRepo.Append(ctx, record)
}

// enqueue parks the ride in the admission queue with the frozen saga-start
// payload. The ride waits in DRIVER_SEARCHING.
func (service *customerService) enqueue(ctx context.Context, request *ride.Request, paymentRequestPayload []byte) error {
	if err := request.MarkSearching(); err != nil {
		return err
	}
	if err := service.rideRepo.Update(ctx, request); err != nil {
		return err
	}

	entry, err := queue.NewEntry(request.ID, request.SagaID, request.CustomerEmail, paymentRequestPayload, service.clock.Now(), service.queueTTL)
	if err != nil {
		return err
	}
	return service.queueRepo.Create(ctx, entry)
}
