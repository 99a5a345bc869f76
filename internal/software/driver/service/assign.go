package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"

	"ride-saga/internal/domain/driver"
	"ride-saga/internal/domain/outbox"
	"ride-saga/internal/general/contracts"
	"ride-saga/internal/general/logger"
	"ride-saga/internal/ports"
)

// ProcessDriverRequest claims the nearest available driver for a paid ride.
//
// Candidates are AVAILABLE drivers in the pickup city, falling back to all
// AVAILABLE drivers, sorted by distance to the pickup point. Claims are
// attempted in order: each candidate is re-read and written with a version
// check, so when several rides race for the same driver exactly one wins
// and the others move on to the next candidate. An exhausted candidate list
// produces a rejected DriverResponse.
func (service *driverService) ProcessDriverRequest(ctx context.Context, msg contracts.DriverRequest) error {
	ctx = logger.WithSagaID(ctx, msg.SagaID)
	ctx = logger.WithRideID(ctx, msg.RideID)

	return service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		// redelivery guard: the ride may already hold a driver
		if existing, err := service.driverRepo.GetByCurrentRide(txCtx, msg.RideID); err == nil {
			service.logger.Info(txCtx, "driver_request_duplicate_skipped", "Ride already holds a driver", map[string]any{
				"driver_email": existing.Email,
			})
			return nil
		} else if !errors.Is(err, ports.ErrNotFound) {
			return err
		}

		candidates, err := service.candidatesFor(txCtx, msg.Pickup)
		if err != nil {
			return err
		}

		for _, candidate := range candidates {
			won, err := service.tryClaim(txCtx, candidate.ID, msg.RideID)
			if err != nil {
				return err
			}
			if !won {
				continue
			}

			service.logger.Info(txCtx, "driver_claimed", "Driver claimed for ride", map[string]any{
				"driver_email": candidate.Email,
				"distance_km":  candidate.DistanceToKM(msg.Pickup.Lat, msg.Pickup.Lng),
			})
			return service.respond(txCtx, msg, candidate.Email, true, "")
		}

		service.logger.Info(txCtx, "no_driver_available", "No driver could be claimed for ride", map[string]any{
			"candidates": len(candidates),
		})
		return service.respond(txCtx, msg, "", false, "no driver available")
	})
}

// candidatesFor returns available drivers sorted by distance to pickup,
// preferring the pickup city and widening to the whole pool when empty.
func (service *driverService) candidatesFor(ctx context.Context, pickup contracts.GeoPoint) ([]*driver.Driver, error) {
	var candidates []*driver.Driver
	var err error

	if pickup.City != "" {
		candidates, err = service.driverRepo.ListAvailableInCity(ctx, pickup.City)
		if err != nil {
			return nil, err
		}
	}
	if len(candidates) == 0 {
		candidates, err = service.driverRepo.ListAvailable(ctx)
		if err != nil {
			return nil, err
		}
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].DistanceToKM(pickup.Lat, pickup.Lng) < candidates[j].DistanceToKM(pickup.Lat, pickup.Lng)
	})
	return candidates, nil
}

// tryClaim re-reads one candidate and attempts the version-checked BUSY
// write. A stale read or a lost version check reports false; both mean
// another ride got there first.
func (service *driverService) tryClaim(ctx context.Context, driverID, rideID string) (bool, error) {
	drv, err := service.driverRepo.GetByID(ctx, driverID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := drv.Claim(rideID); err != nil {
		if errors.Is(err, driver.ErrNotAvailable) {
			return false, nil
		}
		return false, err
	}

	if err := service.driverRepo.Update(ctx, drv); err != nil {
		if errors.Is(err, ports.ErrVersionConflict) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// respond schedules a DriverResponse in the outbox; it commits atomically
// with the claim that produced it.
func (service *driverService) respond(ctx context.Context, msg contracts.DriverRequest, driverEmail string, accepted bool, rejectionReason string) error {
	response := contracts.DriverResponse{
		RideID:          msg.RideID,
		DriverEmail:     driverEmail,
		Accepted:        accepted,
		RejectionReason: rejectionReason,
		Envelope: contracts.Envelope{
			SagaID:   msg.SagaID,
			Producer: contracts.ProducerDriverService,
			SentAt:   service.clock.Now(),
		},
	}

	body, err := json.Marshal(response)
	if err != nil {
		return err
	}

	record, err := outbox.NewRecord(msg.SagaID, contracts.EventDriverResponse, body)
	if err != nil {
		return err
	}
	return service.outboxRepo.Append(ctx, record)
}
