package service

import (
	"context"
	"errors"

	"ride-saga/internal/domain/queue"
	"ride-saga/internal/domain/ride"
	"ride-saga/internal/general/logger"
	"ride-saga/internal/ports"
)

// errRideClosed marks a queued entry whose ride reached a terminal state
// while it waited; the entry is closed instead of requeued.
var errRideClosed = errors.New("ride already closed")

// DrainQueue runs one admission cycle. Capacity is probed once per cycle:
// the cycle starts at most that many sagas and leaves the rest queued.
// Entries are taken strictly in queued_at order, and each one is moved
// QUEUED -> PROCESSING with a version check first, so two overlapping
// drain cycles never start the same saga twice.
func (service *customerService) DrainQueue(ctx context.Context) error {
	capacity := service.capacity.AvailableDrivers(ctx)
	if capacity <= 0 {
		return nil
	}

	return service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		entries, err := service.queueRepo.ListQueued(txCtx, drainBatchSize)
		if err != nil {
			return err
		}

		now := service.clock.Now()
		started := 0

		for _, entry := range entries {
			if started >= capacity {
				break
			}
			entryCtx := logger.WithSagaID(logger.WithRideID(txCtx, entry.RideID), entry.SagaID)

			// expired entries are finalized in passing and cost no capacity
			if entry.ExpiredAt(now) {
				if err := service.expireEntry(entryCtx, entry); err != nil {
					return err
				}
				continue
			}

			if err := entry.Claim(); err != nil {
				continue
			}
			if err := service.queueRepo.UpdateStatus(entryCtx, entry); err != nil {
				if errors.Is(err, ports.ErrVersionConflict) {
					// another drain cycle claimed this entry
					continue
				}
				return err
			}

			if err := service.startQueuedSaga(entryCtx, entry); err != nil {
				if errors.Is(err, errRideClosed) {
					entry.Status = queue.StatusCancelled
					if err := service.queueRepo.UpdateStatus(entryCtx, entry); err != nil {
						return err
					}
					continue
				}

				// back to QUEUED; queued_at is untouched so the entry keeps
				// its place in line
				entry.Requeue()
				if uerr := service.queueRepo.UpdateStatus(entryCtx, entry); uerr != nil {
					return uerr
				}
				service.logger.Error(entryCtx, "queue_saga_start_failed", "Failed to start saga for queued entry, requeued", err, nil)
				continue
			}

			entry.Status = queue.StatusCompleted
			if err := service.queueRepo.UpdateStatus(entryCtx, entry); err != nil {
				return err
			}
			started++
		}

		if started > 0 {
			service.logger.Info(txCtx, "queue_drained", "Admission queue drained", map[string]any{
				"sagas_started": started,
				"capacity":      capacity,
			})
		}
		return nil
	})
}

// startQueuedSaga re-issues the frozen saga-start event for a drained entry.
func (service *customerService) startQueuedSaga(ctx context.Context, entry *queue.Entry) error {
	request, err := service.rideRepo.GetByID(ctx, entry.RideID)
	if err != nil {
		return err
	}
	if request.Status.Terminal() {
		return errRideClosed
	}
	return service.startSaga(ctx, request, entry.PaymentRequestPayload)
}

// SweepExpired finalizes all queued entries whose deadline has passed.
// The boundary is inclusive: an entry expiring exactly now is expired.
func (service *customerService) SweepExpired(ctx context.Context) error {
	return service.uow.WithinTx(ctx, func(txCtx context.Context) error {
		entries, err := service.queueRepo.ListQueuedExpiredBefore(txCtx, service.clock.Now())
		if err != nil {
			return err
		}

		for _, entry := range entries {
			entryCtx := logger.WithSagaID(logger.WithRideID(txCtx, entry.RideID), entry.SagaID)
			if err := service.expireEntry(entryCtx, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

// expireEntry closes one queued entry as EXPIRED and finalizes its ride:
// EXPIRED status, refund if the debit had completed, customer freed.
func (service *customerService) expireEntry(ctx context.Context, entry *queue.Entry) error {
	entry.Status = queue.StatusExpired
	if err := service.queueRepo.UpdateStatus(ctx, entry); err != nil {
		if errors.Is(err, ports.ErrVersionConflict) {
			// a drain cycle or a cancellation got to the entry first
			return nil
		}
		return err
	}

	request, err := service.rideRepo.GetByID(ctx, entry.RideID)
	if err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil
		}
		return err
	}
	if request.Status.Terminal() {
		return nil
	}

	if err := request.Fail(ride.StatusExpired); err != nil {
		return err
	}
	if err := service.rideRepo.Update(ctx, request); err != nil {
		return err
	}
	if request.Refundable() {
		if err := service.appendRefund(ctx, request, "request expired"); err != nil {
			return err
		}
	}
	if err := service.resetCustomer(ctx, request.CustomerEmail); err != nil {
		return err
	}

	service.logger.Info(ctx, "queue_entry_expired", "Queued request expired", map[string]any{
		"queued_at":  entry.QueuedAt,
		"expires_at": entry.ExpiresAt,
	})
	return nil
}
