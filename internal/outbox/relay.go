package outbox

import (
	"context"
	"time"

	"ride-saga/internal/domain/outbox"
	"ride-saga/internal/general/contracts"
	"ride-saga/internal/general/logger"
	"ride-saga/internal/ports"
)

// relayBatchSize caps how many pending records one pass drains.
const relayBatchSize = 100

// Relay periodically drains a service's outbox table onto the message bus.
// Records are published in created_at order and marked SENT on confirm.
// A failed publish marks the record FAILED; at-least-once delivery means a
// record may be published again if the SENT write itself is lost, so every
// consumer treats redeliveries as no-ops.
type Relay struct {
	uow       ports.UnitOfWork
	records   ports.OutboxRepository
	publisher ports.BusPublisher
	clock     ports.Clock
	log       *logger.Logger
	interval  time.Duration
}

// NewRelay wires a relay over one outbox table.
func NewRelay(
	uow ports.UnitOfWork,
	records ports.OutboxRepository,
	publisher ports.BusPublisher,
	clock ports.Clock,
	log *logger.Logger,
	interval time.Duration,
) *Relay {
	return &Relay{
		uow:       uow,
		records:   records,
		publisher: publisher,
		clock:     clock,
		log:       log,
		interval:  interval,
	}
}

// Run drains the outbox on a fixed interval until ctx is cancelled.
func (relay *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(relay.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			relay.log.Info(ctx, "outbox_relay_stopped", "Outbox relay stopped", nil)
			return
		case <-ticker.C:
			if err := relay.RelayOnce(ctx); err != nil {
				relay.log.Error(ctx, "outbox_relay_pass_failed", "Outbox relay pass failed", err, nil)
			}
		}
	}
}

// RelayOnce performs a single drain pass.
func (relay *Relay) RelayOnce(ctx context.Context) error {
	return relay.uow.WithinTx(ctx, func(txCtx context.Context) error {
		pending, err := relay.records.ListPending(txCtx, relayBatchSize)
		if err != nil {
			return err
		}

		for _, record := range pending {
			relay.dispatch(txCtx, record)
		}

		return nil
	})
}

// dispatch publishes one record and persists its outcome. Publish failures
// mark the record FAILED; operators requeue those by hand after fixing the
// broker, so a broken bus never silently grows an infinite retry loop.
func (relay *Relay) dispatch(ctx context.Context, record *outbox.Record) {
	logCtx := logger.WithSagaID(ctx, record.SagaID)

	if err := relay.publisher.Publish(contracts.ExchangeSagaTopic, record.EventType, record.Payload); err != nil {
		relay.log.Error(logCtx, "outbox_publish_failed", "Failed to publish outbox record", err, map[string]any{
			"outboxId":  record.ID,
			"eventType": record.EventType,
		})
		record.MarkFailed(relay.clock.Now())
	} else {
		record.MarkSent(relay.clock.Now())
	}

	if err := relay.records.MarkProcessed(ctx, record); err != nil {
		// the record stays PENDING and will be retried next pass
		relay.log.Error(logCtx, "outbox_mark_failed", "Failed to persist outbox record status", err, map[string]any{
			"outboxId": record.ID,
			"status":   record.Status.String(),
		})
	}
}
