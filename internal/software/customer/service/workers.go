package service

import (
	"context"
	"encoding/json"
	"time"

	"ride-saga/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RunBackgroundWorkers starts the saga consumers, the availability
// listener, and the periodic drain and expiry loops.
func (service *customerService) RunBackgroundWorkers(ctx context.Context) {
	go service.rabbitmq.Consume(ctx, contracts.QueuePaymentResponses, "customer-service-payment-responses", 10,
		func(ctx context.Context, d amqp.Delivery) error {
			var msg contracts.PaymentResponse
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				service.logger.Error(ctx, "payment_response_decode_failed", "Failed to decode payment response", err,
					map[string]any{"size": len(d.Body)})
				return err
			}

			if err := service.handlePaymentResponse(ctx, msg); err != nil {
				service.logger.Error(ctx, "payment_response_failed", "Failed to process payment response", err,
					map[string]any{"ride_id": msg.RideID, "saga_id": msg.SagaID})
				return err
			}
			return nil
		})

	go service.rabbitmq.Consume(ctx, contracts.QueueDriverResponses, "customer-service-driver-responses", 10,
		func(ctx context.Context, d amqp.Delivery) error {
			var msg contracts.DriverResponse
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				service.logger.Error(ctx, "driver_response_decode_failed", "Failed to decode driver response", err,
					map[string]any{"size": len(d.Body)})
				return err
			}

			if err := service.handleDriverResponse(ctx, msg); err != nil {
				service.logger.Error(ctx, "driver_response_failed", "Failed to process driver response", err,
					map[string]any{"ride_id": msg.RideID, "saga_id": msg.SagaID})
				return err
			}
			return nil
		})

	go service.rabbitmq.Consume(ctx, contracts.QueueDriverAvailability, "customer-service-availability", 10,
		func(ctx context.Context, d amqp.Delivery) error {
			var msg contracts.DriverAvailability
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				service.logger.Error(ctx, "availability_decode_failed", "Failed to decode availability announcement", err,
					map[string]any{"size": len(d.Body)})
				return err
			}

			if setter, ok := service.capacity.(CapacitySetter); ok {
				setter.SetAvailableDrivers(msg.AvailableCount)
			}
			if msg.AvailableCount > 0 {
				service.signalDrain()
			}
			return nil
		})

	go service.runDrainLoop(ctx)
	go service.runSweepLoop(ctx)

	service.logger.Info(ctx, "workers_started", "Customer service workers started", map[string]any{
		"queues":         []string{contracts.QueuePaymentResponses, contracts.QueueDriverResponses, contracts.QueueDriverAvailability},
		"drain_interval": service.drainInterval.String(),
		"sweep_interval": service.sweepInterval.String(),
	})
}

// runDrainLoop drains the admission queue on a fixed interval and whenever
// a drain is signalled out of band.
func (service *customerService) runDrainLoop(ctx context.Context) {
	ticker := time.NewTicker(service.drainInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-service.drainSignal:
		}

		if err := service.DrainQueue(ctx); err != nil {
			service.logger.Error(ctx, "queue_drain_failed", "Admission queue drain cycle failed", err, nil)
		}
	}
}

// runSweepLoop expires overdue queued entries on a fixed interval.
func (service *customerService) runSweepLoop(ctx context.Context) {
	ticker := time.NewTicker(service.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := service.SweepExpired(ctx); err != nil {
			service.logger.Error(ctx, "expiry_sweep_failed", "Queue expiry sweep failed", err, nil)
		}
	}
}
