package service

import (
	"context"
	"encoding/json"

	"ride-saga/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RunBackgroundConsumers starts consuming driver requests and completions.
func (service *driverService) RunBackgroundConsumers(ctx context.Context) {
	go service.rabbitmq.Consume(ctx, contracts.QueueDriverRequests, "driver-service-requests", 10,
		func(ctx context.Context, d amqp.Delivery) error {
			var msg contracts.DriverRequest
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				service.logger.Error(ctx, "driver_request_decode_failed", "Failed to decode driver request", err,
					map[string]any{"size": len(d.Body)})
				return err
			}

			if err := service.ProcessDriverRequest(ctx, msg); err != nil {
				service.logger.Error(ctx, "driver_request_failed", "Failed to process driver request", err,
					map[string]any{"ride_id": msg.RideID, "saga_id": msg.SagaID})
				return err
			}
			return nil
		})

	go service.rabbitmq.Consume(ctx, contracts.QueueDriverCompletions, "driver-service-completions", 10,
		func(ctx context.Context, d amqp.Delivery) error {
			var msg contracts.DriverCompletion
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				service.logger.Error(ctx, "completion_decode_failed", "Failed to decode driver completion", err,
					map[string]any{"size": len(d.Body)})
				return err
			}

			if err := service.ProcessCompletion(ctx, msg); err != nil {
				service.logger.Error(ctx, "completion_failed", "Failed to process driver completion", err,
					map[string]any{"ride_id": msg.RideID, "saga_id": msg.SagaID})
				return err
			}
			return nil
		})

	service.logger.Info(ctx, "mq_consumers_started", "Driver service MQ consumers started",
		map[string]any{"queues": []string{contracts.QueueDriverRequests, contracts.QueueDriverCompletions}})
}
