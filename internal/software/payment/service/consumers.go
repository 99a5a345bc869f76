package service

import (
	"context"
	"encoding/json"

	"ride-saga/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RunBackgroundConsumers starts consuming payment requests and refunds.
func (service *paymentService) RunBackgroundConsumers(ctx context.Context) {
	go service.rabbitmq.Consume(ctx, contracts.QueuePaymentRequests, "payment-service-requests", 10,
		func(ctx context.Context, d amqp.Delivery) error {
			var msg contracts.PaymentRequest
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				service.logger.Error(ctx, "payment_request_decode_failed", "Failed to decode payment request", err,
					map[string]any{"size": len(d.Body)})
				return err
			}

			if err := service.ProcessPaymentRequest(ctx, msg); err != nil {
				service.logger.Error(ctx, "payment_request_failed", "Failed to process payment request", err,
					map[string]any{"ride_id": msg.RideID, "saga_id": msg.SagaID})
				return err
			}
			return nil
		})

	go service.rabbitmq.Consume(ctx, contracts.QueuePaymentRefunds, "payment-service-refunds", 10,
		func(ctx context.Context, d amqp.Delivery) error {
			var msg contracts.PaymentRefund
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				service.logger.Error(ctx, "refund_decode_failed", "Failed to decode refund request", err,
					map[string]any{"size": len(d.Body)})
				return err
			}

			if err := service.ProcessRefund(ctx, msg); err != nil {
				service.logger.Error(ctx, "refund_failed", "Failed to process refund", err,
					map[string]any{"ride_id": msg.RideID, "saga_id": msg.SagaID})
				return err
			}
			return nil
		})

	service.logger.Info(ctx, "mq_consumers_started", "Payment service MQ consumers started",
		map[string]any{"queues": []string{contracts.QueuePaymentRequests, contracts.QueuePaymentRefunds}})
}
