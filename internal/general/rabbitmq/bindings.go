package rabbitmq

import (
	"fmt"

	"ride-saga/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

func declareTopology(ch *amqp.Channel) error {
	// 1. Exchange
	if err := ch.ExchangeDeclare(contracts.ExchangeSagaTopic, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", contracts.ExchangeSagaTopic, err)
	}

	// 2. Queues
	queues := []string{
		contracts.QueuePaymentRequests,
		contracts.QueuePaymentResponses,
		contracts.QueuePaymentRefunds,
		contracts.QueueDriverRequests,
		contracts.QueueDriverResponses,
		contracts.QueueDriverCompletions,
		contracts.QueueDriverAvailability,
	}

	for _, q := range queues {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare queue %s: %w", q, err)
		}
	}

	// 3. Bindings: each queue receives exactly one event type
	bindings := []struct {
		queue      string
		routingKey string
	}{
		{contracts.QueuePaymentRequests, contracts.EventPaymentRequest},
		{contracts.QueuePaymentResponses, contracts.EventPaymentResponse},
		{contracts.QueuePaymentRefunds, contracts.EventPaymentRefund},
		{contracts.QueueDriverRequests, contracts.EventDriverRequest},
		{contracts.QueueDriverResponses, contracts.EventDriverResponse},
		{contracts.QueueDriverCompletions, contracts.EventDriverCompletion},
		{contracts.QueueDriverAvailability, contracts.EventDriverAvailability},
	}

	for _, b := range bindings {
		if err := ch.QueueBind(b.queue, b.routingKey, contracts.ExchangeSagaTopic, false, nil); err != nil {
			return fmt.Errorf("bind queue %s to %s: %w", b.queue, contracts.ExchangeSagaTopic, err)
		}
	}

	return nil
}
