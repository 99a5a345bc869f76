package contracts

// Exchanges
const (
	ExchangeSagaTopic = "saga_topic"
)

// Queues
const (
	QueuePaymentRequests    = "payment_requests"
	QueuePaymentResponses   = "payment_responses"
	QueuePaymentRefunds     = "payment_refunds"
	QueueDriverRequests     = "driver_requests"
	QueueDriverResponses    = "driver_responses"
	QueueDriverCompletions  = "driver_completions"
	QueueDriverAvailability = "driver_availability"
)

// Event types. Each doubles as the routing key on ExchangeSagaTopic and as
// the event_type column of the producing service's outbox table.
const (
	EventPaymentRequest     = "payment.request"
	EventPaymentResponse    = "payment.response"
	EventPaymentRefund      = "payment.refund"
	EventDriverRequest      = "driver.request"
	EventDriverResponse     = "driver.response"
	EventDriverCompletion   = "driver.completion"
	EventDriverAvailability = "driver.availability"
)

// Producer names stamped into envelopes.
const (
	ProducerCustomerService = "customer-service"
	ProducerPaymentService  = "payment-service"
	ProducerDriverService   = "driver-service"
)
