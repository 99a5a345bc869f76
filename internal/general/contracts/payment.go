package contracts

// PaymentStatus is the wire-level outcome of a ledger operation.
type PaymentStatus string

const (
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

// PaymentRequest asks the payment service to debit funds for a ride.
// Published by customer-service under EventPaymentRequest.
type PaymentRequest struct {
	RideID        string   `json:"ride_id"`
	CustomerEmail string   `json:"customer_email"`
	AmountCents   int64    `json:"amount_cents"`
	Description   string   `json:"description,omitempty"`
	Pickup        GeoPoint `json:"pickup_location"`
	Destination   GeoPoint `json:"destination_location"`
	Envelope
}

// PaymentResponse reports the debit outcome back to customer-service.
// Published by payment-service under EventPaymentResponse.
type PaymentResponse struct {
	RideID        string        `json:"ride_id"`
	CustomerEmail string        `json:"customer_email"`
	AmountCents   int64         `json:"amount_cents"`
	Status        PaymentStatus `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Envelope
}

// PaymentRefund asks the payment service to credit back a debited amount
// after a later saga step failed. Published by customer-service under
// EventPaymentRefund.
type PaymentRefund struct {
	RideID        string `json:"ride_id"`
	CustomerEmail string `json:"customer_email"`
	AmountCents   int64  `json:"amount_cents"`
	Reason        string `json:"reason,omitempty"`
	Envelope
}
