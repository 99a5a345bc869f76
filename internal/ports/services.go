package ports

import (
	"context"
	"time"

	"ride-saga/internal/general/contracts"
)

// BusPublisher is the publish half of the message bus.
type BusPublisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// CapacityProbe reports the driver pool's currently known free capacity.
// The customer service consults it once per drain cycle and on intake to
// decide between the immediate saga path and the admission queue.
type CapacityProbe interface {
	AvailableDrivers(ctx context.Context) int
}

// Clock supplies timestamps so expiry logic is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// ----- DTOs for Customer Service -----

// RequestRideInput is the validated input required to request a ride.
type RequestRideInput struct {
	CustomerEmail      string
	CustomerName       string
	PickupLatitude     float64
	PickupLongitude    float64
	PickupAddress      string
	PickupCity         string
	DestLatitude       float64
	DestLongitude      float64
	DestinationAddress string
	DestinationCity    string
}

// RequestRideResult is returned by CustomerService.RequestRide().
type RequestRideResult struct {
	RideID              string `json:"ride_id"`
	SagaID              string `json:"saga_id"`
	Status              string `json:"status"`
	EstimatedPriceCents int64  `json:"estimated_price_cents"`
	Queued              bool   `json:"queued"`
	Message             string `json:"message"`
}

// RideStatusResult is returned by the ride lifecycle operations.
type RideStatusResult struct {
	RideID          string `json:"ride_id"`
	Status          string `json:"status"`
	DriverEmail     string `json:"driver_email,omitempty"`
	FinalPriceCents *int64 `json:"final_price_cents,omitempty"`
	Message         string `json:"message"`
}

// ----- Service interfaces -----

// CustomerService orchestrates the ride saga and the admission queue.
type CustomerService interface {
	RequestRide(ctx context.Context, in RequestRideInput) (RequestRideResult, error)
	CancelRide(ctx context.Context, customerEmail string) (RideStatusResult, error)
	StartRide(ctx context.Context, customerEmail string) (RideStatusResult, error)
	CompleteRide(ctx context.Context, customerEmail string) (RideStatusResult, error)
	RideStatus(ctx context.Context, customerEmail string) (RideStatusResult, error)

	// DrainQueue runs one admission queue drain cycle.
	DrainQueue(ctx context.Context) error
	// SweepExpired expires queued entries past their deadline.
	SweepExpired(ctx context.Context) error
	// RunBackgroundWorkers starts the bus consumers and the periodic
	// drain/sweep loops; they stop when ctx is cancelled.
	RunBackgroundWorkers(ctx context.Context)
}

// PaymentService keeps the ledger: balances plus an append-only
// transaction log, driven entirely by bus messages.
type PaymentService interface {
	ProcessPaymentRequest(ctx context.Context, msg contracts.PaymentRequest) error
	ProcessRefund(ctx context.Context, msg contracts.PaymentRefund) error
	RunBackgroundConsumers(ctx context.Context)
}

// DriverService owns the driver pool: claim on request, release on
// completion, availability announcements for the admission queue.
type DriverService interface {
	RegisterDriver(ctx context.Context, email, name string, latitude, longitude float64, city string) (string, error)
	ProcessDriverRequest(ctx context.Context, msg contracts.DriverRequest) error
	ProcessCompletion(ctx context.Context, msg contracts.DriverCompletion) error
	// AnnounceAvailability publishes the current AVAILABLE head count.
	AnnounceAvailability(ctx context.Context, sagaID string) error
	RunBackgroundConsumers(ctx context.Context)
}
