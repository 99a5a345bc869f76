package ride

import (
	"errors"
	"strings"
	"time"
)

// Request is the domain entity corresponding to the `rides` table.
// It is created on intake, mutated by the saga and by queue/expiry
// processing, and retained as history once terminal.
type Request struct {
	// Identity & audit
	ID        string
	SagaID    string // correlation id threaded through every message of this attempt
	CreatedAt time.Time
	UpdatedAt time.Time

	// Actors
	CustomerEmail string
	DriverEmail   *string // nil until a driver is assigned

	// Trip
	Pickup      Location
	Destination Location

	// Core state
	Status              Status
	EstimatedPriceCents int64
	FinalPriceCents     *int64

	// Lifecycle timestamps
	PaidAt      *time.Time // set when the debit completed; drives refund decisions
	CompletedAt *time.Time

	// Optimistic concurrency
	Version int64
}

var (
	ErrCustomerRequired        = errors.New("customer email is required")
	ErrDriverRequired          = errors.New("driver email is required")
	ErrInvalidStatusTransition = errors.New("invalid ride status transition")
	ErrAlreadyAssigned         = errors.New("driver already assigned")
	ErrNoDriverAssigned        = errors.New("no driver assigned")
)

// NewRequest creates a ride request in CREATED state with the estimated price
// computed from the trip distance.
func NewRequest(customerEmail string, pickup, destination Location) (*Request, error) {
	if customerEmail = strings.TrimSpace(customerEmail); customerEmail == "" {
		return nil, ErrCustomerRequired
	}

	now := time.Now().UTC()
	return &Request{
		CreatedAt:           now,
		UpdatedAt:           now,
		CustomerEmail:       customerEmail,
		Pickup:              pickup,
		Destination:         destination,
		Status:              StatusCreated,
		EstimatedPriceCents: EstimatePriceCents(pickup, destination),
	}, nil
}

// BeginPayment moves the ride into PAYMENT_PROCESSING (saga step one).
func (request *Request) BeginPayment() error {
	if !request.Status.CanTransitionTo(StatusPaymentProcessing) {
		return ErrInvalidStatusTransition
	}
	request.setStatus(StatusPaymentProcessing)
	return nil
}

// MarkPaid records a completed debit and moves the ride into DRIVER_SEARCHING.
func (request *Request) MarkPaid() error {
	if !request.Status.CanTransitionTo(StatusDriverSearching) {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	request.PaidAt = &now
	request.setStatus(StatusDriverSearching)
	return nil
}

// MarkSearching moves the ride into DRIVER_SEARCHING without a payment marker.
// Used by the admission queue while the saga has not run yet.
func (request *Request) MarkSearching() error {
	if !request.Status.CanTransitionTo(StatusDriverSearching) {
		return ErrInvalidStatusTransition
	}
	request.setStatus(StatusDriverSearching)
	return nil
}

// AssignDriver sets the driver and moves DRIVER_SEARCHING -> DRIVER_ASSIGNED.
func (request *Request) AssignDriver(driverEmail string) error {
	if driverEmail = strings.TrimSpace(driverEmail); driverEmail == "" {
		return ErrDriverRequired
	}
	if request.DriverEmail != nil && *request.DriverEmail != "" {
		return ErrAlreadyAssigned
	}
	if request.Status != StatusDriverSearching {
		return ErrInvalidStatusTransition
	}
	request.DriverEmail = &driverEmail
	request.setStatus(StatusDriverAssigned)
	return nil
}

// Start transitions DRIVER_ASSIGNED -> RIDE_STARTED.
func (request *Request) Start() error {
	if request.DriverEmail == nil || *request.DriverEmail == "" {
		return ErrNoDriverAssigned
	}
	if request.Status != StatusDriverAssigned {
		return ErrInvalidStatusTransition
	}
	request.setStatus(StatusRideStarted)
	return nil
}

// Complete finishes the ride and freezes the final price.
func (request *Request) Complete() error {
	if request.Status != StatusRideStarted && request.Status != StatusDriverAssigned {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	request.CompletedAt = &now
	final := request.EstimatedPriceCents
	request.FinalPriceCents = &final
	request.setStatus(StatusRideCompleted)
	return nil
}

// Fail moves the ride into one of the terminal failure states
// (PAYMENT_FAILED, DRIVER_UNAVAILABLE, CANCELLED, EXPIRED).
func (request *Request) Fail(terminal Status) error {
	if !terminal.sideTerminal() {
		return ErrInvalidStatus
	}
	if !request.Status.CanTransitionTo(terminal) {
		return ErrInvalidStatusTransition
	}
	now := time.Now().UTC()
	request.CompletedAt = &now
	request.setStatus(terminal)
	return nil
}

// Refundable reports whether funds were moved for this ride.
func (request *Request) Refundable() bool {
	return request.PaidAt != nil
}

// ----- internal helpers -----

func (request *Request) setStatus(status Status) {
	request.Status = status
	request.UpdatedAt = time.Now().UTC()
}
