package customer

import (
	"errors"
	"strings"
	"time"
)

// Status tracks whether a customer may request a new ride.
type Status string

const (
	StatusAvailable  Status = "AVAILABLE"
	StatusRequesting Status = "REQUESTING"
	StatusOnRide     Status = "ON_RIDE"
)

// Valid reports whether status is one of the allowed customer status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusAvailable, StatusRequesting, StatusOnRide:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// Customer is the domain entity corresponding to the `customers` table.
type Customer struct {
	Email         string
	Name          string
	Status        Status
	CurrentRideID *string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

var (
	ErrEmailRequired = errors.New("customer email is required")
	ErrNotAvailable  = errors.New("customer is not available for new rides")
)

// NewCustomer constructs an AVAILABLE customer.
func NewCustomer(email, name string) (*Customer, error) {
	if email = strings.TrimSpace(email); email == "" {
		return nil, ErrEmailRequired
	}
	if name = strings.TrimSpace(name); name == "" {
		name = "Customer"
	}

	now := time.Now().UTC()
	return &Customer{
		Email:     email,
		Name:      name,
		Status:    StatusAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// BeginRequest marks the customer as REQUESTING the given ride.
func (cust *Customer) BeginRequest(rideID string) error {
	if cust.Status != StatusAvailable {
		return ErrNotAvailable
	}
	cust.Status = StatusRequesting
	cust.CurrentRideID = &rideID
	cust.UpdatedAt = time.Now().UTC()
	return nil
}

// BoardRide marks the customer as ON_RIDE once a driver is assigned.
func (cust *Customer) BoardRide() {
	cust.Status = StatusOnRide
	cust.UpdatedAt = time.Now().UTC()
}

// Reset returns the customer to AVAILABLE and clears the ride reference.
func (cust *Customer) Reset() {
	cust.Status = StatusAvailable
	cust.CurrentRideID = nil
	cust.UpdatedAt = time.Now().UTC()
}
