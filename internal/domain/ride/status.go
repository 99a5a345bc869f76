package ride

import (
	"errors"
	"strings"
)

// Status is a ride request status as stored in the `rides` table.
type Status string

const (
	StatusCreated           Status = "CREATED"
	StatusPaymentProcessing Status = "PAYMENT_PROCESSING"
	StatusDriverSearching   Status = "DRIVER_SEARCHING"
	StatusDriverAssigned    Status = "DRIVER_ASSIGNED"
	StatusRideStarted       Status = "RIDE_STARTED"
	StatusRideCompleted     Status = "RIDE_COMPLETED"
	StatusPaymentFailed     Status = "PAYMENT_FAILED"
	StatusDriverUnavailable Status = "DRIVER_UNAVAILABLE"
	StatusCancelled         Status = "CANCELLED"
	StatusExpired           Status = "EXPIRED"
)

var ErrInvalidStatus = errors.New("invalid ride status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed ride status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusCreated, StatusPaymentProcessing, StatusDriverSearching,
		StatusDriverAssigned, StatusRideStarted, StatusRideCompleted,
		StatusPaymentFailed, StatusDriverUnavailable, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
func (status Status) CanTransitionTo(next Status) bool {
	switch status {
	case StatusCreated:
		return next == StatusPaymentProcessing || next == StatusDriverSearching ||
			next.sideTerminal()

	case StatusPaymentProcessing:
		// DRIVER_SEARCHING here means "debit completed, now claiming a driver".
		return next == StatusDriverSearching || next.sideTerminal()

	case StatusDriverSearching:
		// PAYMENT_PROCESSING is the queue-drain path: a queued request starts
		// its saga while already in DRIVER_SEARCHING.
		return next == StatusDriverAssigned || next == StatusPaymentProcessing ||
			next.sideTerminal()

	case StatusDriverAssigned:
		return next == StatusRideStarted || next == StatusRideCompleted ||
			next == StatusCancelled

	case StatusRideStarted:
		return next == StatusRideCompleted || next == StatusCancelled

	default:
		return false
	}
}

// Terminal indicates if the status is in a terminal state.
func (status Status) Terminal() bool {
	return status == StatusRideCompleted || status.sideTerminal()
}

// sideTerminal reports the failure states reachable from any pre-assignment status.
func (status Status) sideTerminal() bool {
	switch status {
	case StatusPaymentFailed, StatusDriverUnavailable, StatusCancelled, StatusExpired:
		return true
	default:
		return false
	}
}

// Cancellable reports whether a customer may still cancel a ride in this status.
func (status Status) Cancellable() bool {
	switch status {
	case StatusCreated, StatusPaymentProcessing, StatusDriverSearching, StatusDriverAssigned:
		return true
	default:
		return false
	}
}

// Active reports whether the ride still occupies the customer.
func (status Status) Active() bool {
	return !status.Terminal()
}

// Message returns the human-readable status line reported to the customer.
func (status Status) Message() string {
	switch status {
	case StatusCreated:
		return "Ride request created"
	case StatusPaymentProcessing:
		return "Processing payment"
	case StatusDriverSearching:
		return "Looking for available driver. Request will expire if no driver is found."
	case StatusDriverAssigned:
		return "Driver assigned and on the way"
	case StatusRideStarted:
		return "Ride in progress"
	case StatusRideCompleted:
		return "Ride completed"
	case StatusPaymentFailed:
		return "Payment failed. Please top up your balance and try again."
	case StatusDriverUnavailable:
		return "No drivers available nearby. Payment has been refunded."
	case StatusCancelled:
		return "Ride cancelled"
	case StatusExpired:
		return "Request expired before a driver was found"
	default:
		return "Unknown status"
	}
}
