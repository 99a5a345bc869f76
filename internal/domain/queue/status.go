package queue

import (
	"errors"
	"strings"
)

// Status is an admission queue entry status.
type Status string

const (
	StatusQueued     Status = "QUEUED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusExpired    Status = "EXPIRED"
	StatusCancelled  Status = "CANCELLED"
)

var ErrInvalidStatus = errors.New("invalid queue entry status")

// ParseStatus normalizes (uppercases+trims) and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(in)))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed entry status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// Terminal indicates if the entry will never be drained again.
func (status Status) Terminal() bool {
	switch status {
	case StatusCompleted, StatusExpired, StatusCancelled:
		return true
	default:
		return false
	}
}
