package queue

import (
	"errors"
	"strings"
	"time"
)

// Entry is the domain entity corresponding to the `queued_requests` table.
// It holds a ride request that could not be serviced immediately, carrying
// the frozen saga-start payload so the drain cycle can re-issue it verbatim.
type Entry struct {
	// Identity & audit
	ID        string
	CreatedAt time.Time

	// Foreign keys & correlation
	RideID        string
	SagaID        string
	CustomerEmail string

	// The serialized PaymentRequest captured at enqueue time.
	PaymentRequestPayload []byte

	// FIFO ordering & expiry
	QueuedAt  time.Time
	ExpiresAt time.Time

	Status  Status
	Version int64
}

var (
	ErrRideIDRequired  = errors.New("ride id is required")
	ErrSagaIDRequired  = errors.New("saga id is required")
	ErrPayloadRequired = errors.New("payment request payload is required")
	ErrNotQueued       = errors.New("entry is not in QUEUED status")
)

// NewEntry constructs a QUEUED entry whose expiry is queuedAt + ttl.
func NewEntry(rideID, sagaID, customerEmail string, payload []byte, queuedAt time.Time, ttl time.Duration) (*Entry, error) {
	if rideID = strings.TrimSpace(rideID); rideID == "" {
		return nil, ErrRideIDRequired
	}
	if sagaID = strings.TrimSpace(sagaID); sagaID == "" {
		return nil, ErrSagaIDRequired
	}
	if len(payload) == 0 {
		return nil, ErrPayloadRequired
	}

	queuedAt = queuedAt.UTC()
	return &Entry{
		CreatedAt:             queuedAt,
		RideID:                rideID,
		SagaID:                sagaID,
		CustomerEmail:         strings.TrimSpace(customerEmail),
		PaymentRequestPayload: payload,
		QueuedAt:              queuedAt,
		ExpiresAt:             queuedAt.Add(ttl),
		Status:                StatusQueued,
	}, nil
}

// ExpiredAt reports whether the entry is past its expiry at the given instant.
// The boundary is inclusive: an entry whose ExpiresAt equals now is expired.
func (entry *Entry) ExpiredAt(now time.Time) bool {
	return !entry.ExpiresAt.After(now)
}

// Claim transitions QUEUED -> PROCESSING. The repository enforces the
// version check; this guards the in-memory state.
func (entry *Entry) Claim() error {
	if entry.Status != StatusQueued {
		return ErrNotQueued
	}
	entry.Status = StatusProcessing
	return nil
}

// Requeue puts a failed PROCESSING attempt back to QUEUED. QueuedAt is
// deliberately preserved so the entry keeps its FIFO position.
func (entry *Entry) Requeue() {
	entry.Status = StatusQueued
}
