package outbox

import (
	"errors"
	"strings"
	"time"
)

// Status of an outbox record. PENDING records are picked up by the relay;
// SENT and FAILED are final in-process. A FAILED record is a monitoring
// signal for operators, not an automatic retry.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusSent    Status = "SENT"
	StatusFailed  Status = "FAILED"
)

// Valid reports whether status is one of the allowed outbox status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusPending, StatusSent, StatusFailed:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// Record is one row of a service's outbox table. It is written in the same
// local transaction as the business mutation that produced the event, which
// makes "update state" and "schedule notification" atomic without a
// distributed transaction.
type Record struct {
	ID          string
	SagaID      string
	EventType   string // logical topic; doubles as the bus routing key
	Payload     []byte
	Status      Status
	CreatedAt   time.Time
	ProcessedAt *time.Time
	Version     int64
}

var (
	ErrSagaIDRequired    = errors.New("saga id is required")
	ErrEventTypeRequired = errors.New("event type is required")
	ErrPayloadRequired   = errors.New("payload is required")
)

// NewRecord builds a PENDING record ready to be appended inside the
// caller's transaction.
func NewRecord(sagaID, eventType string, payload []byte) (*Record, error) {
	if sagaID = strings.TrimSpace(sagaID); sagaID == "" {
		return nil, ErrSagaIDRequired
	}
	if eventType = strings.TrimSpace(eventType); eventType == "" {
		return nil, ErrEventTypeRequired
	}
	if len(payload) == 0 {
		return nil, ErrPayloadRequired
	}

	return &Record{
		SagaID:    sagaID,
		EventType: eventType,
		Payload:   payload,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// MarkSent stamps the record as published.
func (record *Record) MarkSent(at time.Time) {
	at = at.UTC()
	record.Status = StatusSent
	record.ProcessedAt = &at
}

// MarkFailed stamps the record as failed to publish.
func (record *Record) MarkFailed(at time.Time) {
	at = at.UTC()
	record.Status = StatusFailed
	record.ProcessedAt = &at
}
