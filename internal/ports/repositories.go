package ports

import (
	"context"
	"errors"
	"time"

	"ride-saga/internal/domain/customer"
	"ride-saga/internal/domain/driver"
	"ride-saga/internal/domain/outbox"
	"ride-saga/internal/domain/payment"
	"ride-saga/internal/domain/queue"
	"ride-saga/internal/domain/ride"
)

// ErrVersionConflict is returned by any version-checked write that lost to
// a concurrent writer. Callers convert it into a bounded re-read-and-retry,
// never into a user-visible error on the first occurrence.
var ErrVersionConflict = errors.New("optimistic concurrency conflict")

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("record not found")

// UnitOfWork manages transactions across multiple repository operations.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// RideRepository manages ride request rows (customer service).
type RideRepository interface {
	Create(ctx context.Context, request *ride.Request) error
	GetByID(ctx context.Context, id string) (*ride.Request, error)
	// GetActiveForCustomer returns the customer's non-terminal ride, or ErrNotFound.
	GetActiveForCustomer(ctx context.Context, customerEmail string) (*ride.Request, error)
	// Update writes the full row with a version check; the in-memory version
	// is bumped on success.
	Update(ctx context.Context, request *ride.Request) error
}

// CustomerRepository manages customer rows (customer service).
type CustomerRepository interface {
	GetByEmail(ctx context.Context, email string) (*customer.Customer, error)
	Create(ctx context.Context, cust *customer.Customer) error
	Update(ctx context.Context, cust *customer.Customer) error
}

// QueueRepository manages admission queue entries (customer service).
type QueueRepository interface {
	Create(ctx context.Context, entry *queue.Entry) error
	GetByID(ctx context.Context, id string) (*queue.Entry, error)
	// GetOpenForRide returns the ride's non-terminal entry, or ErrNotFound.
	GetOpenForRide(ctx context.Context, rideID string) (*queue.Entry, error)
	// ListQueued returns QUEUED entries ordered strictly by queued_at ascending.
	ListQueued(ctx context.Context, limit int) ([]*queue.Entry, error)
	// ListQueuedExpiredBefore returns QUEUED entries with expires_at <= cutoff.
	ListQueuedExpiredBefore(ctx context.Context, cutoff time.Time) ([]*queue.Entry, error)
	// UpdateStatus writes the entry status with a version check.
	UpdateStatus(ctx context.Context, entry *queue.Entry) error
}

// DriverRepository manages driver rows (driver service).
type DriverRepository interface {
	Create(ctx context.Context, drv *driver.Driver) error
	GetByID(ctx context.Context, id string) (*driver.Driver, error)
	GetByEmail(ctx context.Context, email string) (*driver.Driver, error)
	// GetByCurrentRide returns the driver claimed for the ride, or ErrNotFound.
	GetByCurrentRide(ctx context.Context, rideID string) (*driver.Driver, error)
	// ListAvailableInCity returns AVAILABLE drivers in the given city.
	ListAvailableInCity(ctx context.Context, city string) ([]*driver.Driver, error)
	// ListAvailable returns all AVAILABLE drivers.
	ListAvailable(ctx context.Context) ([]*driver.Driver, error)
	CountAvailable(ctx context.Context) (int, error)
	// Update writes status/ride/location with a version check.
	Update(ctx context.Context, drv *driver.Driver) error
}

// BalanceRepository manages balance rows (payment service).
type BalanceRepository interface {
	GetByCustomer(ctx context.Context, customerEmail string) (*payment.Balance, error)
	Create(ctx context.Context, balance *payment.Balance) error
	// Update writes the amount with a version check.
	Update(ctx context.Context, balance *payment.Balance) error
}

// TransactionRepository appends to the ledger log (payment service).
type TransactionRepository interface {
	Append(ctx context.Context, trx *payment.Transaction) error
	ListBySaga(ctx context.Context, sagaID string) ([]*payment.Transaction, error)
}

// OutboxRepository manages one service's outbox table.
type OutboxRepository interface {
	// Append writes a PENDING record inside the caller's transaction.
	Append(ctx context.Context, record *outbox.Record) error
	// ListPending returns PENDING records ordered by created_at ascending.
	ListPending(ctx context.Context, limit int) ([]*outbox.Record, error)
	// MarkProcessed persists the record's SENT/FAILED status and processed_at.
	MarkProcessed(ctx context.Context, record *outbox.Record) error
}
