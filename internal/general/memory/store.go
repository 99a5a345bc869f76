// Package memory provides map-backed implementations of the ports
// interfaces with the same version-check contract as the postgres
// repositories. It backs the service tests.
package memory

import (
	"context"
	"sync"
	"time"

	"ride-saga/internal/domain/customer"
	"ride-saga/internal/domain/driver"
	"ride-saga/internal/domain/outbox"
	"ride-saga/internal/domain/payment"
	"ride-saga/internal/domain/queue"
	"ride-saga/internal/domain/ride"
)

// Store holds one service's state behind a single mutex. Every repository
// method takes the lock, so a version-checked write is atomic exactly like
// a row update in postgres.
type Store struct {
	mu sync.Mutex

	rides        map[string]*ride.Request
	customers    map[string]*customer.Customer
	entries      map[string]*queue.Entry
	drivers      map[string]*driver.Driver
	balances     map[string]*payment.Balance
	transactions []*payment.Transaction
	records      map[string]*outbox.Record
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		rides:     make(map[string]*ride.Request),
		customers: make(map[string]*customer.Customer),
		entries:   make(map[string]*queue.Entry),
		drivers:   make(map[string]*driver.Driver),
		balances:  make(map[string]*payment.Balance),
		records:   make(map[string]*outbox.Record),
	}
}

// UnitOfWork runs the function directly; the store's per-operation locking
// stands in for transaction isolation.
type UnitOfWork struct{}

// WithinTx invokes fn with the unchanged context.
func (UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// Publisher records published messages, optionally failing on demand.
type Publisher struct {
	mu        sync.Mutex
	FailWith  error
	published []PublishedMessage
}

// PublishedMessage is one recorded publish call.
type PublishedMessage struct {
	Exchange   string
	RoutingKey string
	Body       []byte
}

// Publish records the message or returns the configured error.
func (pub *Publisher) Publish(exchange, routingKey string, body []byte) error {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	if pub.FailWith != nil {
		return pub.FailWith
	}
	pub.published = append(pub.published, PublishedMessage{Exchange: exchange, RoutingKey: routingKey, Body: body})
	return nil
}

// Published returns a copy of all recorded messages.
func (pub *Publisher) Published() []PublishedMessage {
	pub.mu.Lock()
	defer pub.mu.Unlock()
	out := make([]PublishedMessage, len(pub.published))
	copy(out, pub.published)
	return out
}

// Clock is a settable test clock.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts the clock at the given instant.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now.UTC()}
}

// Now returns the current test time.
func (clock *Clock) Now() time.Time {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	return clock.now
}

// Advance moves the clock forward.
func (clock *Clock) Advance(d time.Duration) {
	clock.mu.Lock()
	defer clock.mu.Unlock()
	clock.now = clock.now.Add(d)
}

// FixedCapacity is a capacity probe pinned to one value.
type FixedCapacity int

// AvailableDrivers returns the pinned value.
func (capacity FixedCapacity) AvailableDrivers(context.Context) int { return int(capacity) }
