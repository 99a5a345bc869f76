package memory

import (
	"context"
	"sort"
	"time"

	"ride-saga/internal/domain/customer"
	"ride-saga/internal/domain/driver"
	"ride-saga/internal/domain/outbox"
	"ride-saga/internal/domain/payment"
	"ride-saga/internal/domain/queue"
	"ride-saga/internal/domain/ride"
	"ride-saga/internal/ports"

	"github.com/google/uuid"
)

// ----- rides -----

// RideRepo implements ports.RideRepository over a Store.
type RideRepo struct{ Store *Store }

func (repo *RideRepo) Create(_ context.Context, request *ride.Request) error {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	repo.Store.rides[request.ID] = cloneRide(request)
	return nil
}

func (repo *RideRepo) GetByID(_ context.Context, id string) (*ride.Request, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	stored, ok := repo.Store.rides[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneRide(stored), nil
}

func (repo *RideRepo) GetActiveForCustomer(_ context.Context, customerEmail string) (*ride.Request, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	var latest *ride.Request
	for _, stored := range repo.Store.rides {
		if stored.CustomerEmail != customerEmail || stored.Status.Terminal() {
			continue
		}
		if latest == nil || stored.CreatedAt.After(latest.CreatedAt) {
			latest = stored
		}
	}
	if latest == nil {
		return nil, ports.ErrNotFound
	}
	return cloneRide(latest), nil
}

func (repo *RideRepo) Update(_ context.Context, request *ride.Request) error {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	stored, ok := repo.Store.rides[request.ID]
	if !ok || stored.Version != request.Version {
		return ports.ErrVersionConflict
	}
	request.Version++
	repo.Store.rides[request.ID] = cloneRide(request)
	return nil
}

// ----- customers -----

// CustomerRepo implements ports.CustomerRepository over a Store.
type CustomerRepo struct{ Store *Store }

func (repo *CustomerRepo) GetByEmail(_ context.Context, email string) (*customer.Customer, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	stored, ok := repo.Store.customers[email]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneCustomer(stored), nil
}

func (repo *CustomerRepo) Create(_ context.Context, cust *customer.Customer) error {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	repo.Store.customers[cust.Email] = cloneCustomer(cust)
	return nil
}

func (repo *CustomerRepo) Update(_ context.Context, cust *customer.Customer) error {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	if _, ok := repo.Store.customers[cust.Email]; !ok {
		return ports.ErrNotFound
	}
	repo.Store.customers[cust.Email] = cloneCustomer(cust)
	return nil
}

// ----- admission queue -----

// QueueRepo implements ports.QueueRepository over a Store.
type QueueRepo struct{ Store *Store }

func (repo *QueueRepo) Create(_ context.Context, entry *queue.Entry) error {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	repo.Store.entries[entry.ID] = cloneEntry(entry)
	return nil
}

func (repo *QueueRepo) GetByID(_ context.Context, id string) (*queue.Entry, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	stored, ok := repo.Store.entries[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneEntry(stored), nil
}

func (repo *QueueRepo) GetOpenForRide(_ context.Context, rideID string) (*queue.Entry, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	for _, stored := range repo.Store.entries {
		if stored.RideID == rideID && !stored.Status.Terminal() {
			return cloneEntry(stored), nil
		}
	}
	return nil, ports.ErrNotFound
}

func (repo *QueueRepo) ListQueued(_ context.Context, limit int) ([]*queue.Entry, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	var queued []*queue.Entry
	for _, stored := range repo.Store.entries {
		if stored.Status == queue.StatusQueued {
			queued = append(queued, cloneEntry(stored))
		}
	}
	sort.Slice(queued, func(i, j int) bool { return queued[i].QueuedAt.Before(queued[j].QueuedAt) })
	if limit > 0 && len(queued) > limit {
		queued = queued[:limit]
	}
	return queued, nil
}

func (repo *QueueRepo) ListQueuedExpiredBefore(_ context.Context, cutoff time.Time) ([]*queue.Entry, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	var expired []*queue.Entry
	for _, stored := range repo.Store.entries {
		if stored.Status == queue.StatusQueued && !stored.ExpiresAt.After(cutoff) {
			expired = append(expired, cloneEntry(stored))
		}
	}
	sort.Slice(expired, func(i, j int) bool { return expired[i].QueuedAt.Before(expired[j].QueuedAt) })
	return expired, nil
}

func (repo *QueueRepo) UpdateStatus(_ context.Context, entry *queue.Entry) error {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	stored, ok := repo.Store.entries[entry.ID]
	if !ok || stored.Version != entry.Version {
		return ports.ErrVersionConflict
	}
	entry.Version++
	repo.Store.entries[entry.ID] = cloneEntry(entry)
	return nil
}

// ----- drivers -----

// DriverRepo implements ports.DriverRepository over a Store.
type DriverRepo struct{ Store *Store }

func (repo *DriverRepo) Create(_ context.Context, drv *driver.Driver) error {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	if drv.ID == "" {
		drv.ID = uuid.NewString()
	}
	repo.Store.drivers[drv.ID] = cloneDriver(drv)
	return nil
}

func (repo *DriverRepo) GetByID(_ context.Context, id string) (*driver.Driver, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	stored, ok := repo.Store.drivers[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneDriver(stored), nil
}

func (repo *DriverRepo) GetByEmail(_ context.Context, email string) (*driver.Driver, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	for _, stored := range repo.Store.drivers {
		if stored.Email == email {
			return cloneDriver(stored), nil
		}
	}
	return nil, ports.ErrNotFound
}

func (repo *DriverRepo) GetByCurrentRide(_ context.Context, rideID string) (*driver.Driver, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	for _, stored := range repo.Store.drivers {
		if stored.CurrentRideID != nil && *stored.CurrentRideID == rideID {
			return cloneDriver(stored), nil
		}
	}
	return nil, ports.ErrNotFound
}

func (repo *DriverRepo) ListAvailableInCity(_ context.Context, city string) ([]*driver.Driver, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	var available []*driver.Driver
	for _, stored := range repo.Store.drivers {
		if stored.Status == driver.StatusAvailable && stored.City == city {
			available = append(available, cloneDriver(stored))
		}
	}
	return available, nil
}

func (repo *DriverRepo) ListAvailable(_ context.Context) ([]*driver.Driver, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	var available []*driver.Driver
	for _, stored := range repo.Store.drivers {
		if stored.Status == driver.StatusAvailable {
			available = append(available, cloneDriver(stored))
		}
	}
	return available, nil
}

func (repo *DriverRepo) CountAvailable(_ context.Context) (int, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	count := 0
	for _, stored := range repo.Store.drivers {
		if stored.Status == driver.StatusAvailable {
			count++
		}
	}
	return count, nil
}

func (repo *DriverRepo) Update(_ context.Context, drv *driver.Driver) error {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	stored, ok := repo.Store.drivers[drv.ID]
	if !ok || stored.Version != drv.Version {
		return ports.ErrVersionConflict
	}
	drv.Version++
	repo.Store.drivers[drv.ID] = cloneDriver(drv)
	return nil
}

// ----- balances -----

// BalanceRepo implements ports.BalanceRepository over a Store.
type BalanceRepo struct{ Store *Store }

func (repo *BalanceRepo) GetByCustomer(_ context.Context, customerEmail string) (*payment.Balance, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	stored, ok := repo.Store.balances[customerEmail]
	if !ok {
		return nil, ports.ErrNotFound
	}
	out := *stored
	return &out, nil
}

func (repo *BalanceRepo) Create(_ context.Context, balance *payment.Balance) error {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	stored := *balance
	repo.Store.balances[balance.CustomerEmail] = &stored
	return nil
}

func (repo *BalanceRepo) Update(_ context.Context, balance *payment.Balance) error {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	stored, ok := repo.Store.balances[balance.CustomerEmail]
	if !ok || stored.Version != balance.Version {
		return ports.ErrVersionConflict
	}
	balance.Version++
	updated := *balance
	repo.Store.balances[balance.CustomerEmail] = &updated
	return nil
}

// ----- transactions -----

// TransactionRepo implements ports.TransactionRepository over a Store.
type TransactionRepo struct{ Store *Store }

func (repo *TransactionRepo) Append(_ context.Context, trx *payment.Transaction) error {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	if trx.ID == "" {
		trx.ID = uuid.NewString()
	}
	stored := *trx
	repo.Store.transactions = append(repo.Store.transactions, &stored)
	return nil
}

func (repo *TransactionRepo) ListBySaga(_ context.Context, sagaID string) ([]*payment.Transaction, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	var matched []*payment.Transaction
	for _, stored := range repo.Store.transactions {
		if stored.SagaID == sagaID {
			out := *stored
			matched = append(matched, &out)
		}
	}
	return matched, nil
}

// ----- outbox -----

// OutboxRepo implements ports.OutboxRepository over a Store.
type OutboxRepo struct{ Store *Store }

func (repo *OutboxRepo) Append(_ context.Context, record *outbox.Record) error {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	repo.Store.records[record.ID] = cloneRecord(record)
	return nil
}

func (repo *OutboxRepo) ListPending(_ context.Context, limit int) ([]*outbox.Record, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	var pending []*outbox.Record
	for _, stored := range repo.Store.records {
		if stored.Status == outbox.StatusPending {
			pending = append(pending, cloneRecord(stored))
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].CreatedAt.Before(pending[j].CreatedAt) })
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

// GetByID is a test helper for inspecting a record after the relay ran.
func (repo *OutboxRepo) GetByID(_ context.Context, id string) (*outbox.Record, error) {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	stored, ok := repo.Store.records[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	return cloneRecord(stored), nil
}

func (repo *OutboxRepo) MarkProcessed(_ context.Context, record *outbox.Record) error {
	repo.Store.mu.Lock()
	defer repo.Store.mu.Unlock()

	stored, ok := repo.Store.records[record.ID]
	if !ok || stored.Version != record.Version {
		return ports.ErrVersionConflict
	}
	record.Version++
	repo.Store.records[record.ID] = cloneRecord(record)
	return nil
}

// ----- clones -----

func cloneRide(in *ride.Request) *ride.Request {
	out := *in
	out.DriverEmail = clonePtr(in.DriverEmail)
	out.FinalPriceCents = clonePtr(in.FinalPriceCents)
	out.PaidAt = clonePtr(in.PaidAt)
	out.CompletedAt = clonePtr(in.CompletedAt)
	return &out
}

func cloneCustomer(in *customer.Customer) *customer.Customer {
	out := *in
	out.CurrentRideID = clonePtr(in.CurrentRideID)
	return &out
}

func cloneEntry(in *queue.Entry) *queue.Entry {
	out := *in
	out.PaymentRequestPayload = append([]byte(nil), in.PaymentRequestPayload...)
	return &out
}

func cloneDriver(in *driver.Driver) *driver.Driver {
	out := *in
	out.CurrentRideID = clonePtr(in.CurrentRideID)
	return &out
}

func cloneRecord(in *outbox.Record) *outbox.Record {
	out := *in
	out.Payload = append([]byte(nil), in.Payload...)
	out.ProcessedAt = clonePtr(in.ProcessedAt)
	return &out
}

func clonePtr[T any](in *T) *T {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}
