package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-saga/internal/domain/customer"
	"ride-saga/internal/domain/driver"
	"ride-saga/internal/domain/payment"
	"ride-saga/internal/domain/ride"
	"ride-saga/internal/general/contracts"
	"ride-saga/internal/general/logger"
	"ride-saga/internal/general/memory"
	"ride-saga/internal/ports"
	driversvc "ride-saga/internal/software/driver/service"
	paymentsvc "ride-saga/internal/software/payment/service"
)

// world wires the three services over separate in-memory stores and moves
// messages between them by draining each service's outbox, the way the
// relay plus the bus would in production.
type world struct {
	t     *testing.T
	clock *memory.Clock

	customerStore *memory.Store
	paymentStore  *memory.Store
	driverStore   *memory.Store

	customersvc *customerService
	paymentsvc  ports.PaymentService
	driversvc   ports.DriverService

	tracker *AvailabilityTracker
}

func newWorld(t *testing.T) *world {
	t.Helper()

	clock := memory.NewClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))
	customerStore := memory.NewStore()
	paymentStore := memory.NewStore()
	driverStore := memory.NewStore()
	tracker := NewAvailabilityTracker()

	custSvc := NewCustomerService(
		logger.New(contracts.ProducerCustomerService),
		memory.UnitOfWork{},
		&memory.RideRepo{Store: customerStore},
		&memory.CustomerRepo{Store: customerStore},
		&memory.QueueRepo{Store: customerStore},
		&memory.OutboxRepo{Store: customerStore},
		tracker,
		nil,
		clock,
		testQueueTTL,
		time.Second,
		time.Second,
	).(*customerService)

	paySvc := paymentsvc.NewPaymentService(
		logger.New(contracts.ProducerPaymentService),
		memory.UnitOfWork{},
		&memory.BalanceRepo{Store: paymentStore},
		&memory.TransactionRepo{Store: paymentStore},
		&memory.OutboxRepo{Store: paymentStore},
		nil,
		clock,
	)

	drvSvc := driversvc.NewDriverService(
		logger.New(contracts.ProducerDriverService),
		memory.UnitOfWork{},
		&memory.DriverRepo{Store: driverStore},
		&memory.OutboxRepo{Store: driverStore},
		nil,
		clock,
	)

	return &world{
		t:             t,
		clock:         clock,
		customerStore: customerStore,
		paymentStore:  paymentStore,
		driverStore:   driverStore,
		customersvc:   custSvc,
		paymentsvc:    paySvc,
		driversvc:     drvSvc,
		tracker:       tracker,
	}
}

type delivery struct {
	eventType string
	payload   []byte
}

// drainOutbox marks every pending record SENT and returns it for delivery.
func (w *world) drainOutbox(store *memory.Store) []delivery {
	w.t.Helper()
	ctx := context.Background()
	repo := &memory.OutboxRepo{Store: store}

	pending, err := repo.ListPending(ctx, 0)
	require.NoError(w.t, err)

	var delivered []delivery
	for _, record := range pending {
		record.MarkSent(w.clock.Now())
		require.NoError(w.t, repo.MarkProcessed(ctx, record))
		delivered = append(delivered, delivery{record.EventType, record.Payload})
	}
	return delivered
}

// pump moves messages between the services until every outbox is empty.
func (w *world) pump() {
	w.t.Helper()
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		moved := 0

		for _, msg := range w.drainOutbox(w.customerStore) {
			moved++
			switch msg.eventType {
			case contracts.EventPaymentRequest:
				var m contracts.PaymentRequest
				require.NoError(w.t, json.Unmarshal(msg.payload, &m))
				require.NoError(w.t, w.paymentsvc.ProcessPaymentRequest(ctx, m))
			case contracts.EventPaymentRefund:
				var m contracts.PaymentRefund
				require.NoError(w.t, json.Unmarshal(msg.payload, &m))
				require.NoError(w.t, w.paymentsvc.ProcessRefund(ctx, m))
			case contracts.EventDriverRequest:
				var m contracts.DriverRequest
				require.NoError(w.t, json.Unmarshal(msg.payload, &m))
				require.NoError(w.t, w.driversvc.ProcessDriverRequest(ctx, m))
			case contracts.EventDriverCompletion:
				var m contracts.DriverCompletion
				require.NoError(w.t, json.Unmarshal(msg.payload, &m))
				require.NoError(w.t, w.driversvc.ProcessCompletion(ctx, m))
			default:
				w.t.Fatalf("unexpected event from customer outbox: %s", msg.eventType)
			}
		}

		for _, msg := range w.drainOutbox(w.paymentStore) {
			moved++
			switch msg.eventType {
			case contracts.EventPaymentResponse:
				var m contracts.PaymentResponse
				require.NoError(w.t, json.Unmarshal(msg.payload, &m))
				require.NoError(w.t, w.customersvc.handlePaymentResponse(ctx, m))
			default:
				w.t.Fatalf("unexpected event from payment outbox: %s", msg.eventType)
			}
		}

		for _, msg := range w.drainOutbox(w.driverStore) {
			moved++
			switch msg.eventType {
			case contracts.EventDriverResponse:
				var m contracts.DriverResponse
				require.NoError(w.t, json.Unmarshal(msg.payload, &m))
				require.NoError(w.t, w.customersvc.handleDriverResponse(ctx, m))
			case contracts.EventDriverAvailability:
				var m contracts.DriverAvailability
				require.NoError(w.t, json.Unmarshal(msg.payload, &m))
				w.tracker.SetAvailableDrivers(m.AvailableCount)
			default:
				w.t.Fatalf("unexpected event from driver outbox: %s", msg.eventType)
			}
		}

		if moved == 0 {
			return
		}
	}
	w.t.Fatal("message pump did not settle")
}

func (w *world) balance(email string) int64 {
	w.t.Helper()
	repo := &memory.BalanceRepo{Store: w.paymentStore}
	balance, err := repo.GetByCustomer(context.Background(), email)
	require.NoError(w.t, err)
	return balance.AmountCents
}

func (w *world) rideByID(id string) *ride.Request {
	w.t.Helper()
	repo := &memory.RideRepo{Store: w.customerStore}
	request, err := repo.GetByID(context.Background(), id)
	require.NoError(w.t, err)
	return request
}

func (w *world) customerByEmail(email string) *customer.Customer {
	w.t.Helper()
	repo := &memory.CustomerRepo{Store: w.customerStore}
	cust, err := repo.GetByEmail(context.Background(), email)
	require.NoError(w.t, err)
	return cust
}

func (w *world) driverByEmail(email string) *driver.Driver {
	w.t.Helper()
	repo := &memory.DriverRepo{Store: w.driverStore}
	drv, err := repo.GetByEmail(context.Background(), email)
	require.NoError(w.t, err)
	return drv
}

// crossCountryRideInput prices far beyond the default balance.
func crossCountryRideInput(email string) ports.RequestRideInput {
	in := rideInput(email)
	in.DestLatitude = 34.0522
	in.DestLongitude = -118.2437
	in.DestinationAddress = "200 N Spring St"
	in.DestinationCity = "los angeles"
	return in
}

func TestScenarioHappyPath(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	_, err := w.driversvc.RegisterDriver(ctx, "driver@example.com", "Dana", 40.71, -74.00, "new york")
	require.NoError(t, err)
	w.pump()
	assert.Equal(t, 1, w.tracker.AvailableDrivers(ctx))

	result, err := w.customersvc.RequestRide(ctx, rideInput("rider@example.com"))
	require.NoError(t, err)
	assert.False(t, result.Queued)

	w.pump()

	request := w.rideByID(result.RideID)
	assert.Equal(t, ride.StatusDriverAssigned, request.Status)
	require.NotNil(t, request.DriverEmail)
	assert.Equal(t, "driver@example.com", *request.DriverEmail)

	assert.Equal(t, payment.DefaultBalanceCents-result.EstimatedPriceCents, w.balance("rider@example.com"))
	assert.Equal(t, driver.StatusBusy, w.driverByEmail("driver@example.com").Status)
	assert.Equal(t, customer.StatusOnRide, w.customerByEmail("rider@example.com").Status)

	_, err = w.customersvc.StartRide(ctx, "rider@example.com")
	require.NoError(t, err)
	completed, err := w.customersvc.CompleteRide(ctx, "rider@example.com")
	require.NoError(t, err)
	require.NotNil(t, completed.FinalPriceCents)
	assert.Equal(t, result.EstimatedPriceCents, *completed.FinalPriceCents)

	w.pump()

	assert.Equal(t, driver.StatusAvailable, w.driverByEmail("driver@example.com").Status)
	assert.Equal(t, customer.StatusAvailable, w.customerByEmail("rider@example.com").Status)
	assert.Equal(t, 1, w.tracker.AvailableDrivers(ctx), "the release announced the freed capacity")
}

func TestScenarioInsufficientFunds(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	_, err := w.driversvc.RegisterDriver(ctx, "driver@example.com", "Dana", 40.71, -74.00, "new york")
	require.NoError(t, err)
	w.pump()

	result, err := w.customersvc.RequestRide(ctx, crossCountryRideInput("rider@example.com"))
	require.NoError(t, err)
	require.Greater(t, result.EstimatedPriceCents, payment.DefaultBalanceCents)

	w.pump()

	assert.Equal(t, ride.StatusPaymentFailed, w.rideByID(result.RideID).Status)
	assert.Equal(t, payment.DefaultBalanceCents, w.balance("rider@example.com"), "a refused debit moves no funds")
	assert.Equal(t, customer.StatusAvailable, w.customerByEmail("rider@example.com").Status)
	assert.Equal(t, driver.StatusAvailable, w.driverByEmail("driver@example.com").Status)
}

func TestScenarioDriverUnavailableRefundsDebit(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	// stale capacity: the tracker still reports a driver that is gone
	w.tracker.SetAvailableDrivers(1)

	result, err := w.customersvc.RequestRide(ctx, rideInput("rider@example.com"))
	require.NoError(t, err)
	assert.False(t, result.Queued)

	w.pump()

	assert.Equal(t, ride.StatusDriverUnavailable, w.rideByID(result.RideID).Status)
	assert.Equal(t, payment.DefaultBalanceCents, w.balance("rider@example.com"), "the refund restores the debit to the cent")
	assert.Equal(t, customer.StatusAvailable, w.customerByEmail("rider@example.com").Status)

	trxRepo := &memory.TransactionRepo{Store: w.paymentStore}
	trxs, err := trxRepo.ListBySaga(ctx, result.SagaID)
	require.NoError(t, err)
	require.Len(t, trxs, 2, "one debit, one compensating refund")
}

func TestScenarioQueuedRequestDrainsWhenDriverAppears(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	result, err := w.customersvc.RequestRide(ctx, rideInput("rider@example.com"))
	require.NoError(t, err)
	assert.True(t, result.Queued, "no capacity is known yet")

	_, err = w.driversvc.RegisterDriver(ctx, "driver@example.com", "Dana", 40.71, -74.00, "new york")
	require.NoError(t, err)
	w.pump()
	require.Equal(t, 1, w.tracker.AvailableDrivers(ctx))

	require.NoError(t, w.customersvc.DrainQueue(ctx))
	w.pump()

	request := w.rideByID(result.RideID)
	assert.Equal(t, ride.StatusDriverAssigned, request.Status)
	assert.Equal(t, payment.DefaultBalanceCents-result.EstimatedPriceCents, w.balance("rider@example.com"))
	assert.Equal(t, driver.StatusBusy, w.driverByEmail("driver@example.com").Status)
}

func TestScenarioQueuedRequestExpiresUnserved(t *testing.T) {
	w := newWorld(t)
	ctx := context.Background()

	result, err := w.customersvc.RequestRide(ctx, rideInput("rider@example.com"))
	require.NoError(t, err)
	require.True(t, result.Queued)

	w.clock.Advance(testQueueTTL)
	require.NoError(t, w.customersvc.SweepExpired(ctx))
	w.pump()

	assert.Equal(t, ride.StatusExpired, w.rideByID(result.RideID).Status)
	assert.Equal(t, customer.StatusAvailable, w.customerByEmail("rider@example.com").Status)

	// the saga never started, so the ledger never saw this customer
	balanceRepo := &memory.BalanceRepo{Store: w.paymentStore}
	_, err = balanceRepo.GetByCustomer(ctx, "rider@example.com")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
