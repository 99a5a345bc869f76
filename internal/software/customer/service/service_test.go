package service

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-saga/internal/domain/customer"
	"ride-saga/internal/domain/queue"
	"ride-saga/internal/domain/ride"
	"ride-saga/internal/general/contracts"
	"ride-saga/internal/general/logger"
	"ride-saga/internal/general/memory"
	"ride-saga/internal/ports"
)

const testQueueTTL = 10 * time.Minute

type customerFixture struct {
	service   *customerService
	rides     *memory.RideRepo
	customers *memory.CustomerRepo
	entries   *memory.QueueRepo
	outbox    *memory.OutboxRepo
	tracker   *AvailabilityTracker
	clock     *memory.Clock
}

func newCustomerFixture(t *testing.T) *customerFixture {
	t.Helper()

	store := memory.NewStore()
	rides := &memory.RideRepo{Store: store}
	customers := &memory.CustomerRepo{Store: store}
	entries := &memory.QueueRepo{Store: store}
	records := &memory.OutboxRepo{Store: store}
	tracker := NewAvailabilityTracker()
	clock := memory.NewClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	svc := NewCustomerService(
		logger.New(contracts.ProducerCustomerService),
		memory.UnitOfWork{},
		rides,
		customers,
		entries,
		records,
		tracker,
		nil,
		clock,
		testQueueTTL,
		time.Second,
		time.Second,
	).(*customerService)

	return &customerFixture{
		service:   svc,
		rides:     rides,
		customers: customers,
		entries:   entries,
		outbox:    records,
		tracker:   tracker,
		clock:     clock,
	}
}

func rideInput(email string) ports.RequestRideInput {
	return ports.RequestRideInput{
		CustomerEmail:      email,
		CustomerName:       "Rider",
		PickupLatitude:     40.7128,
		PickupLongitude:    -74.0060,
		PickupAddress:      "1 Liberty Plaza",
		PickupCity:         "new york",
		DestLatitude:       40.7484,
		DestLongitude:      -73.9857,
		DestinationAddress: "350 5th Ave",
		DestinationCity:    "new york",
	}
}

// payloadsOfType returns the pending outbox payloads of one event type, in
// created_at order.
func (fx *customerFixture) payloadsOfType(t *testing.T, eventType string) [][]byte {
	t.Helper()
	pending, err := fx.outbox.ListPending(context.Background(), 0)
	require.NoError(t, err)

	var payloads [][]byte
	for _, record := range pending {
		if record.EventType == eventType {
			payloads = append(payloads, record.Payload)
		}
	}
	return payloads
}

func (fx *customerFixture) paymentResponse(result ports.RequestRideResult, status contracts.PaymentStatus) contracts.PaymentResponse {
	return contracts.PaymentResponse{
		RideID:        result.RideID,
		CustomerEmail: "rider@example.com",
		AmountCents:   result.EstimatedPriceCents,
		Status:        status,
		Envelope:      contracts.Envelope{SagaID: result.SagaID, Producer: contracts.ProducerPaymentService},
	}
}

func (fx *customerFixture) driverResponse(result ports.RequestRideResult, accepted bool) contracts.DriverResponse {
	response := contracts.DriverResponse{
		RideID:   result.RideID,
		Accepted: accepted,
		Envelope: contracts.Envelope{SagaID: result.SagaID, Producer: contracts.ProducerDriverService},
	}
	if accepted {
		response.DriverEmail = "driver@example.com"
	} else {
		response.RejectionReason = "no driver available"
	}
	return response
}

// advanceToAssigned walks a fresh request through payment and driver claim.
func (fx *customerFixture) advanceToAssigned(t *testing.T, email string) ports.RequestRideResult {
	t.Helper()
	ctx := context.Background()
	fx.tracker.SetAvailableDrivers(1)

	result, err := fx.service.RequestRide(ctx, rideInput(email))
	require.NoError(t, err)
	require.NoError(t, fx.service.handlePaymentResponse(ctx, fx.paymentResponse(result, contracts.PaymentCompleted)))
	require.NoError(t, fx.service.handleDriverResponse(ctx, fx.driverResponse(result, true)))
	return result
}

// ----- intake -----

func TestRequestRideStartsSagaWhenCapacityKnown(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()
	fx.tracker.SetAvailableDrivers(2)

	result, err := fx.service.RequestRide(ctx, rideInput("rider@example.com"))
	require.NoError(t, err)
	assert.False(t, result.Queued)
	assert.Equal(t, ride.StatusPaymentProcessing.String(), result.Status)
	assert.NotEmpty(t, result.SagaID)
	assert.Greater(t, result.EstimatedPriceCents, int64(500), "price covers base fare plus distance")

	payloads := fx.payloadsOfType(t, contracts.EventPaymentRequest)
	require.Len(t, payloads, 1)

	var msg contracts.PaymentRequest
	require.NoError(t, json.Unmarshal(payloads[0], &msg))
	assert.Equal(t, result.RideID, msg.RideID)
	assert.Equal(t, result.EstimatedPriceCents, msg.AmountCents)
	assert.Equal(t, result.SagaID, msg.SagaID)

	cust, err := fx.customers.GetByEmail(ctx, "rider@example.com")
	require.NoError(t, err)
	assert.Equal(t, customer.StatusRequesting, cust.Status)
}

func TestRequestRideQueuesWhenNoCapacity(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()

	result, err := fx.service.RequestRide(ctx, rideInput("rider@example.com"))
	require.NoError(t, err)
	assert.True(t, result.Queued)
	assert.Equal(t, ride.StatusDriverSearching.String(), result.Status)

	// nothing leaves the service while the request waits
	pending, err := fx.outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)

	entry, err := fx.entries.GetOpenForRide(ctx, result.RideID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusQueued, entry.Status)
	assert.Equal(t, result.SagaID, entry.SagaID)
	assert.Equal(t, fx.clock.Now(), entry.QueuedAt)
	assert.Equal(t, fx.clock.Now().Add(testQueueTTL), entry.ExpiresAt)
	assert.NotEmpty(t, entry.PaymentRequestPayload)
}

func TestRequestRideRejectsBusyCustomer(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()
	fx.tracker.SetAvailableDrivers(1)

	_, err := fx.service.RequestRide(ctx, rideInput("rider@example.com"))
	require.NoError(t, err)

	_, err = fx.service.RequestRide(ctx, rideInput("rider@example.com"))
	assert.ErrorIs(t, err, ErrCustomerBusy)
}

// ----- payment response -----

func TestHandlePaymentResponseCompletedSchedulesDriverRequest(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()
	fx.tracker.SetAvailableDrivers(1)

	result, err := fx.service.RequestRide(ctx, rideInput("rider@example.com"))
	require.NoError(t, err)

	require.NoError(t, fx.service.handlePaymentResponse(ctx, fx.paymentResponse(result, contracts.PaymentCompleted)))

	request, err := fx.rides.GetByID(ctx, result.RideID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusDriverSearching, request.Status)
	assert.NotNil(t, request.PaidAt)

	payloads := fx.payloadsOfType(t, contracts.EventDriverRequest)
	require.Len(t, payloads, 1)

	var msg contracts.DriverRequest
	require.NoError(t, json.Unmarshal(payloads[0], &msg))
	assert.Equal(t, result.RideID, msg.RideID)
	assert.Equal(t, "new york", msg.Pickup.City)

	// a redelivered response finds the ride past PAYMENT_PROCESSING
	require.NoError(t, fx.service.handlePaymentResponse(ctx, fx.paymentResponse(result, contracts.PaymentCompleted)))
	assert.Len(t, fx.payloadsOfType(t, contracts.EventDriverRequest), 1)
}

func TestHandlePaymentResponseFailedTerminatesWithoutRefund(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()
	fx.tracker.SetAvailableDrivers(1)

	result, err := fx.service.RequestRide(ctx, rideInput("rider@example.com"))
	require.NoError(t, err)

	response := fx.paymentResponse(result, contracts.PaymentFailed)
	response.FailureReason = "insufficient balance"
	require.NoError(t, fx.service.handlePaymentResponse(ctx, response))

	request, err := fx.rides.GetByID(ctx, result.RideID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusPaymentFailed, request.Status)

	// no funds moved, so nothing to compensate
	assert.Empty(t, fx.payloadsOfType(t, contracts.EventPaymentRefund))

	cust, err := fx.customers.GetByEmail(ctx, "rider@example.com")
	require.NoError(t, err)
	assert.Equal(t, customer.StatusAvailable, cust.Status)
}

func TestHandlePaymentResponseUnknownRideIsDropped(t *testing.T) {
	fx := newCustomerFixture(t)

	response := contracts.PaymentResponse{
		RideID:   "no-such-ride",
		Status:   contracts.PaymentCompleted,
		Envelope: contracts.Envelope{SagaID: "saga-1"},
	}
	require.NoError(t, fx.service.handlePaymentResponse(context.Background(), response))
}

// ----- driver response -----

func TestHandleDriverResponseAcceptedAssignsDriver(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()

	result := fx.advanceToAssigned(t, "rider@example.com")

	request, err := fx.rides.GetByID(ctx, result.RideID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusDriverAssigned, request.Status)
	require.NotNil(t, request.DriverEmail)
	assert.Equal(t, "driver@example.com", *request.DriverEmail)

	cust, err := fx.customers.GetByEmail(ctx, "rider@example.com")
	require.NoError(t, err)
	assert.Equal(t, customer.StatusOnRide, cust.Status)

	// a redelivered acceptance finds the ride past DRIVER_SEARCHING
	require.NoError(t, fx.service.handleDriverResponse(ctx, fx.driverResponse(result, true)))
	request, err = fx.rides.GetByID(ctx, result.RideID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusDriverAssigned, request.Status)
}

func TestHandleDriverResponseRejectedRefundsExactAmount(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()
	fx.tracker.SetAvailableDrivers(1)

	result, err := fx.service.RequestRide(ctx, rideInput("rider@example.com"))
	require.NoError(t, err)
	require.NoError(t, fx.service.handlePaymentResponse(ctx, fx.paymentResponse(result, contracts.PaymentCompleted)))

	require.NoError(t, fx.service.handleDriverResponse(ctx, fx.driverResponse(result, false)))

	request, err := fx.rides.GetByID(ctx, result.RideID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusDriverUnavailable, request.Status)

	payloads := fx.payloadsOfType(t, contracts.EventPaymentRefund)
	require.Len(t, payloads, 1)

	var refund contracts.PaymentRefund
	require.NoError(t, json.Unmarshal(payloads[0], &refund))
	assert.Equal(t, result.EstimatedPriceCents, refund.AmountCents, "the refund matches the debit to the cent")
	assert.Equal(t, result.SagaID, refund.SagaID)

	cust, err := fx.customers.GetByEmail(ctx, "rider@example.com")
	require.NoError(t, err)
	assert.Equal(t, customer.StatusAvailable, cust.Status)
}

// ----- lifecycle -----

func TestCancelRideBeforePaymentCompletes(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()
	fx.tracker.SetAvailableDrivers(1)

	result, err := fx.service.RequestRide(ctx, rideInput("rider@example.com"))
	require.NoError(t, err)

	status, err := fx.service.CancelRide(ctx, "rider@example.com")
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCancelled.String(), status.Status)

	// the debit never completed, so there is nothing to refund
	assert.Empty(t, fx.payloadsOfType(t, contracts.EventPaymentRefund))
	assert.Empty(t, fx.payloadsOfType(t, contracts.EventDriverCompletion))

	// the customer is free and the late payment response is stale
	cust, err := fx.customers.GetByEmail(ctx, "rider@example.com")
	require.NoError(t, err)
	assert.Equal(t, customer.StatusAvailable, cust.Status)

	require.NoError(t, fx.service.handlePaymentResponse(ctx, fx.paymentResponse(result, contracts.PaymentCompleted)))
	assert.Empty(t, fx.payloadsOfType(t, contracts.EventDriverRequest))
}

func TestCancelRideAfterAssignmentRefundsAndReleasesDriver(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()

	fx.advanceToAssigned(t, "rider@example.com")

	status, err := fx.service.CancelRide(ctx, "rider@example.com")
	require.NoError(t, err)
	assert.Equal(t, ride.StatusCancelled.String(), status.Status)

	refunds := fx.payloadsOfType(t, contracts.EventPaymentRefund)
	require.Len(t, refunds, 1)

	completions := fx.payloadsOfType(t, contracts.EventDriverCompletion)
	require.Len(t, completions, 1)

	var completion contracts.DriverCompletion
	require.NoError(t, json.Unmarshal(completions[0], &completion))
	assert.Equal(t, "driver@example.com", completion.DriverEmail)
	assert.Equal(t, "CANCELLED", completion.Status)
}

func TestCancelRideAfterStartIsRejected(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()

	fx.advanceToAssigned(t, "rider@example.com")
	_, err := fx.service.StartRide(ctx, "rider@example.com")
	require.NoError(t, err)

	_, err = fx.service.CancelRide(ctx, "rider@example.com")
	assert.ErrorIs(t, err, ErrNotCancellable)
}

func TestCancelRideWithoutActiveRide(t *testing.T) {
	fx := newCustomerFixture(t)

	_, err := fx.service.CancelRide(context.Background(), "rider@example.com")
	assert.ErrorIs(t, err, ErrNoActiveRide)
}

func TestStartAndCompleteRide(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()

	result := fx.advanceToAssigned(t, "rider@example.com")

	started, err := fx.service.StartRide(ctx, "rider@example.com")
	require.NoError(t, err)
	assert.Equal(t, ride.StatusRideStarted.String(), started.Status)

	completed, err := fx.service.CompleteRide(ctx, "rider@example.com")
	require.NoError(t, err)
	assert.Equal(t, ride.StatusRideCompleted.String(), completed.Status)
	require.NotNil(t, completed.FinalPriceCents)
	assert.Equal(t, result.EstimatedPriceCents, *completed.FinalPriceCents)
	assert.Equal(t, "driver@example.com", completed.DriverEmail)

	completions := fx.payloadsOfType(t, contracts.EventDriverCompletion)
	require.Len(t, completions, 1)

	var completion contracts.DriverCompletion
	require.NoError(t, json.Unmarshal(completions[0], &completion))
	assert.Equal(t, "COMPLETED", completion.Status)

	cust, err := fx.customers.GetByEmail(ctx, "rider@example.com")
	require.NoError(t, err)
	assert.Equal(t, customer.StatusAvailable, cust.Status)

	_, err = fx.service.RideStatus(ctx, "rider@example.com")
	assert.ErrorIs(t, err, ErrNoActiveRide)
}

func TestStartRideRequiresAssignedDriver(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()
	fx.tracker.SetAvailableDrivers(1)

	_, err := fx.service.RequestRide(ctx, rideInput("rider@example.com"))
	require.NoError(t, err)

	_, err = fx.service.StartRide(ctx, "rider@example.com")
	assert.Error(t, err)
}

// ----- admission queue -----

func (fx *customerFixture) enqueueRides(t *testing.T, count int) []ports.RequestRideResult {
	t.Helper()
	fx.tracker.SetAvailableDrivers(0)

	results := make([]ports.RequestRideResult, 0, count)
	for i := 0; i < count; i++ {
		result, err := fx.service.RequestRide(context.Background(), rideInput(fmt.Sprintf("rider-%d@example.com", i)))
		require.NoError(t, err)
		require.True(t, result.Queued)
		results = append(results, result)
		// distinct queued_at per entry keeps the FIFO order observable
		fx.clock.Advance(time.Second)
	}
	return results
}

func TestDrainQueueStartsOldestFirstUpToCapacity(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()

	results := fx.enqueueRides(t, 3)

	fx.tracker.SetAvailableDrivers(2)
	require.NoError(t, fx.service.DrainQueue(ctx))

	payloads := fx.payloadsOfType(t, contracts.EventPaymentRequest)
	require.Len(t, payloads, 2, "the cycle starts at most capacity sagas")

	for i, payload := range payloads {
		var msg contracts.PaymentRequest
		require.NoError(t, json.Unmarshal(payload, &msg))
		assert.Equal(t, results[i].RideID, msg.RideID, "entries drain in queued_at order")
	}

	for i, result := range results {
		request, err := fx.rides.GetByID(ctx, result.RideID)
		require.NoError(t, err)
		if i < 2 {
			assert.Equal(t, ride.StatusPaymentProcessing, request.Status)
			_, err := fx.entries.GetOpenForRide(ctx, result.RideID)
			assert.ErrorIs(t, err, ports.ErrNotFound, "drained entries are closed")
		} else {
			assert.Equal(t, ride.StatusDriverSearching, request.Status)
			entry, err := fx.entries.GetOpenForRide(ctx, result.RideID)
			require.NoError(t, err)
			assert.Equal(t, queue.StatusQueued, entry.Status)
		}
	}
}

func TestDrainQueueNoCapacityIsANoOp(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()

	fx.enqueueRides(t, 1)
	require.NoError(t, fx.service.DrainQueue(ctx))

	pending, err := fx.outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDrainQueueSkipsEntriesAnotherCycleClaimed(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()

	results := fx.enqueueRides(t, 1)

	// simulate an overlapping cycle that moved the entry to PROCESSING
	entry, err := fx.entries.GetOpenForRide(ctx, results[0].RideID)
	require.NoError(t, err)
	require.NoError(t, entry.Claim())
	require.NoError(t, fx.entries.UpdateStatus(ctx, entry))

	fx.tracker.SetAvailableDrivers(1)
	require.NoError(t, fx.service.DrainQueue(ctx))

	assert.Empty(t, fx.payloadsOfType(t, contracts.EventPaymentRequest))
}

func TestDrainQueueReissuesFrozenPayload(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()

	results := fx.enqueueRides(t, 1)
	entry, err := fx.entries.GetOpenForRide(ctx, results[0].RideID)
	require.NoError(t, err)

	fx.tracker.SetAvailableDrivers(1)
	require.NoError(t, fx.service.DrainQueue(ctx))

	payloads := fx.payloadsOfType(t, contracts.EventPaymentRequest)
	require.Len(t, payloads, 1)
	assert.Equal(t, entry.PaymentRequestPayload, payloads[0], "the enqueue-time payload is re-issued verbatim")
}

func TestDrainQueueCancelsEntryForClosedRide(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()

	results := fx.enqueueRides(t, 1)

	// the customer cancels while the request waits, but the entry close is
	// lost to a race; the drain must notice the terminal ride
	request, err := fx.rides.GetByID(ctx, results[0].RideID)
	require.NoError(t, err)
	require.NoError(t, request.Fail(ride.StatusCancelled))
	require.NoError(t, fx.rides.Update(ctx, request))

	fx.tracker.SetAvailableDrivers(1)
	require.NoError(t, fx.service.DrainQueue(ctx))

	assert.Empty(t, fx.payloadsOfType(t, contracts.EventPaymentRequest))
	_, err = fx.entries.GetOpenForRide(ctx, results[0].RideID)
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

// ----- expiry -----

func TestSweepExpiredAtExactDeadline(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()

	results := fx.enqueueRides(t, 1)

	// enqueueRides advanced the clock one second past queued_at already
	fx.clock.Advance(testQueueTTL - time.Second)
	require.NoError(t, fx.service.SweepExpired(ctx))

	request, err := fx.rides.GetByID(ctx, results[0].RideID)
	require.NoError(t, err)
	assert.Equal(t, ride.StatusExpired, request.Status, "an entry expiring exactly now is expired")

	// no debit ever ran for a queued request, so no refund is scheduled
	assert.Empty(t, fx.payloadsOfType(t, contracts.EventPaymentRefund))

	cust, err := fx.customers.GetByEmail(ctx, "rider-0@example.com")
	require.NoError(t, err)
	assert.Equal(t, customer.StatusAvailable, cust.Status)

	// freed again, the customer can request a new ride
	fx.tracker.SetAvailableDrivers(1)
	_, err = fx.service.RequestRide(ctx, rideInput("rider-0@example.com"))
	require.NoError(t, err)
}

func TestSweepExpiredLeavesFreshEntriesAlone(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()

	results := fx.enqueueRides(t, 1)
	fx.clock.Advance(testQueueTTL - 2*time.Second)
	require.NoError(t, fx.service.SweepExpired(ctx))

	entry, err := fx.entries.GetOpenForRide(ctx, results[0].RideID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusQueued, entry.Status)
}

func TestDrainQueueExpiresStaleEntriesInPassing(t *testing.T) {
	fx := newCustomerFixture(t)
	ctx := context.Background()

	results := fx.enqueueRides(t, 2)
	fx.clock.Advance(testQueueTTL)

	// both entries are past their deadline when capacity finally shows up
	fx.tracker.SetAvailableDrivers(2)
	require.NoError(t, fx.service.DrainQueue(ctx))

	assert.Empty(t, fx.payloadsOfType(t, contracts.EventPaymentRequest))
	for _, result := range results {
		request, err := fx.rides.GetByID(ctx, result.RideID)
		require.NoError(t, err)
		assert.Equal(t, ride.StatusExpired, request.Status)
	}
}

// ----- capacity tracker -----

func TestAvailabilityTracker(t *testing.T) {
	tracker := NewAvailabilityTracker()
	ctx := context.Background()

	assert.Zero(t, tracker.AvailableDrivers(ctx), "zero capacity until the first announcement")

	tracker.SetAvailableDrivers(3)
	assert.Equal(t, 3, tracker.AvailableDrivers(ctx))

	tracker.SetAvailableDrivers(-1)
	assert.Zero(t, tracker.AvailableDrivers(ctx))
}
