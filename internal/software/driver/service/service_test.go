package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ride-saga/internal/domain/driver"
	"ride-saga/internal/general/contracts"
	"ride-saga/internal/general/logger"
	"ride-saga/internal/general/memory"
	"ride-saga/internal/ports"
)

type driverFixture struct {
	service ports.DriverService
	drivers *memory.DriverRepo
	outbox  *memory.OutboxRepo
	clock   *memory.Clock
}

func newDriverFixture(t *testing.T) *driverFixture {
	t.Helper()

	store := memory.NewStore()
	drivers := &memory.DriverRepo{Store: store}
	records := &memory.OutboxRepo{Store: store}
	clock := memory.NewClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC))

	svc := NewDriverService(
		logger.New(contracts.ProducerDriverService),
		memory.UnitOfWork{},
		drivers,
		records,
		nil,
		clock,
	)
	return &driverFixture{service: svc, drivers: drivers, outbox: records, clock: clock}
}

// seedDriver registers a driver directly in the repository so the test
// controls position without triggering availability announcements.
func (fx *driverFixture) seedDriver(t *testing.T, email string, lat, lng float64, city string) *driver.Driver {
	t.Helper()
	drv, err := driver.NewDriver(email, "Driver "+email, lat, lng, city)
	require.NoError(t, err)
	require.NoError(t, fx.drivers.Create(context.Background(), drv))
	return drv
}

func driverRequest(sagaID, rideID string, pickupLat, pickupLng float64, city string) contracts.DriverRequest {
	return contracts.DriverRequest{
		RideID:              rideID,
		CustomerEmail:       "rider@example.com",
		Pickup:              contracts.GeoPoint{Lat: pickupLat, Lng: pickupLng, City: city},
		Destination:         contracts.GeoPoint{Lat: pickupLat + 0.1, Lng: pickupLng},
		EstimatedPriceCents: 2724,
		Envelope:            contracts.Envelope{SagaID: sagaID, Producer: contracts.ProducerCustomerService},
	}
}

func (fx *driverFixture) decodeResponses(t *testing.T) []contracts.DriverResponse {
	t.Helper()
	pending, err := fx.outbox.ListPending(context.Background(), 0)
	require.NoError(t, err)

	var responses []contracts.DriverResponse
	for _, record := range pending {
		if record.EventType != contracts.EventDriverResponse {
			continue
		}
		var response contracts.DriverResponse
		require.NoError(t, json.Unmarshal(record.Payload, &response))
		responses = append(responses, response)
	}
	return responses
}

func TestProcessDriverRequestClaimsNearestDriver(t *testing.T) {
	fx := newDriverFixture(t)
	ctx := context.Background()

	fx.seedDriver(t, "far@example.com", 40.80, -73.90, "new york")
	near := fx.seedDriver(t, "near@example.com", 40.71, -74.00, "new york")

	require.NoError(t, fx.service.ProcessDriverRequest(ctx, driverRequest("saga-1", "ride-1", 40.7128, -74.0060, "new york")))

	responses := fx.decodeResponses(t)
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Accepted)
	assert.Equal(t, near.Email, responses[0].DriverEmail)
	assert.Equal(t, "saga-1", responses[0].SagaID)

	claimed, err := fx.drivers.GetByEmail(ctx, near.Email)
	require.NoError(t, err)
	assert.Equal(t, driver.StatusBusy, claimed.Status)
	require.NotNil(t, claimed.CurrentRideID)
	assert.Equal(t, "ride-1", *claimed.CurrentRideID)

	other, err := fx.drivers.GetByEmail(ctx, "far@example.com")
	require.NoError(t, err)
	assert.Equal(t, driver.StatusAvailable, other.Status)
}

func TestProcessDriverRequestFallsBackOutsideCity(t *testing.T) {
	fx := newDriverFixture(t)
	ctx := context.Background()

	fx.seedDriver(t, "remote@example.com", 34.05, -118.24, "los angeles")

	require.NoError(t, fx.service.ProcessDriverRequest(ctx, driverRequest("saga-1", "ride-1", 40.7128, -74.0060, "new york")))

	responses := fx.decodeResponses(t)
	require.Len(t, responses, 1)
	assert.True(t, responses[0].Accepted)
	assert.Equal(t, "remote@example.com", responses[0].DriverEmail)
}

func TestProcessDriverRequestNoDriverAvailable(t *testing.T) {
	fx := newDriverFixture(t)
	ctx := context.Background()

	busy := fx.seedDriver(t, "busy@example.com", 40.71, -74.00, "new york")
	require.NoError(t, busy.Claim("other-ride"))
	require.NoError(t, fx.drivers.Update(ctx, busy))

	require.NoError(t, fx.service.ProcessDriverRequest(ctx, driverRequest("saga-1", "ride-1", 40.7128, -74.0060, "new york")))

	responses := fx.decodeResponses(t)
	require.Len(t, responses, 1)
	assert.False(t, responses[0].Accepted)
	assert.Equal(t, "no driver available", responses[0].RejectionReason)
	assert.Empty(t, responses[0].DriverEmail)
}

func TestProcessDriverRequestRedeliveryIsNoOp(t *testing.T) {
	fx := newDriverFixture(t)
	ctx := context.Background()

	fx.seedDriver(t, "a@example.com", 40.71, -74.00, "new york")
	fx.seedDriver(t, "b@example.com", 40.72, -74.00, "new york")

	msg := driverRequest("saga-1", "ride-1", 40.7128, -74.0060, "new york")
	require.NoError(t, fx.service.ProcessDriverRequest(ctx, msg))
	require.NoError(t, fx.service.ProcessDriverRequest(ctx, msg))

	count, err := fx.drivers.CountAvailable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a redelivered request must not claim a second driver")
	assert.Len(t, fx.decodeResponses(t), 1)
}

func TestConcurrentRequestsClaimDistinctDrivers(t *testing.T) {
	fx := newDriverFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		fx.seedDriver(t, fmt.Sprintf("driver-%d@example.com", i), 40.71+float64(i)*0.01, -74.00, "new york")
	}

	const rides = 4
	var wg sync.WaitGroup
	for i := 0; i < rides; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := driverRequest(fmt.Sprintf("saga-%d", i), fmt.Sprintf("ride-%d", i), 40.7128, -74.0060, "new york")
			assert.NoError(t, fx.service.ProcessDriverRequest(ctx, msg))
		}(i)
	}
	wg.Wait()

	responses := fx.decodeResponses(t)
	require.Len(t, responses, rides)

	claimedBy := make(map[string]string)
	var rejected int
	for _, response := range responses {
		if !response.Accepted {
			rejected++
			continue
		}
		prev, dup := claimedBy[response.DriverEmail]
		assert.False(t, dup, "driver %s claimed by both %s and %s", response.DriverEmail, prev, response.RideID)
		claimedBy[response.DriverEmail] = response.RideID
	}
	assert.Len(t, claimedBy, 2, "both drivers end up claimed")
	assert.Equal(t, rides-2, rejected)

	count, err := fx.drivers.CountAvailable(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestProcessCompletionReleasesAndAnnounces(t *testing.T) {
	fx := newDriverFixture(t)
	ctx := context.Background()

	drv := fx.seedDriver(t, "driver@example.com", 40.71, -74.00, "new york")
	require.NoError(t, drv.Claim("ride-1"))
	require.NoError(t, fx.drivers.Update(ctx, drv))

	msg := contracts.DriverCompletion{
		DriverEmail:   drv.Email,
		RideID:        "ride-1",
		CustomerEmail: "rider@example.com",
		Status:        "COMPLETED",
		Envelope:      contracts.Envelope{SagaID: "saga-1"},
	}
	require.NoError(t, fx.service.ProcessCompletion(ctx, msg))

	released, err := fx.drivers.GetByEmail(ctx, drv.Email)
	require.NoError(t, err)
	assert.Equal(t, driver.StatusAvailable, released.Status)
	assert.Nil(t, released.CurrentRideID)

	pending, err := fx.outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, contracts.EventDriverAvailability, pending[0].EventType)

	var announcement contracts.DriverAvailability
	require.NoError(t, json.Unmarshal(pending[0].Payload, &announcement))
	assert.Equal(t, 1, announcement.AvailableCount)

	// a redelivered completion releases nothing and announces nothing
	require.NoError(t, fx.service.ProcessCompletion(ctx, msg))
	pending, err = fx.outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestProcessCompletionUnknownDriverIsDropped(t *testing.T) {
	fx := newDriverFixture(t)

	msg := contracts.DriverCompletion{
		DriverEmail: "ghost@example.com",
		RideID:      "ride-1",
		Status:      "CANCELLED",
		Envelope:    contracts.Envelope{SagaID: "saga-1"},
	}
	require.NoError(t, fx.service.ProcessCompletion(context.Background(), msg))
}

func TestRegisterDriver(t *testing.T) {
	fx := newDriverFixture(t)
	ctx := context.Background()

	id, err := fx.service.RegisterDriver(ctx, "driver@example.com", "Dana", 40.71, -74.00, "new york")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	drv, err := fx.drivers.GetByEmail(ctx, "driver@example.com")
	require.NoError(t, err)
	assert.Equal(t, driver.StatusAvailable, drv.Status)
	assert.Equal(t, "new york", drv.City)

	pending, err := fx.outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, contracts.EventDriverAvailability, pending[0].EventType)

	// registering the same email again refreshes the position instead
	again, err := fx.service.RegisterDriver(ctx, "driver@example.com", "Dana", 41.00, -74.50, "newark")
	require.NoError(t, err)
	assert.Equal(t, id, again)

	drv, err = fx.drivers.GetByEmail(ctx, "driver@example.com")
	require.NoError(t, err)
	assert.Equal(t, "newark", drv.City)
	assert.Equal(t, 41.00, drv.Latitude)

	pending, err = fx.outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, pending, 1, "a refresh does not change capacity")
}

func TestAnnounceAvailability(t *testing.T) {
	fx := newDriverFixture(t)
	ctx := context.Background()

	fx.seedDriver(t, "a@example.com", 40.71, -74.00, "new york")
	fx.seedDriver(t, "b@example.com", 40.72, -74.00, "new york")

	require.NoError(t, fx.service.AnnounceAvailability(ctx, "startup-saga"))

	pending, err := fx.outbox.ListPending(ctx, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	var announcement contracts.DriverAvailability
	require.NoError(t, json.Unmarshal(pending[0].Payload, &announcement))
	assert.Equal(t, 2, announcement.AvailableCount)
	assert.Equal(t, "startup-saga", announcement.SagaID)
}
