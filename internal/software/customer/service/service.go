package service

import (
	"errors"
	"time"

	"ride-saga/internal/general/logger"
	"ride-saga/internal/general/rabbitmq"
	"ride-saga/internal/ports"
)

// drainBatchSize caps how many queued entries one drain cycle inspects.
const drainBatchSize = 50

var (
	// ErrCustomerBusy is returned when a customer with an active ride
	// requests another one.
	ErrCustomerBusy = errors.New("customer already has an active ride")
	// ErrNoActiveRide is returned by lifecycle operations when the customer
	// has no ride in progress.
	ErrNoActiveRide = errors.New("customer has no active ride")
	// ErrNotCancellable is returned when the ride has progressed past the
	// point where the customer may cancel.
	ErrNotCancellable = errors.New("ride can no longer be cancelled")
)

// customerService orchestrates the ride saga and the admission queue.
type customerService struct {
	logger       *logger.Logger
	uow          ports.UnitOfWork
	rideRepo     ports.RideRepository
	customerRepo ports.CustomerRepository
	queueRepo    ports.QueueRepository
	outboxRepo   ports.OutboxRepository
	capacity     ports.CapacityProbe
	rabbitmq     *rabbitmq.Client
	clock        ports.Clock

	queueTTL      time.Duration
	drainInterval time.Duration
	sweepInterval time.Duration

	// drainSignal wakes the drain loop ahead of its ticker, e.g. when an
	// availability announcement arrives.
	drainSignal chan struct{}
}

// NewCustomerService creates a new instance of the CustomerService with the provided dependencies.
func NewCustomerService(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	rideRepo ports.RideRepository,
	customerRepo ports.CustomerRepository,
	queueRepo ports.QueueRepository,
	outboxRepo ports.OutboxRepository,
	capacity ports.CapacityProbe,
	rabbitmq *rabbitmq.Client,
	clock ports.Clock,
	queueTTL time.Duration,
	drainInterval time.Duration,
	sweepInterval time.Duration,
) ports.CustomerService {
	return &customerService{
		logger:        logger,
		uow:           uow,
		rideRepo:      rideRepo,
		customerRepo:  customerRepo,
		queueRepo:     queueRepo,
		outboxRepo:    outboxRepo,
		capacity:      capacity,
		rabbitmq:      rabbitmq,
		clock:         clock,
		queueTTL:      queueTTL,
		drainInterval: drainInterval,
		sweepInterval: sweepInterval,
		drainSignal:   make(chan struct{}, 1),
	}
}

// signalDrain requests an out-of-band drain cycle without blocking.
func (service *customerService) signalDrain() {
	select {
	case service.drainSignal <- struct{}{}:
	default:
		// a drain is already pending
	}
}
