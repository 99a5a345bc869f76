package service

import (
	"ride-saga/internal/general/logger"
	"ride-saga/internal/general/rabbitmq"
	"ride-saga/internal/ports"
)

// driverService encapsulates the driver pool logic and dependencies.
type driverService struct {
	logger     *logger.Logger
	uow        ports.UnitOfWork
	driverRepo ports.DriverRepository
	outboxRepo ports.OutboxRepository
	rabbitmq   *rabbitmq.Client
	clock      ports.Clock
}

// NewDriverService creates a new instance of the DriverService with the provided dependencies.
func NewDriverService(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	driverRepo ports.DriverRepository,
	outboxRepo ports.OutboxRepository,
	rabbitmq *rabbitmq.Client,
	clock ports.Clock,
) ports.DriverService {
	return &driverService{
		logger:     logger,
		uow:        uow,
		driverRepo: driverRepo,
		outboxRepo: outboxRepo,
		rabbitmq:   rabbitmq,
		clock:      clock,
	}
}
