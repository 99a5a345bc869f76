package main

import (
	"context"

	"ride-saga/internal/general/config"
	"ride-saga/internal/general/contracts"
	"ride-saga/internal/general/logger"
	"ride-saga/internal/general/postgres"
	"ride-saga/internal/general/rabbitmq"
	"ride-saga/internal/outbox"
	"ride-saga/internal/ports"
	"ride-saga/internal/software/customer/service"
)

// run wires the customer service and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logger.New(contracts.ProducerCustomerService)
	ctx = logger.WithSagaID(ctx, "startup")

	cfg, err := config.LoadFromFile("config/config.yaml")
	if err != nil {
		log.Error(ctx, "config_load_failed", "Failed to load configuration", err, nil)
		return err
	}

	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "db_connection_failed", "Failed to initialize Postgres pool", err, nil)
		return err
	}
	defer pool.Close()

	if err := postgres.EnsureSchema(ctx, pool, contracts.ProducerCustomerService); err != nil {
		log.Error(ctx, "schema_failed", "Failed to ensure database schema", err, nil)
		return err
	}

	rmq, err := rabbitmq.ConnectRabbitMQ(ctx, cfg, log)
	if err != nil {
		log.Error(ctx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err, nil)
		return err
	}
	defer rmq.Close()

	pub := rabbitmq.NewMQPublisher(rmq)
	clock := ports.SystemClock{}

	uow := postgres.NewUnitOfWork(pool)
	rideRepo := postgres.NewRideRepo()
	customerRepo := postgres.NewCustomerRepo()
	queueRepo := postgres.NewQueueRepo()
	outboxRepo := postgres.NewOutboxRepo(postgres.TableCustomerOutbox)

	capacity := service.NewAvailabilityTracker()

	svc := service.NewCustomerService(
		log, uow, rideRepo, customerRepo, queueRepo, outboxRepo,
		capacity, rmq, clock,
		cfg.QueueEntryTTL(), cfg.QueueDrainInterval(), cfg.ExpirySweepInterval(),
	)
	svc.RunBackgroundWorkers(ctx)

	relay := outbox.NewRelay(uow, outboxRepo, pub, clock, log, cfg.OutboxRelayInterval())
	go relay.Run(ctx)

	log.Info(ctx, "service_started", "Customer service started", map[string]any{
		"queue_ttl": cfg.QueueEntryTTL().String(),
	})

	<-ctx.Done()
	log.Info(ctx, "service_stopped", "Customer service shutting down", nil)
	return nil
}
