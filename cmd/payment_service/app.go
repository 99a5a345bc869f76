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
	"ride-saga/internal/software/payment/service"
)

// run wires the payment service and blocks until ctx is cancelled.
func run(ctx context.Context) error {
	log := logger.New(contracts.ProducerPaymentService)
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

	if err := postgres.EnsureSchema(ctx, pool, contracts.ProducerPaymentService); err != nil {
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
	balanceRepo := postgres.NewBalanceRepo()
	trxRepo := postgres.NewTransactionRepo()
	outboxRepo := postgres.NewOutboxRepo(postgres.TablePaymentOutbox)

	svc := service.NewPaymentService(log, uow, balanceRepo, trxRepo, outboxRepo, rmq, clock)
	svc.RunBackgroundConsumers(ctx)

	relay := outbox.NewRelay(uow, outboxRepo, pub, clock, log, cfg.OutboxRelayInterval())
	go relay.Run(ctx)

	log.Info(ctx, "service_started", "Payment service started", nil)

	<-ctx.Done()
	log.Info(ctx, "service_stopped", "Payment service shutting down", nil)
	return nil
}
