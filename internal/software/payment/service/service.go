package service

import (
	"context"
	"errors"
	"time"

	"ride-saga/internal/general/logger"
	"ride-saga/internal/general/rabbitmq"
	"ride-saga/internal/ports"
)

// Version-conflict retry policy shared by debit and refund processing.
const (
	maxLedgerAttempts  = 3
	ledgerRetryBackoff = 100 * time.Millisecond
)

// paymentService encapsulates the ledger logic and dependencies.
type paymentService struct {
	logger      *logger.Logger
	uow         ports.UnitOfWork
	balanceRepo ports.BalanceRepository
	trxRepo     ports.TransactionRepository
	outboxRepo  ports.OutboxRepository
	rabbitmq    *rabbitmq.Client
	clock       ports.Clock
}

// NewPaymentService creates a new instance of the PaymentService with the provided dependencies.
func NewPaymentService(
	logger *logger.Logger,
	uow ports.UnitOfWork,
	balanceRepo ports.BalanceRepository,
	trxRepo ports.TransactionRepository,
	outboxRepo ports.OutboxRepository,
	rabbitmq *rabbitmq.Client,
	clock ports.Clock,
) ports.PaymentService {
	return &paymentService{
		logger:      logger,
		uow:         uow,
		balanceRepo: balanceRepo,
		trxRepo:     trxRepo,
		outboxRepo:  outboxRepo,
		rabbitmq:    rabbitmq,
		clock:       clock,
	}
}

// withLedgerRetry runs fn, retrying a bounded number of times when a
// version-checked write lost to a concurrent one. fn re-reads the balance
// on every attempt, so each retry operates on fresh state.
func (service *paymentService) withLedgerRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= maxLedgerAttempts; attempt++ {
		err = service.uow.WithinTx(ctx, fn)
		if !errors.Is(err, ports.ErrVersionConflict) {
			return err
		}

		service.logger.Info(ctx, "ledger_retry", "Ledger write lost a version race, retrying", map[string]any{
			"attempt": attempt,
		})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ledgerRetryBackoff):
		}
	}
	return err
}
