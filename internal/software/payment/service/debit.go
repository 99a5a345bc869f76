package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ride-saga/internal/domain/outbox"
	"ride-saga/internal/domain/payment"
	"ride-saga/internal/general/contracts"
	"ride-saga/internal/general/logger"
	"ride-saga/internal/ports"
)

// ProcessPaymentRequest debits the customer's balance for a ride.
//
// Exactly one transaction record is written per processed request, including
// refused debits. The balance write, the transaction record, and the
// PaymentResponse outbox record all commit in one local transaction, so a
// crash either leaves no trace of the attempt or schedules the response.
func (service *paymentService) ProcessPaymentRequest(ctx context.Context, msg contracts.PaymentRequest) error {
	ctx = logger.WithSagaID(ctx, msg.SagaID)
	ctx = logger.WithRideID(ctx, msg.RideID)

	if msg.AmountCents <= 0 {
		return fmt.Errorf("payment request for ride %s: non-positive amount %d", msg.RideID, msg.AmountCents)
	}

	return service.withLedgerRetry(ctx, func(txCtx context.Context) error {
		// redelivery guard: one debit attempt per saga
		if done, err := service.alreadyProcessed(txCtx, msg.SagaID, payment.TypeDebit); err != nil {
			return err
		} else if done {
			service.logger.Info(txCtx, "debit_duplicate_skipped", "Debit for this saga was already processed", nil)
			return nil
		}

		balance, err := service.findOrCreateBalance(txCtx, msg.CustomerEmail)
		if err != nil {
			return err
		}

		if !balance.Sufficient(msg.AmountCents) {
			return service.refuseDebit(txCtx, msg, balance.AmountCents)
		}

		if err := balance.Deduct(msg.AmountCents); err != nil {
			return err
		}
		if err := service.balanceRepo.Update(txCtx, balance); err != nil {
			return err
		}

		trx := payment.NewTransaction(
			msg.CustomerEmail, msg.RideID, msg.SagaID, msg.AmountCents,
			payment.TransactionCompleted, payment.TypeDebit, msg.Description,
		)
		if err := service.trxRepo.Append(txCtx, trx); err != nil {
			return err
		}

		if err := service.respond(txCtx, msg, contracts.PaymentCompleted, ""); err != nil {
			return err
		}

		service.logger.Info(txCtx, "debit_completed", "Debit completed", map[string]any{
			"customer":      msg.CustomerEmail,
			"amount_cents":  msg.AmountCents,
			"balance_cents": balance.AmountCents,
		})
		return nil
	})
}

// refuseDebit records an insufficient-funds refusal without touching the balance.
func (service *paymentService) refuseDebit(ctx context.Context, msg contracts.PaymentRequest, balanceCents int64) error {
	trx := payment.NewTransaction(
		msg.CustomerEmail, msg.RideID, msg.SagaID, msg.AmountCents,
		payment.TransactionFailed, payment.TypeDebit, "insufficient balance",
	)
	if err := service.trxRepo.Append(ctx, trx); err != nil {
		return err
	}

	if err := service.respond(ctx, msg, contracts.PaymentFailed, "insufficient balance"); err != nil {
		return err
	}

	service.logger.Info(ctx, "debit_refused", "Debit refused: insufficient balance", map[string]any{
		"customer":      msg.CustomerEmail,
		"amount_cents":  msg.AmountCents,
		"balance_cents": balanceCents,
	})
	return nil
}

// findOrCreateBalance loads the customer's balance, creating it with the
// default starting amount the first time the ledger sees this customer.
func (service *paymentService) findOrCreateBalance(ctx context.Context, customerEmail string) (*payment.Balance, error) {
	balance, err := service.balanceRepo.GetByCustomer(ctx, customerEmail)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, ports.ErrNotFound) {
		return nil, err
	}

	balance, err = payment.NewBalance(customerEmail)
	if err != nil {
		return nil, err
	}
	if err := service.balanceRepo.Create(ctx, balance); err != nil {
		return nil, err
	}

	service.logger.Info(ctx, "balance_created", "Created balance with default amount", map[string]any{
		"customer":     customerEmail,
		"amount_cents": balance.AmountCents,
	})
	return balance, nil
}

// alreadyProcessed reports whether a ledger record of the given type exists
// for this saga. Under at-least-once delivery the same request may arrive
// more than once; the first committed attempt wins.
func (service *paymentService) alreadyProcessed(ctx context.Context, sagaID string, txType payment.TransactionType) (bool, error) {
	records, err := service.trxRepo.ListBySaga(ctx, sagaID)
	if err != nil {
		return false, err
	}
	for _, trx := range records {
		if trx.Type == txType {
			return true, nil
		}
	}
	return false, nil
}

// respond schedules a PaymentResponse in the outbox; it commits with the
// ledger writes of the same transaction.
func (service *paymentService) respond(ctx context.Context, msg contracts.PaymentRequest, status contracts.PaymentStatus, failureReason string) error {
	response := contracts.PaymentResponse{
		RideID:        msg.RideID,
		CustomerEmail: msg.CustomerEmail,
		AmountCents:   msg.AmountCents,
		Status:        status,
		FailureReason: failureReason,
		Envelope: contracts.Envelope{
			SagaID:   msg.SagaID,
			Producer: contracts.ProducerPaymentService,
			SentAt:   service.clock.Now(),
		},
	}

	body, err := json.Marshal(response)
	if err != nil {
		return err
	}

	record, err := outbox.NewRecord(msg.SagaID, contracts.EventPaymentResponse, body)
	if err != nil {
		return err
	}
	return service.outboxRepo.Append(ctx, record)
}
