package service

import (
	"context"
	"errors"
	"fmt"

	"ride-saga/internal/domain/payment"
	"ride-saga/internal/general/contracts"
	"ride-saga/internal/general/logger"
	"ride-saga/internal/ports"
)

// ProcessRefund credits a previously debited amount back to the customer.
// The credited amount equals the refund request's amount exactly, so a
// debit followed by a refund restores the balance to the cent.
func (service *paymentService) ProcessRefund(ctx context.Context, msg contracts.PaymentRefund) error {
	ctx = logger.WithSagaID(ctx, msg.SagaID)
	ctx = logger.WithRideID(ctx, msg.RideID)

	if msg.AmountCents <= 0 {
		return fmt.Errorf("refund for ride %s: non-positive amount %d", msg.RideID, msg.AmountCents)
	}

	return service.withLedgerRetry(ctx, func(txCtx context.Context) error {
		// redelivery guard: one refund per saga
		if done, err := service.alreadyProcessed(txCtx, msg.SagaID, payment.TypeRefund); err != nil {
			return err
		} else if done {
			service.logger.Info(txCtx, "refund_duplicate_skipped", "Refund for this saga was already processed", nil)
			return nil
		}

		balance, err := service.balanceRepo.GetByCustomer(txCtx, msg.CustomerEmail)
		if err != nil {
			// a refund without a prior debit should not happen; surface it
			if errors.Is(err, ports.ErrNotFound) {
				return fmt.Errorf("refund for unknown customer %s: %w", msg.CustomerEmail, err)
			}
			return err
		}

		if err := balance.Add(msg.AmountCents); err != nil {
			return err
		}
		if err := service.balanceRepo.Update(txCtx, balance); err != nil {
			return err
		}

		trx := payment.NewTransaction(
			msg.CustomerEmail, msg.RideID, msg.SagaID, msg.AmountCents,
			payment.TransactionCompleted, payment.TypeRefund, msg.Reason,
		)
		if err := service.trxRepo.Append(txCtx, trx); err != nil {
			return err
		}

		service.logger.Info(txCtx, "refund_completed", "Refund completed", map[string]any{
			"customer":      msg.CustomerEmail,
			"amount_cents":  msg.AmountCents,
			"balance_cents": balance.AmountCents,
			"reason":        msg.Reason,
		})
		return nil
	})
}
