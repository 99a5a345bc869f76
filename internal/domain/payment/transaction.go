package payment

import (
	"strings"
	"time"
)

// TransactionStatus marks a ledger operation attempt as committed or refused.
type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// TransactionType distinguishes ledger operations in the audit trail.
type TransactionType string

const (
	TypeDebit  TransactionType = "DEBIT"
	TypeCredit TransactionType = "CREDIT"
	TypeRefund TransactionType = "REFUND"
)

// Transaction is one append-only row of the ledger log: exactly one record
// is written per ledger operation attempt, including refused debits.
type Transaction struct {
	ID            string
	CustomerEmail string
	RideID        string
	SagaID        string
	AmountCents   int64
	Status        TransactionStatus
	Type          TransactionType
	Description   string
	CreatedAt     time.Time
	ProcessedAt   time.Time
}

// NewTransaction builds a ledger log record stamped at now.
func NewTransaction(customerEmail, rideID, sagaID string, amountCents int64, status TransactionStatus, txType TransactionType, description string) *Transaction {
	now := time.Now().UTC()
	return &Transaction{
		CustomerEmail: strings.TrimSpace(customerEmail),
		RideID:        rideID,
		SagaID:        sagaID,
		AmountCents:   amountCents,
		Status:        status,
		Type:          txType,
		Description:   strings.TrimSpace(description),
		CreatedAt:     now,
		ProcessedAt:   now,
	}
}
