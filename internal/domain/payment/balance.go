package payment

import (
	"errors"
	"strings"
	"time"
)

// DefaultBalanceCents is the starting balance granted to a customer the
// first time the ledger sees them.
const DefaultBalanceCents int64 = 10000

// Balance is the per-customer balance row. Amount is integer cents and is
// never negative at a committed state; the version field backs optimistic
// concurrency on every write.
type Balance struct {
	CustomerEmail string
	AmountCents   int64
	LastUpdated   time.Time
	Version       int64
}

var (
	ErrCustomerRequired    = errors.New("customer email is required")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNegativeAmount      = errors.New("amount must be positive")
)

// NewBalance creates a balance with the default starting amount.
func NewBalance(customerEmail string) (*Balance, error) {
	if customerEmail = strings.TrimSpace(customerEmail); customerEmail == "" {
		return nil, ErrCustomerRequired
	}
	return &Balance{
		CustomerEmail: customerEmail,
		AmountCents:   DefaultBalanceCents,
		LastUpdated:   time.Now().UTC(),
	}, nil
}

// Sufficient reports whether the balance covers the required amount.
func (balance *Balance) Sufficient(amountCents int64) bool {
	return balance.AmountCents >= amountCents
}

// Deduct subtracts amountCents, refusing to go below zero.
func (balance *Balance) Deduct(amountCents int64) error {
	if amountCents <= 0 {
		return ErrNegativeAmount
	}
	if !balance.Sufficient(amountCents) {
		return ErrInsufficientBalance
	}
	balance.AmountCents -= amountCents
	balance.LastUpdated = time.Now().UTC()
	return nil
}

// Add credits amountCents to the balance.
func (balance *Balance) Add(amountCents int64) error {
	if amountCents <= 0 {
		return ErrNegativeAmount
	}
	balance.AmountCents += amountCents
	balance.LastUpdated = time.Now().UTC()
	return nil
}
