package wallet

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/domain/errors"
)

// Wallet holds a user's prepaid balance in integer currency units.
type Wallet struct {
	UserID    uuid.UUID
	Balance   int64
	Version   int // Optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewWallet(userID uuid.UUID, initialBalance int64) (*Wallet, error) {
	if initialBalance < 0 {
		return nil, errors.NewValidationError("initial_balance", "cannot be negative")
	}

	now := time.Now()
	return &Wallet{
		UserID:    userID,
		Balance:   initialBalance,
		Version:   0,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (w *Wallet) Debit(amount int64) error {
	if amount <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}
	if w.Balance < amount {
		return errors.ErrInsufficientBalance
	}

	w.Balance -= amount
	w.Version++
	w.UpdatedAt = time.Now()
	return nil
}

func (w *Wallet) Credit(amount int64) error {
	if amount <= 0 {
		return errors.NewValidationError("amount", "must be greater than 0")
	}

	w.Balance += amount
	w.Version++
	w.UpdatedAt = time.Now()
	return nil
}
