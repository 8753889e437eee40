package wallet

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for user wallets. GetForUpdate must take a
// row lock inside a transaction so concurrent debits serialize.
type Repository interface {
	Create(ctx context.Context, w *Wallet) error
	GetByUserID(ctx context.Context, userID uuid.UUID) (*Wallet, error)
	GetForUpdate(ctx context.Context, userID uuid.UUID) (*Wallet, error)
	Update(ctx context.Context, w *Wallet) error
}
