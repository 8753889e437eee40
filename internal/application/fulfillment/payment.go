package fulfillment

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/domain/wallet"
	"github.com/storefrontlabs/checkout/internal/lock"
)

// WalletPaymentStep debits the user's wallet once. It runs inside the
// coordinator's transaction; the scoped lock serializes debits for the same
// user across worker instances ahead of the row lock.
type WalletPaymentStep struct {
	walletRepo wallet.Repository
	locker     lock.Locker
}

func NewWalletPaymentStep(walletRepo wallet.Repository, locker lock.Locker) *WalletPaymentStep {
	return &WalletPaymentStep{walletRepo: walletRepo, locker: locker}
}

func (s *WalletPaymentStep) Debit(ctx context.Context, userID uuid.UUID, amount int64) error {
	if amount == 0 {
		// Fully discounted order; nothing to move.
		return nil
	}

	release, err := s.locker.Acquire(ctx, "wallet:"+userID.String())
	if err != nil {
		return err
	}
	defer release(ctx)

	w, err := s.walletRepo.GetForUpdate(ctx, userID)
	if err != nil {
		return fmt.Errorf("load wallet: %w", err)
	}
	if err := w.Debit(amount); err != nil {
		return err
	}
	if err := s.walletRepo.Update(ctx, w); err != nil {
		return fmt.Errorf("update wallet: %w", err)
	}
	return nil
}
