package voucher

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for user vouchers.
type Repository interface {
	Create(ctx context.Context, v *UserVoucher) error
	GetByID(ctx context.Context, id uuid.UUID) (*UserVoucher, error)
	// MarkUsed atomically transitions the voucher from issued to used for the
	// given order. Returns false when the voucher was not in the issued state;
	// the caller then loads the voucher to distinguish redelivery from a
	// genuine conflict.
	MarkUsed(ctx context.Context, id, orderID uuid.UUID) (bool, error)
	// Restore atomically un-uses a voucher held by the given order. Restoring
	// a voucher the order does not hold is a no-op.
	Restore(ctx context.Context, id, orderID uuid.UUID) error
}
