package voucher

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/domain/errors"
)

// Status represents the lifecycle of an issued voucher.
type Status string

const (
	StatusIssued Status = "issued"
	StatusUsed   Status = "used"
)

// UserVoucher is a discount voucher already issued to a user. Issuance itself
// happens upstream; this package only models consumption and restoration.
type UserVoucher struct {
	ID             uuid.UUID
	UserID         uuid.UUID
	DiscountAmount int64
	Status         Status
	UsedOrderID    *uuid.UUID
	ExpiresAt      time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewUserVoucher(userID uuid.UUID, discountAmount int64, expiresAt time.Time) (*UserVoucher, error) {
	if discountAmount <= 0 {
		return nil, errors.NewValidationError("discount_amount", "must be greater than 0")
	}

	now := time.Now()
	return &UserVoucher{
		ID:             uuid.New(),
		UserID:         userID,
		DiscountAmount: discountAmount,
		Status:         StatusIssued,
		ExpiresAt:      expiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// IsExpired reports whether the voucher can no longer be consumed.
func (v *UserVoucher) IsExpired(now time.Time) bool {
	return now.After(v.ExpiresAt)
}

// Use marks the voucher consumed by the given order. Consuming a voucher that
// the same order already holds is a no-op so redelivered commands stay safe.
func (v *UserVoucher) Use(orderID uuid.UUID, now time.Time) error {
	if v.Status == StatusUsed {
		if v.UsedOrderID != nil && *v.UsedOrderID == orderID {
			return nil
		}
		return errors.ErrVoucherAlreadyUsed
	}
	if v.IsExpired(now) {
		return errors.ErrVoucherExpired
	}

	v.Status = StatusUsed
	v.UsedOrderID = &orderID
	v.UpdatedAt = now
	return nil
}

// Restore un-uses the voucher for a failed order. Restoring a voucher the
// order never held, or one already restored, is a no-op.
func (v *UserVoucher) Restore(orderID uuid.UUID) error {
	if v.Status != StatusUsed {
		return nil
	}
	if v.UsedOrderID == nil || *v.UsedOrderID != orderID {
		return nil
	}

	v.Status = StatusIssued
	v.UsedOrderID = nil
	v.UpdatedAt = time.Now()
	return nil
}

// ValidateFor checks that the voucher may back a new order for the user.
// It does not consume the voucher; consumption belongs to the voucher worker.
func (v *UserVoucher) ValidateFor(userID uuid.UUID, now time.Time) error {
	if v.UserID != userID {
		return errors.ErrVoucherNotOwned
	}
	if v.Status == StatusUsed {
		return errors.ErrVoucherAlreadyUsed
	}
	if v.IsExpired(now) {
		return errors.ErrVoucherExpired
	}
	return nil
}
