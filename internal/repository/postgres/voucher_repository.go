package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/domain/voucher"
)

// VoucherRepository implements voucher.Repository using PostgreSQL.
// Consumption is a single conditional UPDATE so concurrent workers cannot
// both take the same voucher.
type VoucherRepository struct {
	pool *pgxpool.Pool
}

// NewVoucherRepository creates a new VoucherRepository.
func NewVoucherRepository(pool *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{pool: pool}
}

func (r *VoucherRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *VoucherRepository) scanVoucher(s scanner) (*voucher.UserVoucher, error) {
	v := &voucher.UserVoucher{}
	var status string
	err := s.Scan(&v.ID, &v.UserID, &v.DiscountAmount, &status, &v.UsedOrderID, &v.ExpiresAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrVoucherNotFound
		}
		return nil, fmt.Errorf("scan voucher: %w", err)
	}
	v.Status = voucher.Status(status)
	return v, nil
}

// Create inserts an issued voucher.
func (r *VoucherRepository) Create(ctx context.Context, v *voucher.UserVoucher) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO user_vouchers (id, user_id, discount_amount, status, used_order_id, expires_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.UserID, v.DiscountAmount, string(v.Status), v.UsedOrderID, v.ExpiresAt, v.CreatedAt, v.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert voucher: %w", err)
	}
	return nil
}

// GetByID retrieves a voucher by its ID.
func (r *VoucherRepository) GetByID(ctx context.Context, id uuid.UUID) (*voucher.UserVoucher, error) {
	return r.scanVoucher(r.db(ctx).QueryRow(ctx,
		`SELECT id, user_id, discount_amount, status, used_order_id, expires_at, created_at, updated_at
		 FROM user_vouchers WHERE id = $1`, id))
}

// MarkUsed atomically flips the voucher from issued to used for the order.
// Returns false when the row was not in the issued state.
func (r *VoucherRepository) MarkUsed(ctx context.Context, id, orderID uuid.UUID) (bool, error) {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE user_vouchers
		 SET status = 'used', used_order_id = $1, updated_at = NOW()
		 WHERE id = $2 AND status = 'issued' AND expires_at > NOW()`,
		orderID, id,
	)
	if err != nil {
		return false, fmt.Errorf("mark voucher used: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Restore atomically un-uses a voucher held by the order. A voucher the order
// does not hold is left untouched.
func (r *VoucherRepository) Restore(ctx context.Context, id, orderID uuid.UUID) error {
	_, err := r.db(ctx).Exec(ctx,
		`UPDATE user_vouchers
		 SET status = 'issued', used_order_id = NULL, updated_at = NOW()
		 WHERE id = $1 AND status = 'used' AND used_order_id = $2`,
		id, orderID,
	)
	if err != nil {
		return fmt.Errorf("restore voucher: %w", err)
	}
	return nil
}
