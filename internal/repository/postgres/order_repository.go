package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/domain/order"
)

// OrderRepository implements order.Repository using PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository creates a new OrderRepository.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

func (r *OrderRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

// scanner is satisfied by both pgx.Row and pgx.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const orderColumns = `id, user_id, status, total_amount, voucher_discount, final_amount, failure_reason, created_at, updated_at, paid_at`

func (r *OrderRepository) scanOrder(s scanner) (*order.Order, error) {
	o := &order.Order{}
	var status string
	err := s.Scan(
		&o.ID, &o.UserID, &status, &o.TotalAmount, &o.VoucherDiscount, &o.FinalAmount,
		&o.FailureReason, &o.CreatedAt, &o.UpdatedAt, &o.PaidAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrOrderNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Status = order.Status(status)
	return o, nil
}

// Create inserts an order and its line snapshots in one shot. Callers run it
// inside a transaction alongside the outbox inserts.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, lines []order.Line) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO orders (id, user_id, status, total_amount, voucher_discount, final_amount, failure_reason, created_at, updated_at, paid_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		o.ID, o.UserID, string(o.Status), o.TotalAmount, o.VoucherDiscount, o.FinalAmount,
		o.FailureReason, o.CreatedAt, o.UpdatedAt, o.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}

	for _, l := range lines {
		_, err := r.db(ctx).Exec(ctx,
			`INSERT INTO order_lines (order_id, item_id, name, unit_price, quantity, voucher_id)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			l.OrderID, l.ItemID, l.Name, l.UnitPrice, l.Quantity, l.VoucherID,
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

// GetByID retrieves an order by its ID.
func (r *OrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id))
}

// GetForUpdate retrieves an order with a row-level lock (SELECT FOR UPDATE).
func (r *OrderRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	return r.scanOrder(r.db(ctx).QueryRow(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id))
}

// Update persists the order's mutable fields.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE orders SET status = $1, failure_reason = $2, updated_at = $3, paid_at = $4
		 WHERE id = $5`,
		string(o.Status), o.FailureReason, o.UpdatedAt, o.PaidAt, o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrOrderNotFound
	}
	return nil
}

// ListLines retrieves the line snapshots for an order.
func (r *OrderRepository) ListLines(ctx context.Context, orderID uuid.UUID) ([]order.Line, error) {
	rows, err := r.db(ctx).Query(ctx,
		`SELECT order_id, item_id, name, unit_price, quantity, voucher_id
		 FROM order_lines WHERE order_id = $1 ORDER BY item_id`, orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	defer rows.Close()

	var lines []order.Line
	for rows.Next() {
		var l order.Line
		if err := rows.Scan(&l.OrderID, &l.ItemID, &l.Name, &l.UnitPrice, &l.Quantity, &l.VoucherID); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// ListByUser retrieves a user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*order.Order, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT `+orderColumns+` FROM orders
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := r.scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}
