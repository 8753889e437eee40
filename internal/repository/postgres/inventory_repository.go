package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/domain/inventory"
)

// InventoryRepository implements inventory.Repository using PostgreSQL.
type InventoryRepository struct {
	pool *pgxpool.Pool
}

// NewInventoryRepository creates a new InventoryRepository.
func NewInventoryRepository(pool *pgxpool.Pool) *InventoryRepository {
	return &InventoryRepository{pool: pool}
}

func (r *InventoryRepository) db(ctx context.Context) DBTX {
	return ConnFromCtx(ctx, r.pool)
}

func (r *InventoryRepository) scanItem(s scanner) (*inventory.Item, error) {
	i := &inventory.Item{}
	err := s.Scan(&i.ID, &i.Name, &i.Price, &i.Quantity, &i.CreatedAt, &i.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domainErrors.ErrItemNotFound
		}
		return nil, fmt.Errorf("scan item: %w", err)
	}
	return i, nil
}

// Create inserts a new catalog item.
func (r *InventoryRepository) Create(ctx context.Context, item *inventory.Item) error {
	_, err := r.db(ctx).Exec(ctx,
		`INSERT INTO items (id, name, price, quantity, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		item.ID, item.Name, item.Price, item.Quantity, item.CreatedAt, item.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	return nil
}

// GetByID retrieves an item by its ID.
func (r *InventoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*inventory.Item, error) {
	return r.scanItem(r.db(ctx).QueryRow(ctx,
		`SELECT id, name, price, quantity, created_at, updated_at
		 FROM items WHERE id = $1`, id))
}

// GetByIDs retrieves a batch of items. Missing ids are simply absent from the
// result; callers compare lengths when every id must exist.
func (r *InventoryRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*inventory.Item, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db(ctx).Query(ctx,
		`SELECT id, name, price, quantity, created_at, updated_at
		 FROM items WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*inventory.Item
	for rows.Next() {
		i, err := r.scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}

// GetForUpdate retrieves an item with a row-level lock (SELECT FOR UPDATE).
func (r *InventoryRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*inventory.Item, error) {
	return r.scanItem(r.db(ctx).QueryRow(ctx,
		`SELECT id, name, price, quantity, created_at, updated_at
		 FROM items WHERE id = $1 FOR UPDATE`, id))
}

// Update persists the item's stock counter.
func (r *InventoryRepository) Update(ctx context.Context, item *inventory.Item) error {
	tag, err := r.db(ctx).Exec(ctx,
		`UPDATE items SET name = $1, price = $2, quantity = $3, updated_at = $4
		 WHERE id = $5`,
		item.Name, item.Price, item.Quantity, item.UpdatedAt, item.ID,
	)
	if err != nil {
		return fmt.Errorf("update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domainErrors.ErrItemNotFound
	}
	return nil
}
