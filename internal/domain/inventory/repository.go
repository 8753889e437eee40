package inventory

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for catalog items and their stock counters.
// GetForUpdate must take a row lock when called inside a transaction so that
// concurrent reservations on the same item serialize.
type Repository interface {
	Create(ctx context.Context, item *Item) error
	GetByID(ctx context.Context, id uuid.UUID) (*Item, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*Item, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Item, error)
	Update(ctx context.Context, item *Item) error
}
