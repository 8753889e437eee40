package order

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for orders and their lines.
type Repository interface {
	// Create persists the order and its lines in one batch.
	Create(ctx context.Context, o *Order, lines []Line) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// GetForUpdate retrieves the order under a row-level lock so status
	// transitions serialize across workers. Only valid inside a transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Order, error)
	// Update persists status, failure reason and timestamps.
	Update(ctx context.Context, o *Order) error
	ListLines(ctx context.Context, orderID uuid.UUID) ([]Line, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Order, error)
}
