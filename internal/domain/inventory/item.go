package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/domain/errors"
)

// Item is a catalog entry that owns its stock counter. The counter is only
// mutated by the reservation worker and the stock compensation handler, both
// under a row lock.
type Item struct {
	ID        uuid.UUID
	Name      string
	Price     int64
	Quantity  int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewItem(name string, price int64, quantity int) (*Item, error) {
	if name == "" {
		return nil, errors.NewValidationError("name", "cannot be empty")
	}
	if price < 0 {
		return nil, errors.NewValidationError("price", "cannot be negative")
	}
	if quantity < 0 {
		return nil, errors.NewValidationError("quantity", "cannot be negative")
	}

	now := time.Now()
	return &Item{
		ID:        uuid.New(),
		Name:      name,
		Price:     price,
		Quantity:  quantity,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// HasEnough reports whether qty units can be reserved.
func (i *Item) HasEnough(qty int) bool {
	return i.Quantity >= qty
}

// Decrease reserves qty units of stock.
func (i *Item) Decrease(qty int) error {
	if qty <= 0 {
		return errors.NewValidationError("quantity", "must be greater than 0")
	}
	if !i.HasEnough(qty) {
		return errors.ErrInsufficientStock
	}
	i.Quantity -= qty
	i.UpdatedAt = time.Now()
	return nil
}

// Increase restores qty units of stock.
func (i *Item) Increase(qty int) error {
	if qty <= 0 {
		return errors.NewValidationError("quantity", "must be greater than 0")
	}
	i.Quantity += qty
	i.UpdatedAt = time.Now()
	return nil
}
