package inventory

import "github.com/google/uuid"

// RankedItem pairs an item id with its units sold, used for the best-seller
// ranking.
type RankedItem struct {
	ItemID uuid.UUID
	Sold   int64
}
