package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/domain/inventory"
)

// PopularItem is a ranked catalog item enriched with its current listing.
type PopularItem struct {
	Item *inventory.Item
	Sold int64
}

// PopularItemsUseCase reads the best-seller ranking and joins it with the
// catalog.
type PopularItemsUseCase struct {
	inventoryRepo inventory.Repository
	ranking       PopularityRanking
}

func NewPopularItemsUseCase(inventoryRepo inventory.Repository, ranking PopularityRanking) *PopularItemsUseCase {
	return &PopularItemsUseCase{inventoryRepo: inventoryRepo, ranking: ranking}
}

func (uc *PopularItemsUseCase) Execute(ctx context.Context, limit int64) ([]PopularItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	ranked, err := uc.ranking.TopN(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read ranking: %w", err)
	}
	if len(ranked) == 0 {
		return []PopularItem{}, nil
	}

	ids := make([]uuid.UUID, 0, len(ranked))
	for _, r := range ranked {
		ids = append(ids, r.ItemID)
	}
	items, err := uc.inventoryRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	byID := make(map[uuid.UUID]*inventory.Item, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}

	result := make([]PopularItem, 0, len(ranked))
	for _, r := range ranked {
		item, ok := byID[r.ItemID]
		if !ok {
			// Ranked item no longer in the catalog; skip it.
			continue
		}
		result = append(result, PopularItem{Item: item, Sold: r.Sold})
	}
	return result, nil
}
