package redis

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/storefrontlabs/checkout/internal/domain/inventory"
)

const popularityKey = "checkout:items:popularity"

// PopularityStore keeps a sorted set of items ranked by units sold. Scores
// are bumped after an order completes, so the ranking reflects paid orders
// only.
type PopularityStore struct {
	client *redis.Client
}

func NewPopularityStore(client *redis.Client) *PopularityStore {
	return &PopularityStore{client: client}
}

// RecordSales bumps each item's score by the quantity sold.
func (s *PopularityStore) RecordSales(ctx context.Context, quantities map[uuid.UUID]int) error {
	pipe := s.client.TxPipeline()
	for itemID, qty := range quantities {
		pipe.ZIncrBy(ctx, popularityKey, float64(qty), itemID.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record sales: %w", err)
	}
	return nil
}

// TopN returns the n best-selling items, highest first.
func (s *PopularityStore) TopN(ctx context.Context, n int64) ([]inventory.RankedItem, error) {
	entries, err := s.client.ZRevRangeWithScores(ctx, popularityKey, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read popularity ranking: %w", err)
	}

	ranked := make([]inventory.RankedItem, 0, len(entries))
	for _, e := range entries {
		member, ok := e.Member.(string)
		if !ok {
			continue
		}
		id, err := uuid.Parse(member)
		if err != nil {
			continue
		}
		ranked = append(ranked, inventory.RankedItem{ItemID: id, Sold: int64(e.Score)})
	}
	return ranked, nil
}
