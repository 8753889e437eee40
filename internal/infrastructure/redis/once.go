package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// OnceGuard gates side effects that must run at most once per key under
// at-least-once delivery. Begin claims the key with SETNX; a handler that
// fails after claiming calls Undo so a redelivery can retry.
type OnceGuard struct {
	client *redis.Client
	ttl    time.Duration
}

func NewOnceGuard(client *redis.Client, ttl time.Duration) *OnceGuard {
	return &OnceGuard{client: client, ttl: ttl}
}

// Begin claims the key. It returns false when another delivery already holds
// or completed the claim.
func (g *OnceGuard) Begin(ctx context.Context, key string) (bool, error) {
	claimed, err := g.client.SetNX(ctx, "once:"+key, "1", g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", key, err)
	}
	return claimed, nil
}

// Undo releases a claim after a failed attempt so the work can be retried.
func (g *OnceGuard) Undo(ctx context.Context, key string) error {
	if err := g.client.Del(ctx, "once:"+key).Err(); err != nil {
		return fmt.Errorf("failed to release %s: %w", key, err)
	}
	return nil
}
