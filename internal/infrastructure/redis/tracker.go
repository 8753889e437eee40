package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	trackerKeyPrefix    = "checkout:saga:"
	trackerDeadlinesKey = "checkout:saga:deadlines"

	fieldReservation = "reservation"
	fieldVoucher     = "voucher"
	fieldReady       = "ready"
)

// markAndCheckScript sets one branch flag, refreshes the TTL, and, when both
// branches have reported in, claims the "ready" field with HSETNX. The claim
// makes the script return 1 exactly once per order no matter how many times
// either branch is redelivered.
var markAndCheckScript = redis.NewScript(`
	redis.call("hset", KEYS[1], ARGV[1], "1")
	redis.call("pexpire", KEYS[1], ARGV[2])
	local r = redis.call("hget", KEYS[1], "reservation")
	local v = redis.call("hget", KEYS[1], "voucher")
	if r == "1" and v == "1" then
		return redis.call("hsetnx", KEYS[1], "ready", "1")
	end
	return 0
`)

// CompletionTracker records which saga branches have succeeded for each order.
// State lives in a redis hash per order so any worker instance can report a
// branch outcome; a deadline index feeds the reconciler.
type CompletionTracker struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCompletionTracker(client *redis.Client, ttl time.Duration) *CompletionTracker {
	return &CompletionTracker{client: client, ttl: ttl}
}

func trackerKey(orderID uuid.UUID) string {
	return trackerKeyPrefix + orderID.String()
}

// Initialize creates the tracker entry for a new order. Orders without a
// voucher get the voucher branch pre-marked so the reservation outcome alone
// completes the join. The order is also indexed by deadline for the
// reconciler sweep.
func (t *CompletionTracker) Initialize(ctx context.Context, orderID uuid.UUID, requiresVoucher bool, deadline time.Time) error {
	key := trackerKey(orderID)
	voucherFlag := "0"
	if !requiresVoucher {
		voucherFlag = "1"
	}

	pipe := t.client.TxPipeline()
	pipe.HSet(ctx, key, fieldReservation, "0", fieldVoucher, voucherFlag)
	pipe.PExpire(ctx, key, t.ttl)
	pipe.ZAdd(ctx, trackerDeadlinesKey, redis.Z{Score: float64(deadline.UnixMilli()), Member: orderID.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to initialize tracker for %s: %w", orderID, err)
	}
	return nil
}

// MarkReservationDone records the reservation branch outcome. It returns true
// exactly once: on the call that completes the join.
func (t *CompletionTracker) MarkReservationDone(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return t.mark(ctx, orderID, fieldReservation)
}

// MarkVoucherDone records the voucher branch outcome. It returns true exactly
// once: on the call that completes the join.
func (t *CompletionTracker) MarkVoucherDone(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return t.mark(ctx, orderID, fieldVoucher)
}

func (t *CompletionTracker) mark(ctx context.Context, orderID uuid.UUID, field string) (bool, error) {
	result, err := markAndCheckScript.Run(
		ctx,
		t.client,
		[]string{trackerKey(orderID)},
		field,
		t.ttl.Milliseconds(),
	).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark %s for %s: %w", field, orderID, err)
	}

	claimed, ok := result.(int64)
	if !ok {
		return false, fmt.Errorf("unexpected script result for %s: %v", orderID, result)
	}
	return claimed == 1, nil
}

// ReservationDone reports whether the reservation branch has succeeded.
func (t *CompletionTracker) ReservationDone(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return t.flag(ctx, orderID, fieldReservation)
}

// VoucherDone reports whether the voucher branch has succeeded.
func (t *CompletionTracker) VoucherDone(ctx context.Context, orderID uuid.UUID) (bool, error) {
	return t.flag(ctx, orderID, fieldVoucher)
}

func (t *CompletionTracker) flag(ctx context.Context, orderID uuid.UUID, field string) (bool, error) {
	val, err := t.client.HGet(ctx, trackerKey(orderID), field).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s for %s: %w", field, orderID, err)
	}
	return val == "1", nil
}

// Clear drops the tracker entry and deadline index for a finished order.
func (t *CompletionTracker) Clear(ctx context.Context, orderID uuid.UUID) error {
	pipe := t.client.TxPipeline()
	pipe.Del(ctx, trackerKey(orderID))
	pipe.ZRem(ctx, trackerDeadlinesKey, orderID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear tracker for %s: %w", orderID, err)
	}
	return nil
}

// Due returns orders whose deadline passed before now. The reconciler decides
// what to do with each; entries stay indexed until Clear or Remove.
func (t *CompletionTracker) Due(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	members, err := t.client.ZRangeByScore(ctx, trackerDeadlinesKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", now.UnixMilli()),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list due trackers: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(members))
	for _, m := range members {
		id, err := uuid.Parse(m)
		if err != nil {
			// Skip malformed members rather than wedging the sweep.
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Remove drops an order from the deadline index without touching its flags.
func (t *CompletionTracker) Remove(ctx context.Context, orderID uuid.UUID) error {
	if err := t.client.ZRem(ctx, trackerDeadlinesKey, orderID.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove %s from deadline index: %w", orderID, err)
	}
	return nil
}
