package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *goredis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCompletionTracker_ReservationThenVoucher(t *testing.T) {
	ctx := context.Background()
	tracker := NewCompletionTracker(newTestClient(t), time.Hour)
	orderID := uuid.New()

	require.NoError(t, tracker.Initialize(ctx, orderID, true, time.Now().Add(10*time.Minute)))

	ready, err := tracker.MarkReservationDone(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, ready, "join incomplete with only one branch")

	ready, err = tracker.MarkVoucherDone(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, ready, "second branch completes the join")
}

func TestCompletionTracker_VoucherThenReservation(t *testing.T) {
	ctx := context.Background()
	tracker := NewCompletionTracker(newTestClient(t), time.Hour)
	orderID := uuid.New()

	require.NoError(t, tracker.Initialize(ctx, orderID, true, time.Now().Add(10*time.Minute)))

	ready, err := tracker.MarkVoucherDone(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, ready)

	ready, err = tracker.MarkReservationDone(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, ready)
}

func TestCompletionTracker_ReadyClaimedExactlyOnce(t *testing.T) {
	ctx := context.Background()
	tracker := NewCompletionTracker(newTestClient(t), time.Hour)
	orderID := uuid.New()

	require.NoError(t, tracker.Initialize(ctx, orderID, true, time.Now().Add(10*time.Minute)))

	_, err := tracker.MarkReservationDone(ctx, orderID)
	require.NoError(t, err)
	ready, err := tracker.MarkVoucherDone(ctx, orderID)
	require.NoError(t, err)
	require.True(t, ready)

	// Redeliveries of either branch never claim ready again.
	ready, err = tracker.MarkVoucherDone(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, ready)

	ready, err = tracker.MarkReservationDone(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, ready)
}

func TestCompletionTracker_NoVoucherOrder(t *testing.T) {
	ctx := context.Background()
	tracker := NewCompletionTracker(newTestClient(t), time.Hour)
	orderID := uuid.New()

	// Voucher branch pre-marked at initialize time.
	require.NoError(t, tracker.Initialize(ctx, orderID, false, time.Now().Add(10*time.Minute)))

	done, err := tracker.VoucherDone(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, done)

	ready, err := tracker.MarkReservationDone(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, ready, "reservation alone completes a no-voucher order")
}

func TestCompletionTracker_Flags(t *testing.T) {
	ctx := context.Background()
	tracker := NewCompletionTracker(newTestClient(t), time.Hour)
	orderID := uuid.New()

	require.NoError(t, tracker.Initialize(ctx, orderID, true, time.Now().Add(10*time.Minute)))

	done, err := tracker.ReservationDone(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, done)

	_, err = tracker.MarkReservationDone(ctx, orderID)
	require.NoError(t, err)

	done, err = tracker.ReservationDone(ctx, orderID)
	require.NoError(t, err)
	assert.True(t, done)

	done, err = tracker.VoucherDone(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCompletionTracker_UnknownOrderFlagsFalse(t *testing.T) {
	ctx := context.Background()
	tracker := NewCompletionTracker(newTestClient(t), time.Hour)

	done, err := tracker.ReservationDone(ctx, uuid.New())
	require.NoError(t, err)
	assert.False(t, done)
}

func TestCompletionTracker_DueAndClear(t *testing.T) {
	ctx := context.Background()
	client := newTestClient(t)
	tracker := NewCompletionTracker(client, time.Hour)

	overdue := uuid.New()
	pending := uuid.New()
	now := time.Now()

	require.NoError(t, tracker.Initialize(ctx, overdue, true, now.Add(-time.Minute)))
	require.NoError(t, tracker.Initialize(ctx, pending, true, now.Add(time.Hour)))

	due, err := tracker.Due(ctx, now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, overdue, due[0])

	// Clear drops both the flags and the deadline entry.
	require.NoError(t, tracker.Clear(ctx, overdue))
	due, err = tracker.Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestCompletionTracker_Remove(t *testing.T) {
	ctx := context.Background()
	tracker := NewCompletionTracker(newTestClient(t), time.Hour)

	orderID := uuid.New()
	now := time.Now()
	require.NoError(t, tracker.Initialize(ctx, orderID, true, now.Add(-time.Minute)))

	require.NoError(t, tracker.Remove(ctx, orderID))

	due, err := tracker.Due(ctx, now)
	require.NoError(t, err)
	assert.Empty(t, due)

	// Flags survive a Remove.
	done, err := tracker.VoucherDone(ctx, orderID)
	require.NoError(t, err)
	assert.False(t, done)
	_, err = tracker.MarkVoucherDone(ctx, orderID)
	require.NoError(t, err)
}
