package fulfillment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/event"
)

// TransactionManager defines the interface for transaction management.
// This is an application-layer port, not a domain concern.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// CompletionTracker records which saga branches have succeeded per order.
// The Mark methods return true exactly once: on the call that completes the
// join of both branches.
type CompletionTracker interface {
	Initialize(ctx context.Context, orderID uuid.UUID, requiresVoucher bool, deadline time.Time) error
	MarkReservationDone(ctx context.Context, orderID uuid.UUID) (bool, error)
	MarkVoucherDone(ctx context.Context, orderID uuid.UUID) (bool, error)
	ReservationDone(ctx context.Context, orderID uuid.UUID) (bool, error)
	VoucherDone(ctx context.Context, orderID uuid.UUID) (bool, error)
	Clear(ctx context.Context, orderID uuid.UUID) error
}

// DeadlineIndex lists orders whose saga deadline has passed. Backed by the
// tracker's deadline ZSET.
type DeadlineIndex interface {
	Due(ctx context.Context, now time.Time) ([]uuid.UUID, error)
	Remove(ctx context.Context, orderID uuid.UUID) error
}

// Publisher appends envelopes to event streams.
type Publisher interface {
	Publish(ctx context.Context, stream string, env event.Envelope) error
	PublishToDLQ(ctx context.Context, env event.Envelope, reason string) error
}

// OnceGuard gates a side effect so it runs at most once per key. Begin
// returns false when the key was already claimed; Undo releases the claim
// after a failed attempt.
type OnceGuard interface {
	Begin(ctx context.Context, key string) (bool, error)
	Undo(ctx context.Context, key string) error
}

// PaymentStep performs the single wallet debit attempt for an order. It runs
// inside the caller's transaction context.
type PaymentStep interface {
	Debit(ctx context.Context, userID uuid.UUID, amount int64) error
}

// PopularityStore ranks items by units sold.
type PopularityStore interface {
	RecordSales(ctx context.Context, quantities map[uuid.UUID]int) error
}

// AnalyticsPublisher ships completed-order data to the external data
// platform. Best effort: failures never affect the order.
type AnalyticsPublisher interface {
	PublishOrderData(ctx context.Context, data event.OrderData) error
}
