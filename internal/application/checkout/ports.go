package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/domain/inventory"
	"github.com/storefrontlabs/checkout/internal/domain/outbox"
)

// TransactionManager defines the interface for transaction management.
// This is an application-layer port, not a domain concern.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// OutboxWriter defines the interface for writing to the transactional outbox.
type OutboxWriter interface {
	Insert(ctx context.Context, entry *outbox.Entry) error
}

// CompletionTracker sets up the per-order join state before the saga starts.
type CompletionTracker interface {
	Initialize(ctx context.Context, orderID uuid.UUID, requiresVoucher bool, deadline time.Time) error
	Clear(ctx context.Context, orderID uuid.UUID) error
}

// PopularityRanking reads the best-seller ranking.
type PopularityRanking interface {
	TopN(ctx context.Context, n int64) ([]inventory.RankedItem, error)
}
