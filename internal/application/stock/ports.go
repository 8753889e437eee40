package stock

import (
	"context"

	"github.com/storefrontlabs/checkout/internal/event"
)

// TransactionManager defines the interface for transaction management.
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher emits saga events.
type Publisher interface {
	Publish(ctx context.Context, stream string, env event.Envelope) error
	PublishToDLQ(ctx context.Context, env event.Envelope, reason string) error
}

// OnceGuard claims a key exactly once so redelivered messages skip work
// already done.
type OnceGuard interface {
	Begin(ctx context.Context, key string) (bool, error)
	Undo(ctx context.Context, key string) error
}
