package voucherop

import (
	"context"

	"github.com/storefrontlabs/checkout/internal/event"
)

// Publisher emits saga events.
type Publisher interface {
	Publish(ctx context.Context, stream string, env event.Envelope) error
	PublishToDLQ(ctx context.Context, env event.Envelope, reason string) error
}
