package event

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnhandledType is returned by Dispatch when no handler is registered for
// an envelope's type.
var ErrUnhandledType = errors.New("no handler registered for event type")

// HandlerFunc processes a single envelope. Returning an error leaves the
// message unacknowledged so the broker redelivers it; handlers must therefore
// be idempotent.
type HandlerFunc func(ctx context.Context, env Envelope) error

// Registry maps event types to handlers. Consumers dispatch every decoded
// envelope through the registry instead of switching on types inline.
type Registry struct {
	handlers map[Type]HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[Type]HandlerFunc)}
}

// Register binds a handler to a type. Registering the same type twice is a
// programming error and panics at startup.
func (r *Registry) Register(typ Type, h HandlerFunc) {
	if _, exists := r.handlers[typ]; exists {
		panic(fmt.Sprintf("event: handler already registered for %q", typ))
	}
	r.handlers[typ] = h
}

// Dispatch routes the envelope to its handler.
func (r *Registry) Dispatch(ctx context.Context, env Envelope) error {
	h, ok := r.handlers[env.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnhandledType, env.Type)
	}
	return h(ctx, env)
}

// Handles reports whether a handler is registered for the type.
func (r *Registry) Handles(typ Type) bool {
	_, ok := r.handlers[typ]
	return ok
}
