package event_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/event"
)

func TestRegistry_Dispatch(t *testing.T) {
	reg := event.NewRegistry()

	var got event.ReservationSucceeded
	reg.Register(event.TypeReservationSucceeded, func(_ context.Context, env event.Envelope) error {
		return env.Decode(&got)
	})

	orderID := uuid.New()
	env, err := event.NewEnvelope(orderID, event.TypeReservationSucceeded, event.ReservationSucceeded{OrderID: orderID})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := reg.Dispatch(context.Background(), env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.OrderID != orderID {
		t.Errorf("expected order id %s, got %s", orderID, got.OrderID)
	}
}

func TestRegistry_UnhandledType(t *testing.T) {
	reg := event.NewRegistry()

	env, _ := event.NewEnvelope(uuid.New(), event.TypeOrderCompleted, event.OrderCompleted{})
	err := reg.Dispatch(context.Background(), env)
	if !errors.Is(err, event.ErrUnhandledType) {
		t.Fatalf("expected ErrUnhandledType, got %v", err)
	}
}

func TestRegistry_DuplicateRegistrationPanics(t *testing.T) {
	reg := event.NewRegistry()
	noop := func(context.Context, event.Envelope) error { return nil }

	reg.Register(event.TypeOrderCompleted, noop)

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	reg.Register(event.TypeOrderCompleted, noop)
}

func TestRegistry_Handles(t *testing.T) {
	reg := event.NewRegistry()
	if reg.Handles(event.TypePaymentRequested) {
		t.Fatal("expected empty registry to handle nothing")
	}
	reg.Register(event.TypePaymentRequested, func(context.Context, event.Envelope) error { return nil })
	if !reg.Handles(event.TypePaymentRequested) {
		t.Fatal("expected registered type to be handled")
	}
}
