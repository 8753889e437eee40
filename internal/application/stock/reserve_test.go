package stock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/storefrontlabs/checkout/internal/application/stock"
	"github.com/storefrontlabs/checkout/internal/event"
	"github.com/storefrontlabs/checkout/internal/infrastructure/observability"
	"github.com/storefrontlabs/checkout/internal/testutil"
)

type reserverFixture struct {
	inventoryRepo *testutil.MockInventoryRepository
	publisher     *testutil.MockPublisher
	guard         *testutil.MockOnceGuard
	reserver      *stock.Reserver
}

func newReserverFixture() *reserverFixture {
	inventoryRepo := testutil.NewMockInventoryRepository()
	publisher := testutil.NewMockPublisher()
	guard := testutil.NewMockOnceGuard()

	return &reserverFixture{
		inventoryRepo: inventoryRepo,
		publisher:     publisher,
		guard:         guard,
		reserver: stock.NewReserver(
			inventoryRepo, testutil.NewMockTransactionManager(), publisher,
			testutil.NopLocker{}, guard,
			observability.NewMetrics("test", prometheus.NewRegistry()), zerolog.Nop(),
		),
	}
}

func reservationEnvelope(t *testing.T, orderID uuid.UUID, items []event.ItemQuantity) event.Envelope {
	t.Helper()
	env, err := event.NewEnvelope(orderID, event.TypeReservationRequested,
		event.ReservationRequested{OrderID: orderID, Items: items})
	if err != nil {
		t.Fatal(err)
	}
	return env
}

func TestReserver_DecrementsStock(t *testing.T) {
	ctx := context.Background()
	f := newReserverFixture()
	item := testutil.NewTestItem("keyboard", 20_000, 10)
	f.inventoryRepo.AddItem(item)
	orderID := uuid.New()

	env := reservationEnvelope(t, orderID, []event.ItemQuantity{{ItemID: item.ID, Quantity: 3}})
	if err := f.reserver.HandleReservationRequested(ctx, env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := f.inventoryRepo.GetItemByID(item.ID).Quantity; got != 7 {
		t.Errorf("expected stock 7, got %d", got)
	}

	outcomes := f.publisher.Published(event.StreamOutcome)
	if len(outcomes) != 1 || outcomes[0].Type != event.TypeReservationSucceeded {
		t.Fatalf("expected reservation.succeeded outcome, got %v", outcomes)
	}
}

func TestReserver_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	f := newReserverFixture()
	plenty := testutil.NewTestItem("keyboard", 20_000, 10)
	scarce := testutil.NewTestItem("mouse", 8_000, 1)
	f.inventoryRepo.AddItem(plenty)
	f.inventoryRepo.AddItem(scarce)
	orderID := uuid.New()

	env := reservationEnvelope(t, orderID, []event.ItemQuantity{
		{ItemID: plenty.ID, Quantity: 2},
		{ItemID: scarce.ID, Quantity: 5},
	})
	if err := f.reserver.HandleReservationRequested(ctx, env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Neither counter moved.
	if got := f.inventoryRepo.GetItemByID(plenty.ID).Quantity; got != 10 {
		t.Errorf("partial reservation leaked: plenty=%d", got)
	}
	if got := f.inventoryRepo.GetItemByID(scarce.ID).Quantity; got != 1 {
		t.Errorf("partial reservation leaked: scarce=%d", got)
	}

	outcomes := f.publisher.Published(event.StreamOutcome)
	if len(outcomes) != 1 || outcomes[0].Type != event.TypeReservationFailed {
		t.Fatalf("expected reservation.failed outcome, got %v", outcomes)
	}
	var failed event.ReservationFailed
	if err := outcomes[0].Decode(&failed); err != nil {
		t.Fatal(err)
	}
	if failed.Reason != "insufficient stock" {
		t.Errorf("wrong failure reason: %q", failed.Reason)
	}
}

func TestReserver_RedeliveryIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newReserverFixture()
	item := testutil.NewTestItem("keyboard", 20_000, 10)
	f.inventoryRepo.AddItem(item)
	orderID := uuid.New()

	env := reservationEnvelope(t, orderID, []event.ItemQuantity{{ItemID: item.ID, Quantity: 3}})
	for i := 0; i < 3; i++ {
		if err := f.reserver.HandleReservationRequested(ctx, env); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if got := f.inventoryRepo.GetItemByID(item.ID).Quantity; got != 7 {
		t.Errorf("redelivery must not reserve again, stock=%d", got)
	}
	if n := len(f.publisher.Published(event.StreamOutcome)); n != 1 {
		t.Errorf("redelivery must not republish the outcome, got %d", n)
	}
}

func TestReserver_PublishFailureReleasesGuard(t *testing.T) {
	ctx := context.Background()
	f := newReserverFixture()
	item := testutil.NewTestItem("keyboard", 20_000, 10)
	f.inventoryRepo.AddItem(item)
	orderID := uuid.New()

	boom := errors.New("redis down")
	f.publisher.PublishFunc = func(ctx context.Context, stream string, env event.Envelope) error {
		return boom
	}

	env := reservationEnvelope(t, orderID, []event.ItemQuantity{{ItemID: item.ID, Quantity: 3}})
	if err := f.reserver.HandleReservationRequested(ctx, env); !errors.Is(err, boom) {
		t.Fatalf("expected publish error, got %v", err)
	}

	// The decrement was rolled back along with the guard.
	if got := f.inventoryRepo.GetItemByID(item.ID).Quantity; got != 10 {
		t.Fatalf("expected rollback to restore stock to 10, got %d", got)
	}

	// Guard released, so the redelivery goes through once the broker is back.
	f.publisher.PublishFunc = nil
	if err := f.reserver.HandleReservationRequested(ctx, env); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if n := len(f.publisher.Published(event.StreamOutcome)); n != 1 {
		t.Errorf("expected outcome on retry, got %d", n)
	}
	if got := f.inventoryRepo.GetItemByID(item.ID).Quantity; got != 7 {
		t.Errorf("expected stock 7 after successful retry, got %d", got)
	}
}
