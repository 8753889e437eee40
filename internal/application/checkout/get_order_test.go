package checkout_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/application/checkout"
	domainErrors "github.com/storefrontlabs/checkout/internal/domain/errors"
	"github.com/storefrontlabs/checkout/internal/testutil"
)

func TestGetOrder(t *testing.T) {
	ctx := context.Background()
	orderRepo := testutil.NewMockOrderRepository()
	o, lines := testutil.NewTestOrder(uuid.New(), 40_000, 5_000, uuid.New(), 2, nil)
	orderRepo.AddOrder(o, lines)

	uc := checkout.NewGetOrderUseCase(orderRepo)

	got, gotLines, err := uc.Execute(ctx, o.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != o.ID {
		t.Errorf("wrong order returned")
	}
	if len(gotLines) != 1 || gotLines[0].Quantity != 2 {
		t.Errorf("wrong lines returned: %+v", gotLines)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	uc := checkout.NewGetOrderUseCase(testutil.NewMockOrderRepository())
	_, _, err := uc.Execute(context.Background(), uuid.New())
	if !errors.Is(err, domainErrors.ErrOrderNotFound) {
		t.Fatalf("expected order not found, got %v", err)
	}
}

func TestListOrders(t *testing.T) {
	ctx := context.Background()
	orderRepo := testutil.NewMockOrderRepository()
	userID := uuid.New()
	for i := 0; i < 3; i++ {
		o, lines := testutil.NewTestOrder(userID, 10_000, 0, uuid.New(), 1, nil)
		orderRepo.AddOrder(o, lines)
	}
	other, otherLines := testutil.NewTestOrder(uuid.New(), 10_000, 0, uuid.New(), 1, nil)
	orderRepo.AddOrder(other, otherLines)

	uc := checkout.NewListOrdersUseCase(orderRepo)

	orders, err := uc.Execute(ctx, userID, 20, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(orders) != 3 {
		t.Errorf("expected the user's 3 orders, got %d", len(orders))
	}
}
