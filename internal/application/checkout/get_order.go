package checkout

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/domain/order"
)

// GetOrderUseCase reads a single order with its lines.
type GetOrderUseCase struct {
	orderRepo order.Repository
}

func NewGetOrderUseCase(orderRepo order.Repository) *GetOrderUseCase {
	return &GetOrderUseCase{orderRepo: orderRepo}
}

func (uc *GetOrderUseCase) Execute(ctx context.Context, orderID uuid.UUID) (*order.Order, []order.Line, error) {
	o, err := uc.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}
	lines, err := uc.orderRepo.ListLines(ctx, orderID)
	if err != nil {
		return nil, nil, fmt.Errorf("load order lines: %w", err)
	}
	return o, lines, nil
}

// ListOrdersUseCase pages through a user's orders, newest first.
type ListOrdersUseCase struct {
	orderRepo order.Repository
}

func NewListOrdersUseCase(orderRepo order.Repository) *ListOrdersUseCase {
	return &ListOrdersUseCase{orderRepo: orderRepo}
}

func (uc *ListOrdersUseCase) Execute(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*order.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return uc.orderRepo.ListByUser(ctx, userID, limit, offset)
}
