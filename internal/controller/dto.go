package controller

import (
	"time"

	"github.com/storefrontlabs/checkout/internal/application/checkout"
	"github.com/storefrontlabs/checkout/internal/domain/order"
)

// --- Request DTOs ---
// All monetary amounts ride the wire as integer minor units; there is no
// float money anywhere in the API.

// CheckoutItemRequest is one requested order line.
type CheckoutItemRequest struct {
	ItemID   string `json:"item_id" validate:"required,uuid"`
	Quantity int    `json:"quantity" validate:"required,gt=0"`
}

// CheckoutRequest holds the input for placing an order.
type CheckoutRequest struct {
	UserID    string                `json:"user_id" validate:"required,uuid"`
	Items     []CheckoutItemRequest `json:"items" validate:"required,min=1,dive"`
	VoucherID *string               `json:"voucher_id,omitempty" validate:"omitempty,uuid"`
}

// --- Response DTOs ---

// OrderLineResponse represents an order line in API responses.
type OrderLineResponse struct {
	ItemID    string  `json:"item_id"`
	Name      string  `json:"name"`
	UnitPrice int64   `json:"unit_price"`
	Quantity  int     `json:"quantity"`
	VoucherID *string `json:"voucher_id,omitempty"`
}

// OrderResponse represents an order in API responses.
type OrderResponse struct {
	ID              string              `json:"id"`
	UserID          string              `json:"user_id"`
	Status          string              `json:"status"`
	TotalAmount     int64               `json:"total_amount"`
	VoucherDiscount int64               `json:"voucher_discount"`
	FinalAmount     int64               `json:"final_amount"`
	FailureReason   *string             `json:"failure_reason,omitempty"`
	Lines           []OrderLineResponse `json:"lines,omitempty"`
	CreatedAt       time.Time           `json:"created_at"`
	PaidAt          *time.Time          `json:"paid_at,omitempty"`
}

// PopularItemResponse represents one entry of the best-seller ranking.
type PopularItemResponse struct {
	ItemID string `json:"item_id"`
	Name   string `json:"name"`
	Price  int64  `json:"price"`
	Sold   int64  `json:"sold"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// --- Conversion helpers ---

// FromOrder converts a domain order and its lines to an API response.
func FromOrder(o *order.Order, lines []order.Line) *OrderResponse {
	resp := &OrderResponse{
		ID:              o.ID.String(),
		UserID:          o.UserID.String(),
		Status:          string(o.Status),
		TotalAmount:     o.TotalAmount,
		VoucherDiscount: o.VoucherDiscount,
		FinalAmount:     o.FinalAmount,
		FailureReason:   o.FailureReason,
		CreatedAt:       o.CreatedAt,
		PaidAt:          o.PaidAt,
	}
	for _, l := range lines {
		lr := OrderLineResponse{
			ItemID:    l.ItemID.String(),
			Name:      l.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
		}
		if l.VoucherID != nil {
			vid := l.VoucherID.String()
			lr.VoucherID = &vid
		}
		resp.Lines = append(resp.Lines, lr)
	}
	return resp
}

// FromPopularItem converts a ranked item to an API response.
func FromPopularItem(p checkout.PopularItem) PopularItemResponse {
	return PopularItemResponse{
		ItemID: p.Item.ID.String(),
		Name:   p.Item.Name,
		Price:  p.Item.Price,
		Sold:   p.Sold,
	}
}
