package controller

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/storefrontlabs/checkout/internal/application/checkout"
)

type CheckoutController struct {
	createOrder *checkout.CreateOrderUseCase
}

func NewCheckoutController(createOrder *checkout.CreateOrderUseCase) *CheckoutController {
	return &CheckoutController{createOrder: createOrder}
}

// Create places an order and returns it in the pending state. The saga
// settles it to paid or failed asynchronously; clients poll the order.
func (h *CheckoutController) Create(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid user id", Code: "invalid_id"})
		return
	}

	items := make([]checkout.LineRequest, 0, len(req.Items))
	for _, it := range req.Items {
		itemID, err := uuid.Parse(it.ItemID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid item id", Code: "invalid_id"})
			return
		}
		items = append(items, checkout.LineRequest{ItemID: itemID, Quantity: it.Quantity})
	}

	var voucherID *uuid.UUID
	if req.VoucherID != nil {
		vid, err := uuid.Parse(*req.VoucherID)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid voucher id", Code: "invalid_id"})
			return
		}
		voucherID = &vid
	}

	resp, err := h.createOrder.Execute(r.Context(), checkout.CreateOrderRequest{
		UserID:    userID,
		Items:     items,
		VoucherID: voucherID,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, FromOrder(resp.Order, resp.Lines))
}
