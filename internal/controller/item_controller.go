package controller

import (
	"net/http"
	"strconv"

	"github.com/storefrontlabs/checkout/internal/application/checkout"
)

type ItemController struct {
	popularItems *checkout.PopularItemsUseCase
}

func NewItemController(popularItems *checkout.PopularItemsUseCase) *ItemController {
	return &ItemController{popularItems: popularItems}
}

// Popular serves the best-seller ranking.
func (h *ItemController) Popular(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.ParseInt(r.URL.Query().Get("limit"), 10, 64)

	ranked, err := h.popularItems.Execute(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := make([]PopularItemResponse, 0, len(ranked))
	for _, p := range ranked {
		resp = append(resp, FromPopularItem(p))
	}
	writeJSON(w, http.StatusOK, resp)
}
