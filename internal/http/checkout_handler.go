package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type CheckoutHandler struct {
	timeout time.Duration
}

func NewCheckoutHandler(timeout time.Duration) *CheckoutHandler {
	return &CheckoutHandler{timeout: timeout}
}

type PlaceOrderRequestDTO struct {
	Shipping domain.ShippingDetails `json:"shipping"`
}

type PlaceOrderResponseDTO struct {
	OrderID string       `json:"order_id"`
	Order   domain.Order `json:"order"`
}

// GET /api/v1/checkout/quote
func (h *CheckoutHandler) Quote(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, storeFromContext(r.Context()).Quote())
}

// POST /api/v1/checkout
func (h *CheckoutHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req PlaceOrderRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	order, err := storeFromContext(r.Context()).PlaceOrder(ctx, req.Shipping)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, PlaceOrderResponseDTO{OrderID: order.ID, Order: order})
}
