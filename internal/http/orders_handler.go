package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

type OrdersHandler struct {
	timeout time.Duration
}

func NewOrdersHandler(timeout time.Duration) *OrdersHandler {
	return &OrdersHandler{timeout: timeout}
}

type OrdersResponse struct {
	Orders []domain.Order `json:"orders"`
}

type UpdateStatusRequestDTO struct {
	Status domain.OrderStatus `json:"status"`
}

type UpdateStatusResponseDTO struct {
	OrderID string             `json:"order_id"`
	Status  domain.OrderStatus `json:"status"`
	Updated bool               `json:"updated"`
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, OrdersResponse{Orders: storeFromContext(r.Context()).Orders()})
}

// GET /api/v1/orders/{order_id}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "order_id")

	order, ok := storeFromContext(r.Context()).Order(orderID)
	if !ok {
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
		return
	}

	respondJSON(w, http.StatusOK, order)
}

// PATCH /api/v1/orders/{order_id}
func (h *OrdersHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	orderID := chi.URLParam(r, "order_id")

	var req UpdateStatusRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	updated, err := storeFromContext(r.Context()).UpdateOrderStatus(ctx, orderID, req.Status)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, UpdateStatusResponseDTO{OrderID: orderID, Status: req.Status, Updated: updated})
}

// GET /api/v1/admin/stats
func (h *OrdersHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := storeFromContext(r.Context()).Stats()
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, stats)
}
