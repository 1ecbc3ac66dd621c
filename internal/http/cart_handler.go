package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

type CartHandler struct {
	timeout time.Duration
}

func NewCartHandler(timeout time.Duration) *CartHandler {
	return &CartHandler{timeout: timeout}
}

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type CartResponse struct {
	Items   []domain.CartItem `json:"items"`
	Count   int               `json:"count"`
	Total   decimal.Decimal   `json:"total"`
	Updated bool              `json:"updated"`
	Notice  *store.Notice     `json:"notice,omitempty"`
}

func cartResponse(s *store.Store, updated bool, notice *store.Notice) CartResponse {
	return CartResponse{
		Items:   s.Cart(),
		Count:   s.CartCount(),
		Total:   s.CartTotal(),
		Updated: updated,
		Notice:  notice,
	}
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, cartResponse(storeFromContext(r.Context()), false, nil))
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	s := storeFromContext(r.Context())
	notice, err := s.AddToCart(ctx, productID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, cartResponse(s, true, &notice))
}

// PUT /api/v1/cart/items/{product_id}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "product_id")

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	// removing a line goes through DELETE
	if req.Quantity < 1 {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be at least 1")
		return
	}

	s := storeFromContext(r.Context())
	notice, updated := s.UpdateQuantity(ctx, productID, req.Quantity)

	var n *store.Notice
	if updated {
		n = &notice
	}
	respondJSON(w, http.StatusOK, cartResponse(s, updated, n))
}

// DELETE /api/v1/cart/items/{product_id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s := storeFromContext(r.Context())
	removed := s.RemoveFromCart(ctx, chi.URLParam(r, "product_id"))

	respondJSON(w, http.StatusOK, cartResponse(s, removed, nil))
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	s := storeFromContext(r.Context())
	s.ClearCart(ctx)

	respondJSON(w, http.StatusOK, cartResponse(s, true, nil))
}
