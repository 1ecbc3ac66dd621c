package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

const maxQuestionLength = 500

type ProductHandler struct {
	timeout time.Duration
}

func NewProductHandler(timeout time.Duration) *ProductHandler {
	return &ProductHandler{timeout: timeout}
}

type ProductsResponse struct {
	Products []domain.Product `json:"products"`
}

type CategoriesResponse struct {
	Categories []string `json:"categories"`
}

type AskRequestDTO struct {
	Question string `json:"question"`
}

type ReviewSummaryResponse struct {
	ProductID string `json:"product_id"`
	Summary   string `json:"summary"`
}

// GET /api/v1/products?category=&q=
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	products, err := storeFromContext(r.Context()).FilterProducts(ctx, catalog.Filter{
		Category: r.URL.Query().Get("category"),
		Query:    r.URL.Query().Get("q"),
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, &ProductsResponse{Products: products})
}

// GET /api/v1/products/{id}
func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	p, err := storeFromContext(r.Context()).Product(ctx, chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, p)
}

// GET /api/v1/categories
func (h *ProductHandler) Categories(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	categories, err := storeFromContext(r.Context()).Categories(ctx)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, &CategoriesResponse{Categories: categories})
}

// POST /api/v1/products/{id}/ask
func (h *ProductHandler) Ask(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req AskRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	question := strings.TrimSpace(req.Question)
	if question == "" {
		respondError(w, http.StatusBadRequest, "missing_question", "question is required")
		return
	}
	if len(question) > maxQuestionLength {
		respondError(w, http.StatusBadRequest, "question_too_long", "question must be at most 500 characters")
		return
	}

	insight, err := storeFromContext(r.Context()).AskAssistant(ctx, chi.URLParam(r, "id"), question)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, insight)
}

// GET /api/v1/products/{id}/review-summary
func (h *ProductHandler) ReviewSummary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	productID := chi.URLParam(r, "id")
	summary, err := storeFromContext(r.Context()).ReviewSummary(ctx, productID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, ReviewSummaryResponse{ProductID: productID, Summary: summary})
}
