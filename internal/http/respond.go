package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/catalog"
	"github.com/fjod/go_cart/storefront/internal/store"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleStoreError maps store and collaborator errors to HTTP responses.
func handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var httpStatus int
	var code string

	switch {
	case errors.Is(err, store.ErrInvalidCredentials):
		httpStatus = http.StatusUnauthorized
		code = "invalid_credentials"
	case errors.Is(err, store.ErrForbidden):
		httpStatus = http.StatusForbidden
		code = "forbidden"
	case errors.Is(err, store.ErrProductNotFound):
		httpStatus = http.StatusNotFound
		code = "product_not_found"
	case errors.Is(err, store.ErrEmptyCart):
		httpStatus = http.StatusBadRequest
		code = "empty_cart"
	case errors.Is(err, store.ErrInvalidShipping):
		httpStatus = http.StatusBadRequest
		code = "invalid_shipping"
	case errors.Is(err, store.ErrInvalidStatus):
		httpStatus = http.StatusBadRequest
		code = "invalid_status"
	case errors.Is(err, store.ErrInvalidProfile):
		httpStatus = http.StatusBadRequest
		code = "invalid_profile"
	case errors.Is(err, store.ErrSuperseded):
		httpStatus = http.StatusConflict
		code = "superseded"
	case errors.Is(err, catalog.ErrCatalogUnavailable), errors.Is(err, store.ErrClosed):
		httpStatus = http.StatusServiceUnavailable
		code = "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus = http.StatusGatewayTimeout
		code = "timeout"
	case errors.Is(err, context.Canceled):
		httpStatus = http.StatusRequestTimeout
		code = "request_cancelled"
	default:
		slog.ErrorContext(r.Context(), "internal error",
			"error", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", getRequestID(r.Context()),
		)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, httpStatus, code, err.Error())
}
