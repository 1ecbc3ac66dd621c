package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type SessionHandler struct {
	timeout time.Duration
}

func NewSessionHandler(timeout time.Duration) *SessionHandler {
	return &SessionHandler{timeout: timeout}
}

type LoginRequestDTO struct {
	Email string `json:"email"`
}

type SessionResponse struct {
	Authenticated bool         `json:"authenticated"`
	User          *domain.User `json:"user"`
	Loading       bool         `json:"loading"`
	CartCount     int          `json:"cart_count"`
}

// POST /api/v1/session/login
func (h *SessionHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var req LoginRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		respondError(w, http.StatusBadRequest, "missing_email", "email is required")
		return
	}

	s := storeFromContext(r.Context())
	if _, err := s.Login(ctx, email); err != nil {
		handleStoreError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, sessionResponse(s))
}

// POST /api/v1/session/logout
func (h *SessionHandler) Logout(w http.ResponseWriter, r *http.Request) {
	s := storeFromContext(r.Context())
	s.Logout(r.Context())
	respondJSON(w, http.StatusOK, sessionResponse(s))
}

// GET /api/v1/session
func (h *SessionHandler) Current(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, sessionResponse(storeFromContext(r.Context())))
}

type sessionView interface {
	User() (domain.User, bool)
	Loading() bool
	CartCount() int
}

func sessionResponse(s sessionView) SessionResponse {
	resp := SessionResponse{Loading: s.Loading(), CartCount: s.CartCount()}
	if u, ok := s.User(); ok {
		resp.Authenticated = true
		resp.User = &u
	}
	return resp
}
