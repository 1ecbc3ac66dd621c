package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type ctxKey string

const (
	requestIDKey ctxKey = "request_id"
	storeKey     ctxKey = "store"
)

// ProfileHeader selects the client profile a request acts for.
const ProfileHeader = "X-Profile-ID"

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ProfileMiddleware resolves the store for the request's profile and puts it
// into the request context. A missing header means the default profile.
func ProfileMiddleware(registry *store.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, err := registry.Get(r.Context(), r.Header.Get(ProfileHeader))
			if err != nil {
				handleStoreError(w, r, err)
				return
			}

			ctx := context.WithValue(r.Context(), storeKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger logs one line per request.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.InfoContext(r.Context(), "http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", getRequestID(r.Context()),
				"profile", r.Header.Get(ProfileHeader),
			)
		})
	}
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func storeFromContext(ctx context.Context) *store.Store {
	s, _ := ctx.Value(storeKey).(*store.Store)
	return s
}
