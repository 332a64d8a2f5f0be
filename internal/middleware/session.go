package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/windfall/storyspeak/pkg/response"
)

type contextKey string

const SessionIDKey contextKey = "session_id"

// SessionLookup reports whether a session exists.
type SessionLookup interface {
	Exists(ctx context.Context, id string) bool
}

// Session returns a middleware that resolves the {id} URL parameter to a
// live session and stores its ID in the request context.
func Session(sessions SessionLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := chi.URLParam(r, "id")
			if id == "" || !sessions.Exists(r.Context(), id) {
				response.NotFound(w, "session not found")
				return
			}

			ctx := context.WithValue(r.Context(), SessionIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSessionID extracts the session ID from the request context.
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(SessionIDKey).(string); ok {
		return id
	}
	return ""
}
