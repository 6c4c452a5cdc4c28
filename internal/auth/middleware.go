package auth

import (
	"context"
	"net/http"
)

// contextKey is an unexported type used for context keys in this package.
// Only this package can create a key of this type, so nobody else can read
// or shadow the values stored under it.
type contextKey string

const sessionKey contextKey = "session"

// SessionSource is what the middleware needs from a Manager.
type SessionSource interface {
	CurrentSession(ctx context.Context) (*Session, bool)
}

// RequireSession enforces an active session on protected routes.
//
// The session lives in the Manager, not in the request: this API fronts one
// local user, and the browser signs in through POST /api/session. If nobody
// is signed in (or the session expired) the request stops with 401.
//
// Chi applies middlewares in a chain: req → M1 → M2 → Handler → M2 → M1 → resp
func RequireSession(sessions SessionSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := sessions.CurrentSession(r.Context())
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized","message":"user not authenticated"}`))
				return
			}

			ctx := context.WithValue(r.Context(), sessionKey, s)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionFromContext retrieves the session RequireSession stored.
// Returns (nil, false) outside a protected route.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(sessionKey).(*Session)
	return s, ok && s != nil
}
