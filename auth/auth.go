// Package auth identifies the signed-in user behind an API request.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
)

// ErrUnauthenticated is returned when a request carries no valid session.
var ErrUnauthenticated = errors.New("auth: unauthenticated")

// Verifier extracts the caller's user id from a request.
type Verifier interface {
	Verify(r *http.Request) (string, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(r *http.Request) (string, error)

// Verify calls f(r).
func (f VerifierFunc) Verify(r *http.Request) (string, error) { return f(r) }

type contextKey string

const userIDKey contextKey = "user_id"

// WithUserID returns a copy of ctx carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// UserID returns the user id stored by Middleware, or "".
func UserID(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}

// Middleware rejects requests v cannot verify with 401 and stores the
// caller's user id in the context of the rest.
func Middleware(v Verifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := v.Verify(r)
			if err != nil || userID == "" {
				logger.DebugContext(r.Context(), "request unauthenticated",
					"path", r.URL.Path,
					"error", err,
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}
