package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/provsalt/eldercare/internal/metrics"
	"github.com/provsalt/eldercare/internal/models"
	"github.com/provsalt/eldercare/internal/store"
	"github.com/provsalt/eldercare/internal/token"
)

type contextKey string

const userContextKey contextKey = "user"

// Auth gates requests behind bearer-token verification. On success the
// resolved user is attached to the request context; the identity is
// re-fetched from the store on every request so that a structurally valid
// token for a deleted account is still rejected.
type Auth struct {
	verifier *token.Issuer
	db       store.DataStore
}

// NewAuth creates the authorization middleware.
func NewAuth(verifier *token.Issuer, db store.DataStore) *Auth {
	return &Auth{verifier: verifier, db: db}
}

// RequireAuth verifies the Authorization header and resolves the caller.
//
// Missing header -> 401. Header not exactly "Bearer <token>" -> 422.
// Invalid or expired token -> 401. Deleted account -> 401.
func (m *Auth) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			metrics.AuthFailures.WithLabelValues("missing").Inc()
			jsonError(w, http.StatusUnauthorized, "no token provided")
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			metrics.AuthFailures.WithLabelValues("malformed").Inc()
			jsonError(w, http.StatusUnprocessableEntity, "malformed authorization header")
			return
		}

		identity, err := m.verifier.Verify(parts[1])
		if err != nil {
			metrics.AuthFailures.WithLabelValues("invalid").Inc()
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		user, err := m.db.GetUserByID(r.Context(), identity.UserID)
		if err != nil {
			// A valid token for a deleted account is still unauthorized.
			metrics.AuthFailures.WithLabelValues("stale_account").Inc()
			jsonError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin rejects authenticated callers that do not hold the admin
// role. It must be mounted after RequireAuth.
func (m *Auth) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := UserFromContext(r.Context())
		if user == nil {
			jsonError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		if !user.IsAdmin() {
			jsonError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UserFromContext retrieves the authenticated user from the request
// context, or nil when the request did not pass RequireAuth.
func UserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(userContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// WithUser returns a context carrying the given user. Exposed for handler
// tests that bypass the middleware.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
