package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
)

// Identity is the authenticated caller as supplied by the identity provider.
// The core trusts these claims; it does not authenticate.
type Identity struct {
	UserID      string
	Email       string
	Name        string
	Role        string
	Institution string
}

// Roles the identity provider issues.
const (
	RoleUser        = "user"
	RoleInstitution = "institution"
)

// TokenValidator defines the interface for validating identity tokens.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Identity, error)
}

type identityKey struct{}

// GetIdentity retrieves the authenticated identity from the context.
func GetIdentity(ctx context.Context) (Identity, bool) {
	ident, ok := ctx.Value(identityKey{}).(Identity)
	return ident, ok
}

// GetUserID retrieves the authenticated user ID from the context.
func GetUserID(ctx context.Context) string {
	ident, _ := GetIdentity(ctx)
	return ident.UserID
}

// WithIdentity returns a context carrying the given identity. Exported for handler tests.
func WithIdentity(ctx context.Context, ident Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, ident)
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"` + description + `"}`))
}

// RequireAuth validates the bearer token and stores the caller identity in context.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				writeUnauthorized(w, "Missing bearer token")
				return
			}

			ident, err := validator.ValidateToken(token)
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", GetRequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx := WithIdentity(r.Context(), *ident)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireInstitution rejects callers whose identity is not an institution account.
// It must run after RequireAuth.
func RequireInstitution(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ident, ok := GetIdentity(ctx)
			if !ok || ident.Role != RoleInstitution || ident.Institution == "" {
				logger.WarnContext(ctx, "forbidden - institution role required",
					"role", ident.Role,
					"request_id", GetRequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"forbidden","error_description":"Institution account required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
