package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ralfizdigital/retailease-license/internal/models"
	"github.com/ralfizdigital/retailease-license/internal/services"
)

type contextKey string

const authContextKey contextKey = "auth"

// writeAuthError emits the §7 auth taxonomy envelope directly, ahead of the
// handler layer's respondError, since unauthenticated requests never reach a
// handler.
func writeAuthError(w http.ResponseWriter, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}

// TokenRequired implements the token_required contract: missing/malformed
// Authorization header is AUTH_REQUIRED, a token string absent from the
// store is INVALID_TOKEN, and a token that exists but is inactive, expired,
// or bound to a no-longer-valid License is TOKEN_EXPIRED.
func TokenRequired(tokens *services.TokenAuthenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "AUTH_REQUIRED", "authorization header is required")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				writeAuthError(w, "AUTH_REQUIRED", "authorization header must be a bearer token")
				return
			}

			authCtx, err := tokens.Resolve(r.Context(), parts[1])
			if err != nil {
				switch {
				case errors.Is(err, services.ErrTokenExpired):
					writeAuthError(w, "TOKEN_EXPIRED", "token is expired or inactive")
				default:
					writeAuthError(w, "INVALID_TOKEN", "token not found")
				}
				return
			}

			ctx := context.WithValue(r.Context(), authContextKey, authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the resolved AuthContext a TokenRequired-gated handler
// was invoked with.
func FromContext(ctx context.Context) *services.AuthContext {
	auth, _ := ctx.Value(authContextKey).(*services.AuthContext)
	return auth
}

// License is a convenience accessor over FromContext.
func License(ctx context.Context) *models.License {
	if auth := FromContext(ctx); auth != nil {
		return auth.License
	}
	return nil
}

// Counter is a convenience accessor over FromContext; nil if the caller's
// token is not yet bound to a Counter.
func Counter(ctx context.Context) *models.Counter {
	if auth := FromContext(ctx); auth != nil {
		return auth.Counter
	}
	return nil
}
