package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goahttp "goa.design/goa/v3/http"

	"dartcam/internal/auth"
)

// ContextKey is a custom type for context keys
type ContextKey string

// UserContextKey is the key for storing user claims in context
const UserContextKey ContextKey = "user"

type errorBody struct {
	Error string `json:"error"`
}

// AuthMiddleware requires a valid bearer token on every request whose path
// is not in public. It does nothing when authentication is disabled.
func AuthMiddleware(authenticator *auth.Authenticator, public ...string) func(http.Handler) http.Handler {
	open := make(map[string]bool, len(public))
	for _, p := range public {
		open[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !authenticator.IsEnabled() {
				next.ServeHTTP(w, r)
				return
			}

			tokenString, ok := bearerToken(r)
			if open[r.URL.Path] {
				// Claims are attached when present but not required.
				if ok {
					if claims, err := authenticator.ValidateToken(tokenString); err == nil {
						r = r.WithContext(context.WithValue(r.Context(), UserContextKey, claims))
					}
				}
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				unauthorized(r.Context(), w, "missing or malformed authorization header")
				return
			}

			claims, err := authenticator.ValidateToken(tokenString)
			if err != nil {
				if errors.Is(err, auth.ErrExpiredToken) {
					unauthorized(r.Context(), w, "token has expired")
				} else {
					unauthorized(r.Context(), w, "invalid token")
				}
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter for websocket clients that cannot set headers.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		t := r.URL.Query().Get("token")
		return t, t != ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func unauthorized(ctx context.Context, w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	goahttp.ResponseEncoder(ctx, w).Encode(errorBody{Error: msg})
}

// GetUserFromContext retrieves user claims from the request context
func GetUserFromContext(ctx context.Context) *auth.Claims {
	claims, ok := ctx.Value(UserContextKey).(*auth.Claims)
	if !ok {
		return nil
	}
	return claims
}
