package services

import (
	"errors"
	"net/http"

	"dartcam/internal/auth"
	"dartcam/internal/middleware"
)

// LoginPayload is the body of POST /api/v1/auth/login.
type LoginPayload struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResult carries the issued token.
type LoginResult struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

// AuthStatus reports whether login is required and who is logged in.
type AuthStatus struct {
	Enabled       bool    `json:"enabled"`
	Authenticated bool    `json:"authenticated"`
	Username      *string `json:"username,omitempty"`
}

// AuthImplementation implements the auth service
type AuthImplementation struct {
	authenticator *auth.Authenticator
}

// NewAuthService creates a new auth service implementation
func NewAuthService(authenticator *auth.Authenticator) *AuthImplementation {
	return &AuthImplementation{authenticator: authenticator}
}

// Login authenticates the operator and returns a JWT token
func (a *AuthImplementation) Login(w http.ResponseWriter, r *http.Request) {
	var p LoginPayload
	if err := decodeJSON(r, &p); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	token, expiresAt, err := a.authenticator.Authenticate(p.Username, p.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(r.Context(), w, unauthorized("Invalid username or password"))
		return
	case errors.Is(err, auth.ErrAuthDisabled):
		writeError(r.Context(), w, badRequest("Authentication is disabled"))
		return
	case err != nil:
		writeError(r.Context(), w, err)
		return
	}

	writeJSON(r.Context(), w, http.StatusOK, &LoginResult{Token: token, ExpiresAt: expiresAt})
}

// Status returns the current authentication status
func (a *AuthImplementation) Status(w http.ResponseWriter, r *http.Request) {
	res := &AuthStatus{Enabled: a.authenticator.IsEnabled()}
	if claims := middleware.GetUserFromContext(r.Context()); claims != nil {
		res.Authenticated = true
		res.Username = &claims.Username
	}
	writeJSON(r.Context(), w, http.StatusOK, res)
}
