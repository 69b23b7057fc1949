package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"dartcam/internal/auth"
)

func TestAuthMiddleware(t *testing.T) {
	a, err := auth.NewAuthenticator(auth.Options{Enabled: true, Password: "pw", JWTSecret: "k"})
	if err != nil {
		t.Fatal(err)
	}
	token, _, err := a.Authenticate("admin", "pw")
	if err != nil {
		t.Fatal(err)
	}

	var seen string
	h := AuthMiddleware(a, "/healthz")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := GetUserFromContext(r.Context()); c != nil {
			seen = c.Username
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"public path", "/healthz", "", http.StatusNoContent},
		{"missing header", "/api/v1/status", "", http.StatusUnauthorized},
		{"wrong scheme", "/api/v1/status", "Basic " + token, http.StatusUnauthorized},
		{"bad token", "/api/v1/status", "Bearer nope", http.StatusUnauthorized},
		{"valid", "/api/v1/status", "Bearer " + token, http.StatusNoContent},
		{"query token", "/ws/hits?token=" + token, "", http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
	if seen != "admin" {
		t.Errorf("claims username = %q", seen)
	}
}

func TestAuthMiddlewareDisabled(t *testing.T) {
	a, _ := auth.NewAuthenticator(auth.Options{})
	h := AuthMiddleware(a)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
}
