package services

import (
	"context"
	"net/http"
	"time"

	"dartcam/internal/database"
)

// HealthImplementation serves the liveness and readiness probes
type HealthImplementation struct {
	db *database.Database
}

// NewHealthService creates a new health service implementation
func NewHealthService(db *database.Database) *HealthImplementation {
	return &HealthImplementation{db: db}
}

// Healthz implements the liveness probe
func (h *HealthImplementation) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readyz reports ready once the database answers.
func (h *HealthImplementation) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.db.Ping(ctx); err != nil {
			writeError(r.Context(), w, unavailable("database not reachable: "+err.Error()))
			return
		}
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]string{"status": "ready"})
}
