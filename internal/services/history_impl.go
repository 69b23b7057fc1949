package services

import (
	"net/http"
	"strconv"
	"time"

	"dartcam/internal/board"
	"dartcam/internal/database"
	"dartcam/internal/pipeline"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

// HitView is one persisted hit.
type HitView struct {
	ID         string    `json:"id"`
	Seq        int64     `json:"seq"`
	Game       string    `json:"game"`
	Number     int       `json:"number"`
	Multiplier int       `json:"multiplier"`
	Confidence float64   `json:"confidence"`
	Label      string    `json:"label"`
	Score      int       `json:"score"`
	Timestamp  time.Time `json:"timestamp"`
}

// CalibrationView is one persisted calibration.
type CalibrationView struct {
	ID          string            `json:"id"`
	Calibration board.Calibration `json:"calibration"`
	Manual      bool              `json:"manual"`
	Blended     bool              `json:"blended"`
	Source      string            `json:"source"`
	Rays        int               `json:"rays"`
	CreatedAt   time.Time         `json:"created_at"`
}

// HistoryImplementation lists persisted hits and calibrations
type HistoryImplementation struct {
	db *database.Database
}

// NewHistoryService creates a new history service implementation
func NewHistoryService(db *database.Database) *HistoryImplementation {
	return &HistoryImplementation{db: db}
}

// Hits lists hits newest first. Query: limit, game, since (RFC 3339).
func (h *HistoryImplementation) Hits(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseLimit(q.Get("limit"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	game := q.Get("game")
	if game != "" && !pipeline.Game(game).Valid() {
		writeError(r.Context(), w, badRequest("unknown game "+strconv.Quote(game)))
		return
	}

	var since *time.Time
	if s := q.Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			writeError(r.Context(), w, badRequest("since must be RFC 3339"))
			return
		}
		since = &t
	}

	recs, err := h.db.ListHits(game, since, limit)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	res := make([]*HitView, len(recs))
	for i, rec := range recs {
		res[i] = &HitView{
			ID:         rec.ID,
			Seq:        rec.Seq,
			Game:       rec.Game,
			Number:     rec.Number,
			Multiplier: rec.Multiplier,
			Confidence: rec.Confidence,
			Label:      rec.Label,
			Score:      rec.Score,
			Timestamp:  rec.Timestamp,
		}
	}
	writeJSON(r.Context(), w, http.StatusOK, res)
}

// Calibrations lists applied calibrations newest first.
func (h *HistoryImplementation) Calibrations(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	recs, err := h.db.ListCalibrations(limit)
	if err != nil {
		writeError(r.Context(), w, err)
		return
	}

	res := make([]*CalibrationView, len(recs))
	for i, rec := range recs {
		res[i] = &CalibrationView{
			ID:          rec.ID,
			Calibration: rec.Calibration,
			Manual:      rec.Manual,
			Blended:     rec.Blended,
			Source:      rec.Source,
			Rays:        rec.Rays,
			CreatedAt:   rec.CreatedAt,
		}
	}
	writeJSON(r.Context(), w, http.StatusOK, res)
}

func parseLimit(s string) (int, error) {
	if s == "" {
		return defaultHistoryLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, badRequest("limit must be a positive integer")
	}
	if n > maxHistoryLimit {
		n = maxHistoryLimit
	}
	return n, nil
}
