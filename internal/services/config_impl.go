package services

import (
	"errors"
	"net/http"
	"time"

	"dartcam/internal/database"
	"dartcam/internal/engine"
	"dartcam/internal/logger"
	"dartcam/internal/pipeline"
)

// SettingsKey is the app_config key the engine tunables are stored under.
const SettingsKey = "engine.settings"

// SettingsBody is the wire form of engine.Settings. On PUT every field is
// optional and only the given ones change.
type SettingsBody struct {
	LensStrength         *float64 `json:"lens_strength,omitempty"`
	FallbackRadius       *float64 `json:"fallback_radius,omitempty"`
	SampleIntervalMS     *int64   `json:"sample_interval_ms,omitempty"`
	RecalIntervalSeconds *float64 `json:"recal_interval_seconds,omitempty"`
	BlendFactor          *float64 `json:"blend_factor,omitempty"`
	Game                 *string  `json:"game,omitempty"`
}

func settingsBody(s engine.Settings) *SettingsBody {
	ms := s.SampleInterval.Milliseconds()
	recal := s.RecalInterval.Seconds()
	game := string(s.Game)
	return &SettingsBody{
		LensStrength:         &s.LensStrength,
		FallbackRadius:       &s.FallbackRadius,
		SampleIntervalMS:     &ms,
		RecalIntervalSeconds: &recal,
		BlendFactor:          &s.BlendFactor,
		Game:                 &game,
	}
}

// apply overlays the set fields of b onto s.
func (b *SettingsBody) apply(s engine.Settings) engine.Settings {
	if b.LensStrength != nil {
		s.LensStrength = *b.LensStrength
	}
	if b.FallbackRadius != nil {
		s.FallbackRadius = *b.FallbackRadius
	}
	if b.SampleIntervalMS != nil {
		s.SampleInterval = time.Duration(*b.SampleIntervalMS) * time.Millisecond
	}
	if b.RecalIntervalSeconds != nil {
		s.RecalInterval = time.Duration(*b.RecalIntervalSeconds * float64(time.Second))
	}
	if b.BlendFactor != nil {
		s.BlendFactor = *b.BlendFactor
	}
	if b.Game != nil {
		s.Game = pipeline.Game(*b.Game)
	}
	return s
}

// ConfigImplementation reads and updates engine tunables
type ConfigImplementation struct {
	engine *engine.Engine
	db     *database.Database
}

// NewConfigService creates a new config service implementation
func NewConfigService(e *engine.Engine, db *database.Database) *ConfigImplementation {
	return &ConfigImplementation{engine: e, db: db}
}

// Get returns the current settings.
func (c *ConfigImplementation) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusOK, settingsBody(c.engine.Settings()))
}

// Update applies a partial settings change and persists the result.
func (c *ConfigImplementation) Update(w http.ResponseWriter, r *http.Request) {
	var body SettingsBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(r.Context(), w, err)
		return
	}

	next := body.apply(c.engine.Settings())
	if err := c.engine.Apply(next); err != nil {
		if errors.Is(err, engine.ErrInvalidSetting) {
			writeError(r.Context(), w, badRequest(err.Error()))
			return
		}
		writeError(r.Context(), w, err)
		return
	}

	applied := c.engine.Settings()
	if c.db != nil {
		if err := c.db.SaveJSON(SettingsKey, applied); err != nil {
			logger.Error(logger.Fields{"error": err.Error()}, "[API] failed to persist settings")
		}
	}
	logger.Info(logger.Fields{
		"lens":   applied.LensStrength,
		"radius": applied.FallbackRadius,
		"sample": applied.SampleInterval.String(),
		"recal":  applied.RecalInterval.String(),
		"blend":  applied.BlendFactor,
		"game":   applied.Game,
	}, "[API] settings updated")

	writeJSON(r.Context(), w, http.StatusOK, settingsBody(applied))
}

// LoadSettings returns persisted settings over defaults. Invalid stored
// values are ignored.
func LoadSettings(db *database.Database, defaults engine.Settings) engine.Settings {
	var stored engine.Settings
	ok, err := db.LoadJSON(SettingsKey, &stored)
	if err != nil {
		logger.Warn(logger.Fields{"error": err.Error()}, "[Config] ignoring stored settings")
		return defaults
	}
	if !ok {
		return defaults
	}
	if err := stored.Validate(); err != nil {
		logger.Warn(logger.Fields{"error": err.Error()}, "[Config] stored settings out of range, using defaults")
		return defaults
	}
	return stored
}
