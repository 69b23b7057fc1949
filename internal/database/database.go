package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"dartcam/internal/board"
	"dartcam/internal/logger"
)

// Database handles SQLite persistence of calibrations, hits and settings.
type Database struct {
	db *sql.DB
}

// CalibrationRecord is one applied board calibration.
type CalibrationRecord struct {
	ID          string
	Calibration board.Calibration
	Manual      bool
	Blended     bool
	Source      string
	Rays        int
	CreatedAt   time.Time
}

// HitRecord is one classified landing.
type HitRecord struct {
	ID         string
	Seq        int64
	Game       string
	Number     int
	Multiplier int
	Confidence float64
	Label      string
	Score      int
	X          float64
	Y          float64
	Timestamp  time.Time
}

// New opens (and creates) the database at dbPath.
func New(dbPath string) (*Database, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return &Database{db: db}, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// Ping checks the connection.
func (d *Database) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate creates the schema.
func (d *Database) Migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS calibrations (
			id TEXT PRIMARY KEY,
			cx REAL NOT NULL,
			cy REAL NOT NULL,
			rx REAL NOT NULL,
			ry REAL NOT NULL,
			angle REAL NOT NULL,
			rotation REAL NOT NULL,
			manual INTEGER DEFAULT 0,
			blended INTEGER DEFAULT 0,
			source TEXT,
			rays INTEGER DEFAULT 0,
			created_at DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS hits (
			id TEXT PRIMARY KEY,
			seq INTEGER NOT NULL,
			game TEXT NOT NULL,
			number INTEGER NOT NULL,
			multiplier INTEGER NOT NULL,
			confidence REAL NOT NULL,
			label TEXT NOT NULL,
			score INTEGER NOT NULL,
			x REAL,
			y REAL,
			timestamp DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS app_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_calibrations_time ON calibrations(created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_hits_game_time ON hits(game, timestamp DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_hits_time ON hits(timestamp DESC)`,
	}

	for _, migration := range migrations {
		if _, err := d.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	logger.Debug(nil, "[Database] migrations completed")
	return nil
}

// SaveCalibration stores an applied calibration. Invalid boards are refused.
func (d *Database) SaveCalibration(rec *CalibrationRecord) error {
	if !rec.Calibration.Valid() {
		return fmt.Errorf("refusing to save invalid calibration %+v", rec.Calibration)
	}
	c := rec.Calibration
	query := `INSERT INTO calibrations (id, cx, cy, rx, ry, angle, rotation, manual, blended, source, rays, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := d.db.Exec(query, rec.ID, c.CX, c.CY, c.RX, c.RY, c.Angle, c.Rotation,
		boolInt(rec.Manual), boolInt(rec.Blended), rec.Source, rec.Rays, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save calibration: %w", err)
	}
	return nil
}

// LatestCalibration returns the most recent calibration, or nil if none exists.
func (d *Database) LatestCalibration() (*CalibrationRecord, error) {
	recs, err := d.ListCalibrations(1)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return recs[0], nil
}

// ListCalibrations returns calibrations newest first.
func (d *Database) ListCalibrations(limit int) ([]*CalibrationRecord, error) {
	query := `SELECT id, cx, cy, rx, ry, angle, rotation, manual, blended, source, rays, created_at
		FROM calibrations ORDER BY created_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calibrations: %w", err)
	}
	defer rows.Close()

	var recs []*CalibrationRecord
	for rows.Next() {
		var rec CalibrationRecord
		var manual, blended int
		c := &rec.Calibration
		if err := rows.Scan(&rec.ID, &c.CX, &c.CY, &c.RX, &c.RY, &c.Angle, &c.Rotation,
			&manual, &blended, &rec.Source, &rec.Rays, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan calibration: %w", err)
		}
		rec.Manual = manual == 1
		rec.Blended = blended == 1
		recs = append(recs, &rec)
	}
	return recs, rows.Err()
}

// SaveHit stores a hit. Saving the same ID twice is a no-op.
func (d *Database) SaveHit(hit *HitRecord) error {
	query := `INSERT INTO hits (id, seq, game, number, multiplier, confidence, label, score, x, y, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`

	_, err := d.db.Exec(query, hit.ID, hit.Seq, hit.Game, hit.Number, hit.Multiplier, hit.Confidence,
		hit.Label, hit.Score, hit.X, hit.Y, hit.Timestamp.UTC())
	if err != nil {
		return fmt.Errorf("failed to save hit: %w", err)
	}
	return nil
}

// ListHits returns hits newest first, optionally filtered by game and start time.
func (d *Database) ListHits(game string, since *time.Time, limit int) ([]*HitRecord, error) {
	query := `SELECT id, seq, game, number, multiplier, confidence, label, score, x, y, timestamp
		FROM hits WHERE 1=1`
	args := []any{}

	if game != "" {
		query += " AND game = ?"
		args = append(args, game)
	}
	if since != nil {
		query += " AND timestamp >= ?"
		args = append(args, since.UTC())
	}

	query += " ORDER BY timestamp DESC, seq DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list hits: %w", err)
	}
	defer rows.Close()

	var hits []*HitRecord
	for rows.Next() {
		var h HitRecord
		if err := rows.Scan(&h.ID, &h.Seq, &h.Game, &h.Number, &h.Multiplier, &h.Confidence,
			&h.Label, &h.Score, &h.X, &h.Y, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan hit: %w", err)
		}
		hits = append(hits, &h)
	}
	return hits, rows.Err()
}

// DeleteHitsBefore deletes hits older than before.
func (d *Database) DeleteHitsBefore(before time.Time) (int64, error) {
	result, err := d.db.Exec("DELETE FROM hits WHERE timestamp < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old hits: %w", err)
	}
	return result.RowsAffected()
}

// SaveConfig saves a configuration value
func (d *Database) SaveConfig(key, value string) error {
	query := `INSERT INTO app_config (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`

	if _, err := d.db.Exec(query, key, value); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}
	return nil
}

// GetConfig returns a configuration value, or "" if unset.
func (d *Database) GetConfig(key string) (string, error) {
	var value string
	err := d.db.QueryRow("SELECT value FROM app_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get config: %w", err)
	}
	return value, nil
}

// ListConfigs returns all configuration values
func (d *Database) ListConfigs() (map[string]string, error) {
	rows, err := d.db.Query("SELECT key, value FROM app_config")
	if err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	defer rows.Close()

	configs := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan config: %w", err)
		}
		configs[key] = value
	}
	return configs, rows.Err()
}

// DeleteConfig deletes a configuration value
func (d *Database) DeleteConfig(key string) error {
	if _, err := d.db.Exec("DELETE FROM app_config WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete config: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
