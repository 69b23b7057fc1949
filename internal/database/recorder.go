package database

import (
	"context"
	"encoding/json"
	"fmt"

	"dartcam/internal/logger"
	"dartcam/internal/pipeline"
)

// Recorder persists hit and calibration events from the bus. Writes happen
// on its own goroutine so the engine loop never waits on disk.
type Recorder struct {
	db     *Database
	events <-chan pipeline.Event
	unsub  func()
	done   chan struct{}
}

// NewRecorder subscribes to bus. Call Run to start writing.
func NewRecorder(db *Database, bus *pipeline.EventBus) *Recorder {
	ch, unsub := bus.SubscribeChannel(256)
	return &Recorder{db: db, events: ch, unsub: unsub, done: make(chan struct{})}
}

// Run writes events until ctx is done or the bus closes.
func (r *Recorder) Run(ctx context.Context) {
	defer close(r.done)
	defer r.unsub()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.events:
			if !ok {
				return
			}
			if err := r.record(ev); err != nil {
				logger.Error(logger.Fields{"type": ev.Type, "error": err.Error()}, "[Recorder] failed to persist event")
			}
		}
	}
}

// Done is closed when Run returns.
func (r *Recorder) Done() <-chan struct{} { return r.done }

func (r *Recorder) record(ev pipeline.Event) error {
	switch ev.Type {
	case pipeline.EventHit:
		h := ev.Hit
		return r.db.SaveHit(&HitRecord{
			ID:         h.ID,
			Seq:        int64(h.Seq),
			Game:       string(h.Game),
			Number:     h.Hit.Number,
			Multiplier: h.Hit.Multiplier,
			Confidence: h.Hit.Confidence,
			Label:      h.Label,
			Score:      h.Score,
			X:          h.X,
			Y:          h.Y,
			Timestamp:  h.Timestamp,
		})
	case pipeline.EventCalibration:
		c := ev.Calibration
		return r.db.SaveCalibration(&CalibrationRecord{
			ID:          c.ID,
			Calibration: c.Calibration,
			Manual:      c.Manual,
			Blended:     c.Blended,
			Source:      c.Source,
			Rays:        c.Rays,
			CreatedAt:   c.Timestamp,
		})
	}
	return nil
}

// SaveJSON stores v under key as JSON.
func (d *Database) SaveJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return d.SaveConfig(key, string(raw))
}

// LoadJSON decodes the value under key into v. It reports false when the
// key is unset.
func (d *Database) LoadJSON(key string, v any) (bool, error) {
	raw, err := d.GetConfig(key)
	if err != nil || raw == "" {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return true, nil
}
