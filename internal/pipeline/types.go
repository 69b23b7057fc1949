package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"dartcam/internal/board"
	"dartcam/internal/scoring"
	"dartcam/internal/vision"
)

// ErrNoFrame is returned by a source that has not produced a frame yet.
var ErrNoFrame = errors.New("no frame available")

// FrameData is one captured frame. Data holds the encoded image as delivered
// by the camera; Image is set by sources that already hold decoded pixels.
type FrameData struct {
	Seq       uint64
	Timestamp time.Time
	Data      []byte
	Image     *vision.Frame
}

// Decode returns the frame scaled to the working width.
func (f *FrameData) Decode(width int) (*vision.Frame, error) {
	if f.Image != nil {
		if width <= 0 || f.Image.Width <= width {
			return f.Image.Clone(), nil
		}
		return vision.Resize(f.Image.Image(), width), nil
	}
	if len(f.Data) == 0 {
		return nil, ErrNoFrame
	}
	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode frame %d: %w", f.Seq, err)
	}
	return vision.Resize(img, width), nil
}

// CaptureStats contains frame capture statistics.
type CaptureStats struct {
	FramesCaptured    uint64    `json:"frames_captured"`
	FramesDropped     uint64    `json:"frames_dropped"`
	LastFrameTime     time.Time `json:"last_frame_time"`
	ReconnectAttempts uint64    `json:"reconnect_attempts"`
}

// Game is the active drill context attached to every hit.
type Game string

const (
	GameTons   Game = "tons"
	GameLadder Game = "ladder"
	GameJDC    Game = "jdc"
	GameATC    Game = "atc"
)

// Valid reports whether g is a known drill.
func (g Game) Valid() bool {
	switch g {
	case GameTons, GameLadder, GameJDC, GameATC:
		return true
	}
	return false
}

// HitEvent is one classified dart landing.
type HitEvent struct {
	Seq       uint64      `json:"seq"`
	ID        string      `json:"id"`
	Game      Game        `json:"game"`
	Hit       scoring.Hit `json:"hit"`
	Label     string      `json:"label"`
	Score     int         `json:"score"`
	X         float64     `json:"x"`
	Y         float64     `json:"y"`
	Timestamp time.Time   `json:"timestamp"`
}

// StatusEvent reports the engine state after every change.
type StatusEvent struct {
	Status      string             `json:"status"`
	Acquiring   bool               `json:"acquiring"`
	Calibrating bool               `json:"calibrating"`
	Calibration *board.Calibration `json:"calibration,omitempty"`
	Timestamp   time.Time          `json:"timestamp"`
}

// CalibrationEvent reports a calibration attempt that produced a board.
type CalibrationEvent struct {
	ID          string            `json:"id"`
	Calibration board.Calibration `json:"calibration"`
	Manual      bool              `json:"manual"`
	Blended     bool              `json:"blended"`
	Source      string            `json:"source"`
	Rays        int               `json:"rays"`
	Timestamp   time.Time         `json:"timestamp"`
}

// EventType discriminates Event payloads.
type EventType string

const (
	EventHit         EventType = "hit"
	EventStatus      EventType = "status"
	EventCalibration EventType = "calibration"
)

// Event is what the engine publishes on the bus. Exactly one payload is set.
type Event struct {
	Type        EventType
	Hit         *HitEvent
	Status      *StatusEvent
	Calibration *CalibrationEvent
}
