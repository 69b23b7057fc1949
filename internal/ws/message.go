package ws

import (
	"time"

	"dartcam/internal/board"
	"dartcam/internal/pipeline"
)

// Message types sent to clients.
const (
	TypeHit         = "hit"
	TypeStatus      = "status"
	TypeCalibration = "calibration"
)

// HitMessage represents a classified landing broadcast
type HitMessage struct {
	Type       string    `json:"type"` // "hit"
	Seq        uint64    `json:"seq"`
	ID         string    `json:"id"`
	Game       string    `json:"game"`
	Number     int       `json:"number"`
	Multiplier int       `json:"multiplier"`
	Confidence float64   `json:"confidence"`
	Label      string    `json:"label"`
	Score      int       `json:"score"`
	X          float64   `json:"x"`
	Y          float64   `json:"y"`
	Timestamp  time.Time `json:"timestamp"`
}

// StatusMessage carries the engine status line
type StatusMessage struct {
	Type        string       `json:"type"` // "status"
	Status      string       `json:"status"`
	Acquiring   bool         `json:"acquiring"`
	Calibrating bool         `json:"calibrating"`
	Board       *BoardFields `json:"board,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// CalibrationMessage announces a newly applied board
type CalibrationMessage struct {
	Type      string      `json:"type"` // "calibration"
	ID        string      `json:"id"`
	Board     BoardFields `json:"board"`
	Manual    bool        `json:"manual"`
	Blended   bool        `json:"blended"`
	Source    string      `json:"source"`
	Timestamp time.Time   `json:"timestamp"`
}

// BoardFields is the wire form of a calibration.
type BoardFields struct {
	CX          float64 `json:"cx"`
	CY          float64 `json:"cy"`
	RX          float64 `json:"rx"`
	RY          float64 `json:"ry"`
	Angle       float64 `json:"angle"`
	Rotation    float64 `json:"rotation"`
	RotationDeg float64 `json:"rotation_deg"`
	Tilt        float64 `json:"tilt"`
}

// NewBoardFields converts a calibration for the wire.
func NewBoardFields(c board.Calibration) BoardFields {
	return BoardFields{
		CX:          c.CX,
		CY:          c.CY,
		RX:          c.RX,
		RY:          c.RY,
		Angle:       c.Angle,
		Rotation:    c.Rotation,
		RotationDeg: c.RotationDegrees(),
		Tilt:        c.Tilt(),
	}
}

// NewMessage converts a bus event into its wire message. It returns nil for
// events with no payload.
func NewMessage(ev pipeline.Event) any {
	switch ev.Type {
	case pipeline.EventHit:
		if ev.Hit == nil {
			return nil
		}
		h := ev.Hit
		return &HitMessage{
			Type:       TypeHit,
			Seq:        h.Seq,
			ID:         h.ID,
			Game:       string(h.Game),
			Number:     h.Hit.Number,
			Multiplier: h.Hit.Multiplier,
			Confidence: h.Hit.Confidence,
			Label:      h.Label,
			Score:      h.Score,
			X:          h.X,
			Y:          h.Y,
			Timestamp:  h.Timestamp,
		}
	case pipeline.EventStatus:
		if ev.Status == nil {
			return nil
		}
		s := ev.Status
		msg := &StatusMessage{
			Type:        TypeStatus,
			Status:      s.Status,
			Acquiring:   s.Acquiring,
			Calibrating: s.Calibrating,
			Timestamp:   s.Timestamp,
		}
		if s.Calibration != nil {
			b := NewBoardFields(*s.Calibration)
			msg.Board = &b
		}
		return msg
	case pipeline.EventCalibration:
		if ev.Calibration == nil {
			return nil
		}
		c := ev.Calibration
		return &CalibrationMessage{
			Type:      TypeCalibration,
			ID:        c.ID,
			Board:     NewBoardFields(c.Calibration),
			Manual:    c.Manual,
			Blended:   c.Blended,
			Source:    c.Source,
			Timestamp: c.Timestamp,
		}
	}
	return nil
}
