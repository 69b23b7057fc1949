package pipeline

import (
	"context"
	"time"
)

// FrameSource delivers the most recent camera frame on demand. The engine
// pulls one frame per tick, so sources never queue.
type FrameSource interface {
	// Open starts acquisition. A failure here is an acquisition error.
	Open(ctx context.Context) error

	// Latest returns the newest frame, or ErrNoFrame before the first one.
	Latest() (*FrameData, error)

	// Stats returns capture statistics.
	Stats() CaptureStats

	// Close stops acquisition and releases the device.
	Close() error
}

// EventHandler receives events synchronously from the bus.
type EventHandler interface {
	OnEvent(ev Event)
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ev Event)

func (f EventHandlerFunc) OnEvent(ev Event) { f(ev) }

// RecalibrationMode selects when background recalibration runs.
type RecalibrationMode string

const (
	// RecalibrationManual never recalibrates in the background.
	RecalibrationManual RecalibrationMode = "manual"
	// RecalibrationScheduled recalibrates at a fixed interval.
	RecalibrationScheduled RecalibrationMode = "scheduled"
	// RecalibrationAdaptive retries quickly until aligned, then follows the interval.
	RecalibrationAdaptive RecalibrationMode = "adaptive"
)

// EngineState is what a recalibration strategy may look at.
type EngineState struct {
	Calibrating bool
	Settling    bool
	Aligned     bool
}

// RecalibrationStrategy decides when a background calibration pass runs.
type RecalibrationStrategy interface {
	Name() string

	// ShouldRecalibrate is asked on every recalibration tick.
	ShouldRecalibrate(now time.Time, state EngineState) bool

	// OnCalibrationComplete records the outcome of any calibration pass.
	OnCalibrationComplete(now time.Time, err error)

	// Reset clears internal state, e.g. on camera restart.
	Reset()
}
