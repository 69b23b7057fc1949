package strategies

import (
	"time"

	"dartcam/internal/pipeline"
)

// DisabledStrategy never recalibrates in the background; only an explicit
// calibration request aligns the board.
type DisabledStrategy struct{}

// NewDisabledStrategy creates a manual-only strategy.
func NewDisabledStrategy() *DisabledStrategy {
	return &DisabledStrategy{}
}

func (s *DisabledStrategy) Name() string {
	return string(pipeline.RecalibrationManual)
}

func (s *DisabledStrategy) ShouldRecalibrate(time.Time, pipeline.EngineState) bool {
	return false
}

func (s *DisabledStrategy) OnCalibrationComplete(time.Time, error) {}

func (s *DisabledStrategy) Reset() {}
