package strategies

import (
	"sync"
	"time"

	"dartcam/internal/pipeline"
)

// ScheduledStrategy recalibrates at a fixed interval after the last pass,
// successful or not.
type ScheduledStrategy struct {
	interval time.Duration
	lastRun  time.Time
	mu       sync.Mutex
}

// NewScheduledStrategy creates a scheduled recalibration strategy.
func NewScheduledStrategy(interval time.Duration) *ScheduledStrategy {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &ScheduledStrategy{
		interval: interval,
	}
}

func (s *ScheduledStrategy) Name() string {
	return string(pipeline.RecalibrationScheduled)
}

func (s *ScheduledStrategy) ShouldRecalibrate(now time.Time, state pipeline.EngineState) bool {
	if busy(state) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastRun) >= s.interval
}

func (s *ScheduledStrategy) OnCalibrationComplete(now time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = now
}

func (s *ScheduledStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = time.Time{}
}

// busy reports whether a calibration is running or a dart is settling.
func busy(state pipeline.EngineState) bool {
	return state.Calibrating || state.Settling
}
