package strategies

import (
	"sync"
	"time"

	"dartcam/internal/pipeline"
)

// AdaptiveStrategy retries on a short interval while the board is not
// aligned or the last pass failed, then falls back to the regular schedule.
type AdaptiveStrategy struct {
	interval   time.Duration
	retry      time.Duration
	lastRun    time.Time
	lastFailed bool
	mu         sync.Mutex
}

// NewAdaptiveStrategy creates an adaptive strategy. A zero retry defaults
// to a third of interval, but never below five seconds.
func NewAdaptiveStrategy(interval, retry time.Duration) *AdaptiveStrategy {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if retry <= 0 {
		retry = interval / 3
		if retry < 5*time.Second {
			retry = 5 * time.Second
		}
	}
	if retry > interval {
		retry = interval
	}
	return &AdaptiveStrategy{
		interval: interval,
		retry:    retry,
	}
}

func (s *AdaptiveStrategy) Name() string {
	return string(pipeline.RecalibrationAdaptive)
}

func (s *AdaptiveStrategy) ShouldRecalibrate(now time.Time, state pipeline.EngineState) bool {
	if busy(state) {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	wait := s.interval
	if !state.Aligned || s.lastFailed {
		wait = s.retry
	}
	return now.Sub(s.lastRun) >= wait
}

func (s *AdaptiveStrategy) OnCalibrationComplete(now time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = now
	s.lastFailed = err != nil
}

func (s *AdaptiveStrategy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRun = time.Time{}
	s.lastFailed = false
}
