package strategies

import (
	"fmt"
	"time"

	"dartcam/internal/pipeline"
)

// Create builds the recalibration strategy for mode. An interval of zero in
// scheduled or adaptive mode means manual.
func Create(mode pipeline.RecalibrationMode, interval time.Duration) (pipeline.RecalibrationStrategy, error) {
	switch mode {
	case pipeline.RecalibrationManual, "":
		return NewDisabledStrategy(), nil

	case pipeline.RecalibrationScheduled:
		if interval <= 0 {
			return NewDisabledStrategy(), nil
		}
		return NewScheduledStrategy(interval), nil

	case pipeline.RecalibrationAdaptive:
		if interval <= 0 {
			return NewDisabledStrategy(), nil
		}
		return NewAdaptiveStrategy(interval, 0), nil

	default:
		return nil, fmt.Errorf("unknown recalibration mode: %s", mode)
	}
}

var (
	_ pipeline.RecalibrationStrategy = (*ScheduledStrategy)(nil)
	_ pipeline.RecalibrationStrategy = (*AdaptiveStrategy)(nil)
	_ pipeline.RecalibrationStrategy = (*DisabledStrategy)(nil)
)
