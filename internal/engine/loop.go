package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dartcam/internal/logger"
	"dartcam/internal/motion"
	"dartcam/internal/pipeline"
	"dartcam/internal/scoring"
	"dartcam/internal/vision"
)

func (e *Engine) loop(ctx context.Context, s *session) {
	defer close(s.done)

	interval := e.Settings().SampleInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// One calibration runs at a time, so a single slot never blocks the worker.
	results := make(chan calOutcome, 1)
	var lastSeq uint64

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			lastSeq = e.tick(now, lastSeq, results)
			if d := e.Settings().SampleInterval; d != interval {
				interval = d
				ticker.Reset(d)
			}

		case req := <-s.requests:
			e.startCalibration(nil, req.reply, results)

		case out := <-results:
			e.finishCalibration(out)
		}
	}
}

// tick processes one frame. Nothing escapes it: failures become the status
// string and the next tick runs as usual.
func (e *Engine) tick(now time.Time, lastSeq uint64, results chan calOutcome) (seq uint64) {
	seq = lastSeq
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			logger.Error(logger.Fields{"error": err.Error()}, "[Engine] tick failed")
			e.setStatus(StatusFrameFailed(err))
		}
	}()

	fd, err := e.src.Latest()
	if err != nil {
		if !errors.Is(err, pipeline.ErrNoFrame) {
			logger.Warn(logger.Fields{"error": err.Error()}, "[Engine] frame read failed")
			e.setStatus(StatusFrameFailed(err))
		}
		return seq
	}
	if fd.Seq == lastSeq {
		return seq
	}
	seq = fd.Seq

	frame, err := fd.Decode(e.workWidth)
	if err != nil {
		logger.Warn(logger.Fields{"seq": fd.Seq, "error": err.Error()}, "[Engine] frame decode failed")
		e.setStatus(StatusFrameFailed(err))
		return seq
	}

	e.mu.Lock()
	e.lastFrame = frame
	aligned := e.cal.Valid()
	e.mu.Unlock()

	if landing, ok := e.detector.Step(vision.Luma(frame), frame.Width, frame.Height); ok {
		e.emitHit(frame.Width, frame.Height, landing)
	}

	state := pipeline.EngineState{
		Calibrating: e.calibrating.Load() || len(results) > 0,
		Settling:    e.detector.Settling(),
		Aligned:     aligned,
	}
	if e.shouldRecalibrate(now, state) {
		e.startCalibration(frame, nil, results)
	}
	return seq
}

// emitHit classifies a resolved landing and publishes it. The centroid comes
// from the raw frame, so it is undistorted before classification.
func (e *Engine) emitHit(w, h int, l motion.Landing) {
	e.mu.RLock()
	settings := e.settings
	cal := e.boardLocked()
	e.mu.RUnlock()

	x, y := l.X, l.Y
	if settings.LensStrength != 0 {
		x, y = vision.UndistortPoint(x, y, w, h, settings.LensStrength)
	}

	hit := scoring.Combine(scoring.Classify(x, y, w, h, cal), l.Confidence)
	ev := &pipeline.HitEvent{
		Seq:       e.hitSeq.Add(1),
		ID:        uuid.NewString(),
		Game:      settings.Game,
		Hit:       hit,
		Label:     scoring.Label(hit),
		Score:     scoring.Score(hit),
		X:         x,
		Y:         y,
		Timestamp: l.At,
	}

	e.mu.Lock()
	e.lastHit = ev
	e.mu.Unlock()

	logger.Info(logger.Fields{
		"seq":        ev.Seq,
		"label":      ev.Label,
		"confidence": hit.Confidence,
		"x":          x,
		"y":          y,
		"samples":    l.Samples,
		"game":       ev.Game,
	}, "[Engine] dart landed")

	e.bus.Publish(pipeline.Event{Type: pipeline.EventHit, Hit: ev})
	e.setStatus(StatusForHit(hit))
}
