package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"dartcam/internal/board"
	"dartcam/internal/calibration"
	"dartcam/internal/detection"
	"dartcam/internal/logger"
	"dartcam/internal/pipeline"
	"dartcam/internal/vision"
)

const calibrationTimeout = 10 * time.Second

type calRequest struct {
	reply chan calReply
}

type calReply struct {
	cal board.Calibration
	err error
}

type calOutcome struct {
	result   calibration.Result
	err      error
	reply    chan calReply // nil for background passes
	finished time.Time
}

func (o calOutcome) manual() bool { return o.reply != nil }

// Calibrate runs a calibration on the next frame and waits for it. A
// successful result replaces the board outright. On failure the previous
// board stays in place.
func (e *Engine) Calibrate(ctx context.Context) (board.Calibration, error) {
	e.mu.RLock()
	s := e.session
	e.mu.RUnlock()
	if s == nil {
		e.setStatus(StatusNeedFrame)
		return board.Calibration{}, ErrNotAcquiring
	}

	reply := make(chan calReply, 1)
	select {
	case s.requests <- calRequest{reply: reply}:
	case <-s.done:
		return board.Calibration{}, ErrNotAcquiring
	case <-ctx.Done():
		return board.Calibration{}, ctx.Err()
	}

	select {
	case r := <-reply:
		return r.cal, r.err
	case <-s.done:
		select {
		case r := <-reply:
			return r.cal, r.err
		default:
		}
		return board.Calibration{}, ErrNotAcquiring
	case <-ctx.Done():
		return board.Calibration{}, ctx.Err()
	}
}

// startCalibration launches a worker on a copy of frame. A nil frame means a
// manual request, which reads a fresh one from the source.
func (e *Engine) startCalibration(frame *vision.Frame, reply chan calReply, results chan<- calOutcome) {
	if !e.calibrating.CompareAndSwap(false, true) {
		if reply != nil {
			reply <- calReply{err: ErrCalibrationInProgress}
		}
		return
	}

	if frame == nil {
		var err error
		frame, err = e.grab()
		if err != nil {
			e.calibrating.Store(false)
			e.setStatus(StatusNeedFrame)
			reply <- calReply{err: fmt.Errorf("no frame to calibrate: %w", err)}
			return
		}
	}

	work := frame.Clone()
	e.undistortFrame(work)

	if reply != nil {
		e.setStatus(StatusCalibrating)
	}
	logger.Debug(logger.Fields{"manual": reply != nil, "width": work.Width, "height": work.Height}, "[Engine] calibration started")

	go e.runCalibration(work, reply, results)
}

func (e *Engine) grab() (*vision.Frame, error) {
	fd, err := e.src.Latest()
	if err != nil {
		return nil, err
	}
	return fd.Decode(e.workWidth)
}

// undistortFrame corrects frame in place with the cached map, rebuilding it
// when the lens strength or frame size changed.
func (e *Engine) undistortFrame(frame *vision.Frame) {
	e.mu.Lock()
	k := e.settings.LensStrength
	if k == 0 {
		e.mu.Unlock()
		return
	}
	if e.undistort == nil || !e.undistort.Matches(frame.Width, frame.Height, k) {
		e.undistort = vision.NewUndistortMap(frame.Width, frame.Height, k)
	}
	m := e.undistort
	e.mu.Unlock()

	vision.ApplyUndistort(frame, m)
}

func (e *Engine) runCalibration(frame *vision.Frame, reply chan calReply, results chan<- calOutcome) {
	out := calOutcome{reply: reply}
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("%w: internal error: %v", calibration.ErrCalibrationFailed, r)
		}
		out.finished = time.Now()
		e.calibrating.Store(false)
		results <- out
	}()

	_, edges := vision.Preprocess(frame)
	hint := e.hint(frame)

	ctx, cancel := context.WithTimeout(context.Background(), calibrationTimeout)
	defer cancel()
	out.result, out.err = e.calibrator.Calibrate(ctx, edges, hint)
}

// hint asks the region-hint provider for a board circle. Any failure falls
// back to the edge-only search.
func (e *Engine) hint(frame *vision.Frame) *calibration.Circle {
	ready := e.hints.IsReady()
	e.mu.Lock()
	e.hintReady = ready
	e.mu.Unlock()
	if !ready {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.hintWait)
	defer cancel()

	regions, err := e.hints.Hints(ctx, frame)
	if err != nil {
		logger.Warn(logger.Fields{"provider": e.hints.Name(), "error": err.Error()}, "[Engine] hint unavailable, using edge search")
		return nil
	}
	best, ok := detection.BestRegion(regions)
	if !ok {
		return nil
	}
	return &calibration.Circle{CX: best.CX, CY: best.CY, R: best.R}
}

// finishCalibration applies a worker result on the loop goroutine.
func (e *Engine) finishCalibration(out calOutcome) {
	e.recordPass(out.finished, out.err)

	if out.err == nil && !out.result.Board.Valid() {
		out.err = calibration.ErrImplausibleFit
	}
	if out.err != nil {
		logger.Warn(logger.Fields{"manual": out.manual(), "error": out.err.Error()}, "[Engine] calibration failed")
		if out.manual() {
			e.setStatus(statusForFailure(out.err))
			out.reply <- calReply{err: out.err}
		}
		return
	}

	e.mu.Lock()
	prev := e.cal
	next := out.result.Board
	blended := !out.manual() && prev.Valid()
	if blended {
		next = calibration.Blend(prev, next, e.settings.BlendFactor)
	}
	e.cal = next
	e.mu.Unlock()

	ev := &pipeline.CalibrationEvent{
		ID:          uuid.NewString(),
		Calibration: next,
		Manual:      out.manual(),
		Blended:     blended,
		Source:      string(out.result.Source),
		Rays:        out.result.Rays,
		Timestamp:   out.finished,
	}
	logger.Info(logger.Fields{
		"cx":       next.CX,
		"cy":       next.CY,
		"rx":       next.RX,
		"ry":       next.RY,
		"rotation": next.RotationDegrees(),
		"source":   ev.Source,
		"rays":     ev.Rays,
		"blended":  blended,
	}, "[Engine] calibration applied")
	e.bus.Publish(pipeline.Event{Type: pipeline.EventCalibration, Calibration: ev})

	if out.manual() || !prev.Valid() {
		e.setStatus(StatusForBoard(next))
	}
	if out.manual() {
		out.reply <- calReply{cal: next}
	}
}

func statusForFailure(err error) string {
	if errors.Is(err, calibration.ErrCalibrationFailed) {
		return StatusNoBoard
	}
	return StatusCalibrationFailed(err)
}
