// Package engine runs the camera loop: it samples frames on a fixed interval,
// feeds the landing detector, classifies resolved landings against the
// current board calibration and keeps that calibration fresh.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"dartcam/internal/board"
	"dartcam/internal/calibration"
	"dartcam/internal/detection"
	"dartcam/internal/logger"
	"dartcam/internal/motion"
	"dartcam/internal/pipeline"
	"dartcam/internal/pipeline/strategies"
	"dartcam/internal/vision"
)

var (
	// ErrAcquisition wraps every failure to open the frame source.
	ErrAcquisition = errors.New("camera access failed")
	// ErrNotAcquiring is returned by Calibrate while the camera is off.
	ErrNotAcquiring = errors.New("camera is not running")
	// ErrCalibrationInProgress is returned when a calibration is already running.
	ErrCalibrationInProgress = errors.New("calibration already in progress")
	// ErrInvalidSetting is returned by Apply for out-of-range tunables.
	ErrInvalidSetting = errors.New("invalid setting")
)

// Fallback board used until the first calibration succeeds.
const (
	FallbackCX         = 0.5
	FallbackCY         = 0.42
	DefaultBoardRadius = 0.36
	MinBoardRadius     = 0.25
	MaxBoardRadius     = 0.48
)

// Settings are the runtime-adjustable tunables.
type Settings struct {
	LensStrength   float64       `json:"lens_strength"`
	FallbackRadius float64       `json:"fallback_radius"`
	SampleInterval time.Duration `json:"sample_interval"`
	RecalInterval  time.Duration `json:"recal_interval"`
	BlendFactor    float64       `json:"blend_factor"`
	Game           pipeline.Game `json:"game"`
}

// DefaultSettings returns the stock tunables.
func DefaultSettings() Settings {
	return Settings{
		FallbackRadius: DefaultBoardRadius,
		SampleInterval: 300 * time.Millisecond,
		RecalInterval:  30 * time.Second,
		BlendFactor:    0.3,
		Game:           pipeline.GameTons,
	}
}

// Validate checks every field range.
func (s Settings) Validate() error {
	switch {
	case math.IsNaN(s.LensStrength) || s.LensStrength < -0.5 || s.LensStrength > 0.5:
		return fmt.Errorf("%w: lens strength %v outside [-0.5, 0.5]", ErrInvalidSetting, s.LensStrength)
	case s.SampleInterval < 50*time.Millisecond || s.SampleInterval > 5*time.Second:
		return fmt.Errorf("%w: sample interval %v outside [50ms, 5s]", ErrInvalidSetting, s.SampleInterval)
	case s.RecalInterval < 0:
		return fmt.Errorf("%w: negative recalibration interval", ErrInvalidSetting)
	case !(s.BlendFactor > 0 && s.BlendFactor <= 1):
		return fmt.Errorf("%w: blend factor %v outside (0, 1]", ErrInvalidSetting, s.BlendFactor)
	case !s.Game.Valid():
		return fmt.Errorf("%w: unknown game %q", ErrInvalidSetting, s.Game)
	}
	return nil
}

// Status is a snapshot of the engine for display.
type Status struct {
	Status      string                `json:"status"`
	Acquiring   bool                  `json:"acquiring"`
	Calibrating bool                  `json:"calibrating"`
	HintReady   bool                  `json:"hint_ready"`
	Calibration *board.Calibration    `json:"calibration,omitempty"`
	LastHit     *pipeline.HitEvent    `json:"last_hit,omitempty"`
	Capture     pipeline.CaptureStats `json:"capture"`
}

// Options wires an Engine.
type Options struct {
	Source pipeline.FrameSource
	// Hints may be nil; calibration then relies on the Hough search alone.
	Hints         detection.Provider
	Bus           *pipeline.EventBus
	Recalibration pipeline.RecalibrationMode
	Settings      Settings
	WorkWidth     int
	Motion        motion.Config
	Calibrator    calibration.Config
	HintTimeout   time.Duration
	// Initial restores a previously persisted board.
	Initial *board.Calibration
}

// Engine is the camera and calibration orchestrator. The loop goroutine is
// the only writer of the board calibration.
type Engine struct {
	src        pipeline.FrameSource
	hints      detection.Provider
	bus        *pipeline.EventBus
	detector   *motion.Detector
	calibrator *calibration.Calibrator
	mode       pipeline.RecalibrationMode
	workWidth  int
	hintWait   time.Duration

	calibrating atomic.Bool
	hitSeq      atomic.Uint64

	// lifecycle serialises Start and Stop.
	lifecycle sync.Mutex

	mu        sync.RWMutex
	settings  Settings
	cal       board.Calibration
	status    string
	acquiring bool
	hintReady bool
	lastHit   *pipeline.HitEvent
	lastFrame *vision.Frame
	undistort *vision.UndistortMap
	session   *session

	// strategy is rebuilt when the recalibration interval changes; lastPass
	// and lastErr carry the schedule across.
	strategy pipeline.RecalibrationStrategy
	lastPass time.Time
	lastErr  error
}

type session struct {
	cancel   context.CancelFunc
	done     chan struct{}
	requests chan calRequest
}

// New creates an idle engine.
func New(opts Options) (*Engine, error) {
	if opts.Source == nil {
		return nil, errors.New("engine requires a frame source")
	}
	if opts.Settings == (Settings{}) {
		opts.Settings = DefaultSettings()
	}
	opts.Settings.FallbackRadius = clampRadius(opts.Settings.FallbackRadius)
	if err := opts.Settings.Validate(); err != nil {
		return nil, err
	}
	if opts.Bus == nil {
		opts.Bus = pipeline.NewEventBus()
	}
	if opts.Hints == nil {
		opts.Hints = detection.NoopProvider{}
	}
	if opts.WorkWidth <= 0 {
		opts.WorkWidth = vision.DefaultWorkWidth
	}
	if opts.Motion == (motion.Config{}) {
		opts.Motion = motion.DefaultConfig()
	}
	if opts.Calibrator.Rays == 0 {
		opts.Calibrator = calibration.DefaultConfig()
	}
	if opts.HintTimeout <= 0 {
		opts.HintTimeout = 2 * time.Second
	}
	if opts.Recalibration == "" {
		opts.Recalibration = pipeline.RecalibrationScheduled
	}

	strategy, err := strategies.Create(opts.Recalibration, opts.Settings.RecalInterval)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		src:        opts.Source,
		hints:      opts.Hints,
		bus:        opts.Bus,
		detector:   motion.NewDetector(opts.Motion),
		calibrator: calibration.New(opts.Calibrator),
		mode:       opts.Recalibration,
		strategy:   strategy,
		workWidth:  opts.WorkWidth,
		hintWait:   opts.HintTimeout,
		settings:   opts.Settings,
		status:     StatusIdle,
	}
	if opts.Initial != nil && opts.Initial.Valid() {
		e.cal = *opts.Initial
	}
	return e, nil
}

// Bus returns the event bus hits and status changes are published on.
func (e *Engine) Bus() *pipeline.EventBus { return e.bus }

// Start opens the frame source and starts sampling. Acquisition failures are
// final for this attempt; the caller decides whether to retry.
func (e *Engine) Start(ctx context.Context) error {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.RLock()
	running := e.session != nil
	e.mu.RUnlock()
	if running {
		return nil
	}

	if err := e.src.Open(ctx); err != nil {
		e.setStatus(StatusAccessFailed(err))
		logger.Error(logger.Fields{"error": err.Error()}, "[Engine] failed to open frame source")
		return fmt.Errorf("%w: %v", ErrAcquisition, err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &session{
		cancel:   cancel,
		done:     make(chan struct{}),
		requests: make(chan calRequest),
	}

	e.detector.Reset()

	e.mu.Lock()
	e.strategy.Reset()
	e.lastPass, e.lastErr = time.Time{}, nil
	strategyName := e.strategy.Name()
	e.session = s
	e.acquiring = true
	status := StatusCameraOn
	if e.cal.Valid() {
		status = StatusForBoard(e.cal)
	}
	e.mu.Unlock()

	go e.refreshHintReady()
	e.setStatus(status)
	logger.Info(logger.Fields{"strategy": strategyName}, "[Engine] acquisition started")

	go e.loop(runCtx, s)
	return nil
}

// Stop cancels sampling and releases the source. A calibration still running
// finishes in the background and its result is dropped.
func (e *Engine) Stop() {
	e.lifecycle.Lock()
	defer e.lifecycle.Unlock()

	e.mu.Lock()
	s := e.session
	e.session = nil
	e.mu.Unlock()
	if s == nil {
		return
	}

	s.cancel()
	<-s.done

	if err := e.src.Close(); err != nil {
		logger.Warn(logger.Fields{"error": err.Error()}, "[Engine] failed to close frame source")
	}
	e.detector.Reset()

	e.mu.Lock()
	e.acquiring = false
	e.lastFrame = nil
	e.mu.Unlock()

	e.setStatus(StatusStopped)
	logger.Info(nil, "[Engine] acquisition stopped")
}

// Status returns a snapshot.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()

	st := Status{
		Status:      e.status,
		Acquiring:   e.acquiring,
		Calibrating: e.calibrating.Load(),
		HintReady:   e.hintReady,
		Capture:     e.src.Stats(),
	}
	if e.cal.Valid() {
		cal := e.cal
		st.Calibration = &cal
	}
	if e.lastHit != nil {
		hit := *e.lastHit
		st.LastHit = &hit
	}
	return st
}

// Calibration returns the current board, or false before the first success.
func (e *Engine) Calibration() (board.Calibration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cal, e.cal.Valid()
}

// Snapshot returns the latest working frame and the board it is classified
// against, which is the fallback circle until calibration succeeds.
func (e *Engine) Snapshot() (*vision.Frame, board.Calibration, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.lastFrame == nil {
		return nil, board.Calibration{}, false
	}
	return e.lastFrame, e.boardLocked(), true
}

// Settings returns the current tunables.
func (e *Engine) Settings() Settings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings
}

// Apply replaces all tunables at once. Acquisition keeps running.
func (e *Engine) Apply(s Settings) error {
	s.FallbackRadius = clampRadius(s.FallbackRadius)
	if err := s.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	prev := e.settings
	if s.RecalInterval != prev.RecalInterval {
		next, err := strategies.Create(e.mode, s.RecalInterval)
		if err != nil {
			e.mu.Unlock()
			return err
		}
		if !e.lastPass.IsZero() {
			next.OnCalibrationComplete(e.lastPass, e.lastErr)
		}
		e.strategy = next
	}
	e.settings = s
	if s.LensStrength != prev.LensStrength {
		e.undistort = nil
	}
	strategyName := e.strategy.Name()
	e.mu.Unlock()

	logger.Info(logger.Fields{
		"lens":     s.LensStrength,
		"radius":   s.FallbackRadius,
		"sample":   s.SampleInterval.String(),
		"recal":    s.RecalInterval.String(),
		"strategy": strategyName,
		"blend":    s.BlendFactor,
		"game":     s.Game,
	}, "[Engine] settings applied")
	return nil
}

// SetLensStrength changes the barrel correction and drops the cached map.
func (e *Engine) SetLensStrength(k float64) error {
	return e.update(func(s *Settings) { s.LensStrength = k })
}

// SetFallbackRadius sets the board radius assumed before calibration. The
// value is clamped to [0.25, 0.48].
func (e *Engine) SetFallbackRadius(r float64) error {
	return e.update(func(s *Settings) { s.FallbackRadius = r })
}

// SetSampleInterval changes the tick period; the loop picks it up on its next tick.
func (e *Engine) SetSampleInterval(d time.Duration) error {
	return e.update(func(s *Settings) { s.SampleInterval = d })
}

// SetRecalibrationInterval changes how often background calibration runs. Zero
// switches it off until a non-zero interval is set again.
func (e *Engine) SetRecalibrationInterval(d time.Duration) error {
	return e.update(func(s *Settings) { s.RecalInterval = d })
}

// SetBlendFactor sets the weight a background result gets against the
// current board, in (0, 1].
func (e *Engine) SetBlendFactor(a float64) error {
	return e.update(func(s *Settings) { s.BlendFactor = a })
}

// SetGame sets the drill attached to subsequent hits.
func (e *Engine) SetGame(g pipeline.Game) error {
	return e.update(func(s *Settings) { s.Game = g })
}

func (e *Engine) update(fn func(*Settings)) error {
	s := e.Settings()
	fn(&s)
	return e.Apply(s)
}

// shouldRecalibrate consults the current strategy.
func (e *Engine) shouldRecalibrate(now time.Time, state pipeline.EngineState) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.strategy.ShouldRecalibrate(now, state)
}

// recordPass reports a finished calibration to the strategy.
func (e *Engine) recordPass(at time.Time, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastPass, e.lastErr = at, err
	e.strategy.OnCalibrationComplete(at, err)
}

func (e *Engine) boardLocked() board.Calibration {
	if e.cal.Valid() {
		return e.cal
	}
	return board.Circle(FallbackCX, FallbackCY, e.settings.FallbackRadius)
}

func (e *Engine) setStatus(status string) {
	e.mu.Lock()
	if e.status == status {
		e.mu.Unlock()
		return
	}
	e.status = status
	ev := &pipeline.StatusEvent{
		Status:      status,
		Acquiring:   e.acquiring,
		Calibrating: e.calibrating.Load(),
		Timestamp:   time.Now(),
	}
	if e.cal.Valid() {
		cal := e.cal
		ev.Calibration = &cal
	}
	e.mu.Unlock()

	e.bus.Publish(pipeline.Event{Type: pipeline.EventStatus, Status: ev})
}

func (e *Engine) refreshHintReady() {
	ready := e.hints.IsReady()
	e.mu.Lock()
	e.hintReady = ready
	e.mu.Unlock()
}

func clampRadius(r float64) float64 {
	if r == 0 || math.IsNaN(r) {
		return DefaultBoardRadius
	}
	return math.Max(MinBoardRadius, math.Min(MaxBoardRadius, r))
}

// LensStrength returns the current lens correction coefficient.
func (e *Engine) LensStrength() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.settings.LensStrength
}
