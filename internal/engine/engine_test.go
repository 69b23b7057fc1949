package engine

import (
	"context"
	"errors"
	"image/color"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"dartcam/internal/board"
	"dartcam/internal/calibration"
	"dartcam/internal/pipeline"
	"dartcam/internal/scoring"
	"dartcam/internal/vision"
)

const (
	fw = 320
	fh = 240
)

func flat(v uint8) *vision.Frame {
	f := vision.NewFrame(fw, fh)
	for i := 0; i < len(f.Pix); i += 4 {
		f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = v, v, v, 255
	}
	return f
}

// withDart paints a size×size bright block whose top-left corner is (x0, y0).
func withDart(f *vision.Frame, x0, y0, size int) *vision.Frame {
	out := f.Clone()
	for y := y0; y < y0+size; y++ {
		for x := x0; x < x0+size; x++ {
			out.Set(x, y, color.RGBA{R: 220, G: 220, B: 220, A: 255})
		}
	}
	return out
}

func disk(cx, cy, r float64) *vision.Frame {
	f := flat(30)
	for y := 0; y < fh; y++ {
		for x := 0; x < fw; x++ {
			if math.Hypot(float64(x)-cx, float64(y)-cy) <= r {
				f.Set(x, y, color.RGBA{R: 210, G: 210, B: 210, A: 255})
			}
		}
	}
	return f
}

func fastSettings() Settings {
	s := DefaultSettings()
	s.SampleInterval = 50 * time.Millisecond
	return s
}

func newEngine(t *testing.T, src pipeline.FrameSource, mode pipeline.RecalibrationMode, initial *board.Calibration) *Engine {
	t.Helper()
	e, err := New(Options{
		Source:        src,
		Recalibration: mode,
		Settings:      fastSettings(),
		Initial:       initial,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(e.Stop)
	return e
}

func waitFor(t *testing.T, ch <-chan pipeline.Event, typ pipeline.EventType, timeout time.Duration) *pipeline.Event {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return &ev
			}
		case <-deadline:
			return nil
		}
	}
}

func TestLandingScoresTrebleTwentyOnce(t *testing.T) {
	bg := flat(50)
	// Treble 20 on a centred board of radius 0.4·240 = 96 px sits ~58 px above centre.
	first := withDart(bg, 154, 56, 12)
	second := withDart(first, 200, 150, 12)

	src := pipeline.NewScriptedSource(bg, bg, first, first, first, second, second, second, second)
	cal := board.Circle(0.5, 0.5, 0.4)
	e := newEngine(t, src, pipeline.RecalibrationManual, &cal)

	events, unsub := e.Bus().SubscribeChannel(64)
	defer unsub()

	if err := e.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	ev := waitFor(t, events, pipeline.EventHit, 3*time.Second)
	if ev == nil {
		t.Fatal("no hit event")
	}
	hit := ev.Hit
	if hit.Hit.Number != 20 || hit.Hit.Multiplier != 3 {
		t.Errorf("hit = %+v, want T20", hit.Hit)
	}
	if hit.Hit.Confidence <= 0.7 {
		t.Errorf("confidence = %v, want > 0.7", hit.Hit.Confidence)
	}
	if hit.Label != "T20" || hit.Score != 60 || hit.Seq != 1 || hit.ID == "" || hit.Game != pipeline.GameTons {
		t.Errorf("event = %+v", hit)
	}

	if again := waitFor(t, events, pipeline.EventHit, 600*time.Millisecond); again != nil {
		t.Errorf("second hit inside the cooldown: %+v", again.Hit)
	}
	if st := e.Status(); st.Status != "Detected T20 (75%)" || st.LastHit == nil {
		t.Errorf("status = %q", st.Status)
	}
}

func TestLandingWithoutCalibrationUsesFallbackBoard(t *testing.T) {
	bg := flat(50)
	// Fallback centre (160, 100.8), radius 0.36·240 = 86.4 px; this is inside the bull.
	dart := withDart(bg, 154, 95, 12)
	src := pipeline.NewScriptedSource(bg, bg, dart, dart, dart)
	e := newEngine(t, src, pipeline.RecalibrationManual, nil)

	events, unsub := e.Bus().SubscribeChannel(64)
	defer unsub()
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ev := waitFor(t, events, pipeline.EventHit, 3*time.Second)
	if ev == nil {
		t.Fatal("no hit event")
	}
	if ev.Hit.Hit.Number != scoring.Bull {
		t.Errorf("hit = %+v, want a bull", ev.Hit.Hit)
	}
}

func TestIdenticalFramesNeverHit(t *testing.T) {
	bg := flat(80)
	src := pipeline.NewScriptedSource(bg)
	e := newEngine(t, src, pipeline.RecalibrationManual, nil)

	events, unsub := e.Bus().SubscribeChannel(64)
	defer unsub()
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if ev := waitFor(t, events, pipeline.EventHit, 400*time.Millisecond); ev != nil {
		t.Errorf("unexpected hit %+v", ev.Hit)
	}
}

func TestCalibrationFailureKeepsPreviousBoard(t *testing.T) {
	prev := board.Calibration{CX: 0.48, CY: 0.45, RX: 0.38, RY: 0.35, Angle: 0.1, Rotation: 0.05}
	src := pipeline.NewScriptedSource(flat(40))
	e := newEngine(t, src, pipeline.RecalibrationManual, &prev)

	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, err := e.Calibrate(context.Background())
	if !errors.Is(err, calibration.ErrCalibrationFailed) {
		t.Fatalf("Calibrate err = %v, want a calibration failure", err)
	}
	got, ok := e.Calibration()
	if !ok || got != prev {
		t.Errorf("board = %+v, want unchanged %+v", got, prev)
	}
	if st := e.Status(); st.Status != StatusNoBoard || st.Calibrating {
		t.Errorf("status = %+v", st)
	}
}

func TestManualCalibrationReplacesBoard(t *testing.T) {
	prev := board.Circle(0.3, 0.3, 0.3)
	src := pipeline.NewScriptedSource(disk(160, 120, 80))
	e := newEngine(t, src, pipeline.RecalibrationManual, &prev)

	events, unsub := e.Bus().SubscribeChannel(64)
	defer unsub()
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	cal, err := e.Calibrate(context.Background())
	if err != nil {
		t.Fatalf("Calibrate: %v", err)
	}
	if math.Abs(cal.CX-0.5) > 0.02 || math.Abs(cal.CY-0.5) > 0.02 {
		t.Errorf("centre (%v, %v), want (0.5, 0.5)", cal.CX, cal.CY)
	}
	if math.Abs(cal.RX-80.0/fh) > 0.02 || math.Abs(cal.RY-80.0/fh) > 0.02 {
		t.Errorf("radii (%v, %v), want %v", cal.RX, cal.RY, 80.0/fh)
	}

	ev := waitFor(t, events, pipeline.EventCalibration, time.Second)
	if ev == nil {
		t.Fatal("no calibration event")
	}
	if !ev.Calibration.Manual || ev.Calibration.Blended {
		t.Errorf("event = %+v, want manual and unblended", ev.Calibration)
	}
	if got, _ := e.Calibration(); got != cal {
		t.Errorf("stored board %+v differs from returned %+v", got, cal)
	}
}

func TestBackgroundRecalibrationBlends(t *testing.T) {
	prev := board.Circle(0.3, 0.3, 0.3)
	src := pipeline.NewScriptedSource(disk(160, 120, 80))
	e := newEngine(t, src, pipeline.RecalibrationScheduled, &prev)

	events, unsub := e.Bus().SubscribeChannel(64)
	defer unsub()
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	ev := waitFor(t, events, pipeline.EventCalibration, 3*time.Second)
	if ev == nil {
		t.Fatal("no background calibration")
	}
	got := ev.Calibration
	if got.Manual || !got.Blended {
		t.Fatalf("event = %+v, want a blended background pass", got)
	}
	// 0.3 + 0.3·(0.5 − 0.3)
	if math.Abs(got.Calibration.CX-0.36) > 0.01 || math.Abs(got.Calibration.CY-0.36) > 0.01 {
		t.Errorf("blended centre (%v, %v), want (0.36, 0.36)", got.Calibration.CX, got.Calibration.CY)
	}
}

func TestStartFailureIsAcquisitionError(t *testing.T) {
	src := pipeline.NewScriptedSource(flat(0))
	src.FailOpen(errors.New("permission denied"))
	e := newEngine(t, src, pipeline.RecalibrationManual, nil)

	err := e.Start(context.Background())
	if !errors.Is(err, ErrAcquisition) {
		t.Fatalf("Start err = %v, want ErrAcquisition", err)
	}
	if st := e.Status(); st.Status != "Camera access failed: permission denied" || st.Acquiring {
		t.Errorf("status = %+v", st)
	}
}

func TestCalibrateRequiresCamera(t *testing.T) {
	e := newEngine(t, pipeline.NewScriptedSource(), pipeline.RecalibrationManual, nil)
	if _, err := e.Calibrate(context.Background()); !errors.Is(err, ErrNotAcquiring) {
		t.Errorf("err = %v, want ErrNotAcquiring", err)
	}
	if st := e.Status(); st.Status != StatusNeedFrame {
		t.Errorf("status = %q", st.Status)
	}
}

func TestStopResetsStatus(t *testing.T) {
	e := newEngine(t, pipeline.NewScriptedSource(flat(10)), pipeline.RecalibrationManual, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if st := e.Status(); !st.Acquiring || st.Status != StatusCameraOn {
		t.Errorf("status after start = %+v", st)
	}
	e.Stop()
	if st := e.Status(); st.Acquiring || st.Status != StatusStopped {
		t.Errorf("status after stop = %+v", st)
	}
	e.Stop()
}

// endingSource replays frames until ended is set, then reports a dead stream.
type endingSource struct {
	*pipeline.ScriptedSource
	ended atomic.Bool
}

func (s *endingSource) Latest() (*pipeline.FrameData, error) {
	if s.ended.Load() {
		return nil, pipeline.ErrStreamEnded
	}
	return s.ScriptedSource.Latest()
}

func TestEndedStreamReportsFailure(t *testing.T) {
	src := &endingSource{ScriptedSource: pipeline.NewScriptedSource(flat(10))}
	e := newEngine(t, src, pipeline.RecalibrationManual, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	src.ended.Store(true)

	want := StatusFrameFailed(pipeline.ErrStreamEnded)
	deadline := time.Now().Add(2 * time.Second)
	for e.Status().Status != want {
		if time.Now().After(deadline) {
			t.Fatalf("status = %q, want %q", e.Status().Status, want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestSettings(t *testing.T) {
	e := newEngine(t, pipeline.NewScriptedSource(), pipeline.RecalibrationScheduled, nil)

	if err := e.SetFallbackRadius(0.9); err != nil {
		t.Fatal(err)
	}
	if r := e.Settings().FallbackRadius; r != MaxBoardRadius {
		t.Errorf("radius = %v, want clamped to %v", r, MaxBoardRadius)
	}
	if err := e.SetBlendFactor(0); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("blend 0 err = %v", err)
	}
	if err := e.SetGame("cricket"); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("game err = %v", err)
	}
	if err := e.SetSampleInterval(time.Millisecond); !errors.Is(err, ErrInvalidSetting) {
		t.Errorf("interval err = %v", err)
	}
	if err := e.SetLensStrength(0.2); err != nil {
		t.Fatal(err)
	}
	if err := e.SetGame(pipeline.GameATC); err != nil {
		t.Fatal(err)
	}
	s := e.Settings()
	if s.LensStrength != 0.2 || s.Game != pipeline.GameATC || s.BlendFactor != 0.3 {
		t.Errorf("settings = %+v", s)
	}
}

func TestRecalibrationIntervalChanges(t *testing.T) {
	t0 := time.Date(2024, 5, 1, 20, 0, 0, 0, time.UTC)
	aligned := pipeline.EngineState{Aligned: true}

	t.Run("adaptive follows a longer interval", func(t *testing.T) {
		e := newEngine(t, pipeline.NewScriptedSource(), pipeline.RecalibrationAdaptive, nil)
		e.recordPass(t0, nil)
		if err := e.SetRecalibrationInterval(time.Hour); err != nil {
			t.Fatal(err)
		}
		if e.shouldRecalibrate(t0.Add(31*time.Second), aligned) {
			t.Error("recalibrated on the old interval")
		}
		if !e.shouldRecalibrate(t0.Add(time.Hour), aligned) {
			t.Error("missed the new interval")
		}
	})

	t.Run("zero switches scheduled off and back on", func(t *testing.T) {
		e := newEngine(t, pipeline.NewScriptedSource(), pipeline.RecalibrationScheduled, nil)
		e.recordPass(t0, nil)
		if err := e.SetRecalibrationInterval(0); err != nil {
			t.Fatal(err)
		}
		if e.shouldRecalibrate(t0.Add(24*time.Hour), aligned) {
			t.Error("interval 0 still recalibrated")
		}
		if err := e.SetRecalibrationInterval(10 * time.Second); err != nil {
			t.Fatal(err)
		}
		if e.shouldRecalibrate(t0.Add(9*time.Second), aligned) {
			t.Error("recalibrated before the new interval")
		}
		if !e.shouldRecalibrate(t0.Add(10*time.Second), aligned) {
			t.Error("did not resume after a non-zero interval")
		}
	})

	t.Run("manual mode stays manual", func(t *testing.T) {
		e := newEngine(t, pipeline.NewScriptedSource(), pipeline.RecalibrationManual, nil)
		if err := e.SetRecalibrationInterval(time.Second); err != nil {
			t.Fatal(err)
		}
		if e.shouldRecalibrate(t0, aligned) {
			t.Error("manual engine recalibrated")
		}
	})
}

func TestStatusStrings(t *testing.T) {
	tests := []struct {
		cal  board.Calibration
		want string
	}{
		{board.Circle(0.5, 0.5, 0.4), "Aligned"},
		{board.Calibration{CX: 0.5, CY: 0.5, RX: 0.4, RY: 0.3}, "Aligned · tilt 25%"},
		{board.Calibration{CX: 0.5, CY: 0.5, RX: 0.4, RY: 0.4, Rotation: -5 * math.Pi / 180}, "Aligned · rot -5°"},
		{board.Calibration{CX: 0.5, CY: 0.5, RX: 0.4, RY: 0.38, Rotation: 2 * math.Pi / 180}, "Aligned"},
		{board.Calibration{CX: 0.5, CY: 0.5, RX: 0.4, RY: 0.2, Rotation: 9 * math.Pi / 180}, "Aligned · tilt 50% · rot 9°"},
	}
	for _, tt := range tests {
		if got := StatusForBoard(tt.cal); got != tt.want {
			t.Errorf("StatusForBoard(%+v) = %q, want %q", tt.cal, got, tt.want)
		}
	}

	miss := scoring.Hit{Number: scoring.None, Confidence: 0.55}
	if got := StatusForHit(miss); got != "Detected MISS (55%)" {
		t.Errorf("miss status = %q", got)
	}
}
