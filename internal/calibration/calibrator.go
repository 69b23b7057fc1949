// Package calibration locates the dartboard in an edge map: a circle estimate
// from a region hint or a Hough search, radial edge sampling, an ellipse fit,
// and the rotation of the wire spider.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"

	"dartcam/internal/board"
	"dartcam/internal/vision"
)

var (
	ErrCalibrationFailed   = errors.New("calibration failed")
	ErrNoBoard             = fmt.Errorf("%w: no board found", ErrCalibrationFailed)
	ErrInsufficientSamples = fmt.Errorf("%w: not enough edge samples", ErrCalibrationFailed)
	ErrDegenerateFit       = fmt.Errorf("%w: degenerate ellipse fit", ErrCalibrationFailed)
	ErrImplausibleFit      = fmt.Errorf("%w: implausible ellipse", ErrCalibrationFailed)
)

// Circle is a pixel-space circle estimate.
type Circle struct {
	CX, CY, R float64
}

// Source names where the initial circle came from.
type Source string

const (
	SourceHint  Source = "hint"
	SourceHough Source = "hough"
)

// Result is a successful calibration.
type Result struct {
	Board  board.Calibration
	Source Source
	// Rays is the number of radial samples the final fit used.
	Rays int
}

// Config tunes the calibrator.
type Config struct {
	Rays int
	// Rays search [RayMin·R, RayMax·R] around the current radius estimate.
	RayMin float64
	RayMax float64
	// OutlierFraction is the allowed relative deviation from the median radius.
	OutlierFraction float64
	// ResidualFraction is the allowed relative deviation from the first fit.
	ResidualFraction float64
	MinRays          int
	RefineIterations int
	MaxAspect        float64
	TieBreak         TieBreak
	Hough            HoughConfig
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		Rays:             72,
		RayMin:           0.5,
		RayMax:           1.5,
		OutlierFraction:  0.4,
		ResidualFraction: 0.08,
		MinRays:          24,
		RefineIterations: 3,
		MaxAspect:        2,
		TieBreak:         NearestVertical,
		Hough:            DefaultHoughConfig(),
	}
}

// Calibrator fits board geometry. It holds no per-frame state.
type Calibrator struct {
	cfg Config
}

// New creates a Calibrator.
func New(cfg Config) *Calibrator {
	if cfg.Rays < 8 {
		cfg.Rays = DefaultConfig().Rays
	}
	if cfg.MinRays < 6 {
		cfg.MinRays = 6
	}
	return &Calibrator{cfg: cfg}
}

// Config returns the calibrator settings.
func (c *Calibrator) Config() Config { return c.cfg }

// Calibrate fits the board in edges. hint may be nil; a hint that does not
// yield enough samples falls back to the Hough search.
func (c *Calibrator) Calibrate(ctx context.Context, edges *vision.EdgeMap, hint *Circle) (Result, error) {
	var (
		samples []RaySample
		center  Circle
		source  Source
		err     error
	)

	if hint != nil && hint.R > 0 {
		center, samples, err = c.refine(ctx, edges, *hint)
		source = SourceHint
	}
	if hint == nil || hint.R <= 0 || err != nil {
		if cerr := ctx.Err(); cerr != nil {
			return Result{}, cerr
		}
		guess, ok := HoughCircle(edges, c.cfg.Hough)
		if !ok {
			return Result{}, ErrNoBoard
		}
		center, samples, err = c.refine(ctx, edges, guess)
		source = SourceHough
	}
	if err != nil {
		return Result{}, err
	}

	fit, err := FitEllipse(samples)
	if err != nil {
		return Result{}, err
	}

	// Second pass: drop rays that disagree with the first fit.
	kept := samples[:0:0]
	for _, s := range samples {
		if math.Abs(s.R-fit.RadiusAt(s.Theta)) <= c.cfg.ResidualFraction*fit.RadiusAt(s.Theta) {
			kept = append(kept, s)
		}
	}
	if len(kept) >= c.cfg.MinRays && len(kept) < len(samples) {
		if refit, rerr := FitEllipse(kept); rerr == nil {
			fit, samples = refit, kept
		}
	}

	if fit.RY <= 0 || fit.RX/fit.RY > c.cfg.MaxAspect {
		return Result{}, fmt.Errorf("%w: aspect %.2f", ErrImplausibleFit, fit.RX/fit.RY)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	w, h := float64(edges.Width), float64(edges.Height)
	minDim := math.Min(w, h)
	rot := WireRotation(edges, center.CX, center.CY, fit.RX, fit.RY, fit.Angle, c.cfg.TieBreak)

	return Result{
		Board: board.Calibration{
			CX:       center.CX / w,
			CY:       center.CY / h,
			RX:       fit.RX / minDim,
			RY:       fit.RY / minDim,
			Angle:    fit.Angle,
			Rotation: rot,
		},
		Source: source,
		Rays:   len(samples),
	}, nil
}

// refine samples rays around guess, rejects outliers and walks the centre to
// the median midpoint of opposite rays. It returns the refined centre and the
// surviving samples taken from it.
func (c *Calibrator) refine(ctx context.Context, edges *vision.EdgeMap, guess Circle) (Circle, []RaySample, error) {
	cur := guess
	samples, err := c.sampleFiltered(edges, cur)
	if err != nil {
		return Circle{}, nil, err
	}

	for i := 0; i < c.cfg.RefineIterations; i++ {
		if err := ctx.Err(); err != nil {
			return Circle{}, nil, err
		}
		next, ok := RefineCenter(cur.CX, cur.CY, samples, 2*math.Pi/float64(c.cfg.Rays))
		if !ok {
			break
		}
		next.R = MedianRadius(samples)
		resampled, err := c.sampleFiltered(edges, next)
		if err != nil {
			break
		}
		shift := math.Hypot(next.CX-cur.CX, next.CY-cur.CY)
		cur, samples = next, resampled
		if shift < 0.25 {
			break
		}
	}
	return cur, samples, nil
}

func (c *Calibrator) sampleFiltered(edges *vision.EdgeMap, circle Circle) ([]RaySample, error) {
	raw := SampleRays(edges, circle.CX, circle.CY, circle.R*c.cfg.RayMin, circle.R*c.cfg.RayMax, c.cfg.Rays)
	kept := RejectOutliers(raw, c.cfg.OutlierFraction)
	if len(kept) < c.cfg.MinRays {
		return nil, fmt.Errorf("%w: %d of %d rays", ErrInsufficientSamples, len(kept), c.cfg.Rays)
	}
	return kept, nil
}
