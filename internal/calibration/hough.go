package calibration

import (
	"math"

	"dartcam/internal/vision"
)

// HoughConfig bounds the fallback circle search.
type HoughConfig struct {
	MinRadius      float64 // fraction of min(w, h)
	MaxRadius      float64
	RadiusStep     int
	CellSize       int
	Votes          int
	EdgeFraction   float32 // of the strongest edge
	SampleStep     int
	MinEdgePoints  int
	MinCenterBonus float64
}

// DefaultHoughConfig returns the search bounds used when no hint is available:
// radii of 15-50% of the short side, 4 px centre cells, edges above a quarter
// of the strongest.
func DefaultHoughConfig() HoughConfig {
	return HoughConfig{
		MinRadius:      0.15,
		MaxRadius:      0.50,
		RadiusStep:     2,
		CellSize:       4,
		Votes:          12,
		EdgeFraction:   0.25,
		SampleStep:     2,
		MinEdgePoints:  20,
		MinCenterBonus: 0.1,
	}
}

// HoughCircle votes for circle centres over a radius band. Scores are weighted
// toward the frame centre.
func HoughCircle(edges *vision.EdgeMap, cfg HoughConfig) (Circle, bool) {
	w, h := edges.Width, edges.Height
	minDim := float64(w)
	if h < w {
		minDim = float64(h)
	}
	rMin := int(math.Floor(minDim * cfg.MinRadius))
	rMax := int(math.Floor(minDim * cfg.MaxRadius))
	if rMin < 1 || cfg.RadiusStep < 1 || cfg.CellSize < 1 || cfg.Votes < 1 {
		return Circle{}, false
	}

	thresh := edges.Max() * cfg.EdgeFraction
	if thresh <= 0 {
		return Circle{}, false
	}

	step := cfg.SampleStep
	if step < 1 {
		step = 1
	}
	var pts [][2]int
	for y := 2; y < h-2; y += step {
		for x := 2; x < w-2; x += step {
			if edges.Mag[y*w+x] > thresh {
				pts = append(pts, [2]int{x, y})
			}
		}
	}
	if len(pts) < cfg.MinEdgePoints {
		return Circle{}, false
	}

	cos := make([]float64, cfg.Votes)
	sin := make([]float64, cfg.Votes)
	for i := range cos {
		a := float64(i) / float64(cfg.Votes) * 2 * math.Pi
		cos[i], sin[i] = math.Cos(a), math.Sin(a)
	}

	cell := cfg.CellSize
	accW := (w + cell - 1) / cell
	accH := (h + cell - 1) / cell
	acc := make([]uint16, accW*accH)

	var (
		best      Circle
		bestScore float64
		found     bool
	)
	for r := rMin; r <= rMax; r += cfg.RadiusStep {
		clear(acc)
		fr := float64(r)
		for _, p := range pts {
			for i := range cos {
				bx := int(math.Floor((float64(p[0]) + fr*cos[i]) / float64(cell)))
				by := int(math.Floor((float64(p[1]) + fr*sin[i]) / float64(cell)))
				if bx >= 0 && bx < accW && by >= 0 && by < accH {
					acc[by*accW+bx]++
				}
			}
		}

		for i, v := range acc {
			if v == 0 {
				continue
			}
			cx := float64((i%accW)*cell) + float64(cell)/2
			cy := float64((i/accW)*cell) + float64(cell)/2
			bonus := 1 - math.Hypot(cx-float64(w)/2, cy-float64(h)/2)/(minDim*0.5)
			score := float64(v) * math.Max(cfg.MinCenterBonus, bonus)
			if !found || score > bestScore {
				best = Circle{CX: cx, CY: cy, R: fr}
				bestScore = score
				found = true
			}
		}
	}
	return best, found
}
