package calibration

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"dartcam/internal/vision"
)

// RaySample is the strongest edge found along one ray, in pixels from the ray origin.
type RaySample struct {
	Theta float64
	R     float64
}

// SampleRays casts n evenly spaced rays from (cx, cy) and records the radius of
// the strongest edge in [rMin, rMax) on each. Rays that leave the frame stop
// there; rays with no edge at all are dropped.
func SampleRays(edges *vision.EdgeMap, cx, cy, rMin, rMax float64, n int) []RaySample {
	out := make([]RaySample, 0, n)
	for i := 0; i < n; i++ {
		theta := float64(i) / float64(n) * 2 * math.Pi
		ux, uy := math.Cos(theta), math.Sin(theta)

		var bestR float64
		var bestE float32
		for r := rMin; r < rMax; r++ {
			px := int(math.Round(cx + r*ux))
			py := int(math.Round(cy + r*uy))
			if px < 0 || px >= edges.Width || py < 0 || py >= edges.Height {
				break
			}
			if e := edges.Mag[py*edges.Width+px]; e > bestE {
				bestE, bestR = e, r
			}
		}
		if bestE <= 0 {
			continue
		}
		out = append(out, RaySample{Theta: theta, R: bestR + subPixelOffset(edges, cx, cy, ux, uy, bestR)})
	}
	return out
}

// subPixelOffset fits a parabola through the magnitudes one pixel either side
// of the peak.
func subPixelOffset(edges *vision.EdgeMap, cx, cy, ux, uy, r float64) float64 {
	at := func(rr float64) float64 {
		return float64(edges.At(int(math.Round(cx+rr*ux)), int(math.Round(cy+rr*uy))))
	}
	a, b, c := at(r-1), at(r), at(r+1)
	den := a - 2*b + c
	if den >= 0 {
		return 0
	}
	off := 0.5 * (a - c) / den
	if off < -0.5 || off > 0.5 {
		return 0
	}
	return off
}

// MedianRadius is the median of the sample radii.
func MedianRadius(samples []RaySample) float64 {
	if len(samples) == 0 {
		return 0
	}
	radii := make([]float64, len(samples))
	for i, s := range samples {
		radii[i] = s.R
	}
	sort.Float64s(radii)
	return stat.Quantile(0.5, stat.Empirical, radii, nil)
}

// RejectOutliers keeps samples within fraction of the median radius.
func RejectOutliers(samples []RaySample, fraction float64) []RaySample {
	med := MedianRadius(samples)
	if med <= 0 {
		return nil
	}
	kept := make([]RaySample, 0, len(samples))
	for _, s := range samples {
		if math.Abs(s.R-med) <= fraction*med {
			kept = append(kept, s)
		}
	}
	return kept
}

// RefineCenter pairs each sample with the one closest to the opposite
// direction (within tolerance radians) and returns the median midpoint of the
// pairs' edge points. ok is false when no pair exists.
func RefineCenter(cx, cy float64, samples []RaySample, tolerance float64) (Circle, bool) {
	var xs, ys []float64
	for i, a := range samples {
		want := a.Theta + math.Pi
		best := -1
		bestD := tolerance
		for j, b := range samples {
			if i == j {
				continue
			}
			if d := angleDistance(want, b.Theta); d <= bestD {
				best, bestD = j, d
			}
		}
		if best < 0 {
			continue
		}
		b := samples[best]
		x1, y1 := cx+a.R*math.Cos(a.Theta), cy+a.R*math.Sin(a.Theta)
		x2, y2 := cx+b.R*math.Cos(b.Theta), cy+b.R*math.Sin(b.Theta)
		xs = append(xs, (x1+x2)/2)
		ys = append(ys, (y1+y2)/2)
	}
	if len(xs) == 0 {
		return Circle{}, false
	}
	sort.Float64s(xs)
	sort.Float64s(ys)
	return Circle{
		CX: stat.Quantile(0.5, stat.Empirical, xs, nil),
		CY: stat.Quantile(0.5, stat.Empirical, ys, nil),
	}, true
}

// angleDistance is the absolute shortest angular distance between a and b.
func angleDistance(a, b float64) float64 {
	d := math.Mod(math.Abs(a-b), 2*math.Pi)
	if d > math.Pi {
		d = 2*math.Pi - d
	}
	return d
}
