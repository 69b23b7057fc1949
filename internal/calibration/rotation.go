package calibration

import (
	"math"

	"dartcam/internal/board"
	"dartcam/internal/vision"
)

// TieBreak selects between the two wedge centres either side of the wire
// boundary nearest straight up. The choice is a heuristic.
type TieBreak int

const (
	// NearestVertical picks whichever centre is closer to straight up.
	NearestVertical TieBreak = iota
	// Clockwise always picks the centre clockwise of the boundary.
	Clockwise
	// CounterClockwise always picks the centre counter-clockwise of the boundary.
	CounterClockwise
)

const (
	profileBins    = 360
	annulusSamples = 8
	smoothRadius   = 3
	offsetStep     = 0.5
	// topDegrees is straight up in image angles (y grows downward).
	topDegrees = 270.0
)

// WireRotation finds the angular offset of the segment wires. It samples edge
// magnitude around an annulus between the treble and double rings, smooths the
// profile and picks the offset whose 20 evenly spaced boundaries collect the
// most edge energy. The result is the offset of the centre of segment 20 from
// straight up, in radians within [-π, π].
//
// The profile is indexed by the ellipse parameter, which sits angle radians
// behind the angle Classify sees once the ellipse is undone.
func WireRotation(edges *vision.EdgeMap, cx, cy, rx, ry, angle float64, tie TieBreak) float64 {
	profile := wireProfile(edges, cx, cy, rx, ry, angle)
	smoothed := smoothCircular(profile, smoothRadius)

	steps := int(board.SegmentDegrees / offsetStep)
	scores := make([]float64, steps)
	best := 0
	for i := range scores {
		off := float64(i) * offsetStep
		for n := 0; n < 20; n++ {
			at := off + float64(n)*board.SegmentDegrees
			for j := -1; j <= 1; j++ {
				scores[i] += sampleCircular(smoothed, at+float64(j))
			}
		}
		if scores[i] > scores[best] {
			best = i
		}
	}
	bestOff := plateauCentre(scores, best) * offsetStep

	// Move the boundaries into the frame Classify measures angles in.
	bestOff = math.Mod(bestOff+angle*180/math.Pi, board.SegmentDegrees)
	if bestOff < 0 {
		bestOff += board.SegmentDegrees
	}

	// Boundary nearest straight up.
	var wa float64
	nearest := 360.0
	for n := 0; n < 20; n++ {
		b := math.Mod(bestOff+float64(n)*board.SegmentDegrees, 360)
		if d := degDistance(b, topDegrees); d < nearest {
			nearest, wa = d, b
		}
	}

	half := board.SegmentDegrees / 2
	cw := math.Mod(wa+half, 360)
	ccw := math.Mod(wa-half+360, 360)
	var seg float64
	switch tie {
	case Clockwise:
		seg = cw
	case CounterClockwise:
		seg = ccw
	default:
		if degDistance(cw, topDegrees) < degDistance(ccw, topDegrees) {
			seg = cw
		} else {
			seg = ccw
		}
	}

	rot := seg - topDegrees
	if rot > 180 {
		rot -= 360
	}
	if rot < -180 {
		rot += 360
	}
	return rot * math.Pi / 180
}

func wireProfile(edges *vision.EdgeMap, cx, cy, rx, ry, angle float64) []float64 {
	profile := make([]float64, profileBins)
	rIn := board.TrebleOuter + 0.05
	rOut := board.DoubleInner - 0.05
	cosE, sinE := math.Cos(angle), math.Sin(angle)

	for ai := 0; ai < profileBins; ai++ {
		a := float64(ai) / profileBins * 2 * math.Pi
		ux, uy := math.Cos(a), math.Sin(a)
		var sum float64
		for si := 0; si < annulusSamples; si++ {
			frac := rIn + (rOut-rIn)*float64(si)/float64(annulusSamples-1)
			ex, ey := ux*rx*frac, uy*ry*frac
			px := int(math.Round(cx + ex*cosE - ey*sinE))
			py := int(math.Round(cy + ex*sinE + ey*cosE))
			sum += float64(edges.At(px, py))
		}
		profile[ai] = sum
	}
	return profile
}

// plateauCentre returns the middle of the run of offsets scoring within a
// hair of scores[best], wrapping around the segment.
func plateauCentre(scores []float64, best int) float64 {
	n := len(scores)
	tol := scores[best] * 1e-6
	lo, hi := 0, 0
	for lo < n-1 && scores[best]-scores[((best-lo-1)%n+n)%n] <= tol {
		lo++
	}
	for hi < n-1-lo && scores[best]-scores[(best+hi+1)%n] <= tol {
		hi++
	}
	return float64(best) + float64(hi-lo)/2
}

// sampleCircular reads the profile at a fractional degree, interpolating
// between bins.
func sampleCircular(profile []float64, deg float64) float64 {
	n := len(profile)
	pos := math.Mod(deg, float64(n))
	if pos < 0 {
		pos += float64(n)
	}
	i := int(pos)
	frac := pos - float64(i)
	return profile[i%n]*(1-frac) + profile[(i+1)%n]*frac
}

func smoothCircular(in []float64, k int) []float64 {
	n := len(in)
	out := make([]float64, n)
	for i := range in {
		var s float64
		for j := -k; j <= k; j++ {
			s += in[((i+j)%n+n)%n]
		}
		out[i] = s / float64(2*k+1)
	}
	return out
}

func degDistance(a, b float64) float64 {
	d := math.Abs(a - b)
	if d > 180 {
		d = 360 - d
	}
	return d
}
