// Package board describes dartboard geometry: regulation ring proportions,
// the segment numbering, and the fitted calibration of a board in a frame.
package board

import "math"

// Ring radii as a fraction of the outer double wire (170 mm).
const (
	DoubleBull  = 0.037
	SingleBull  = 0.094
	TrebleInner = 0.582
	TrebleOuter = 0.629
	DoubleInner = 0.953
	DoubleOuter = 1.0
	// MissRadius is the tolerance edge beyond which a landing is off the board.
	MissRadius = 1.06
)

// SegmentDegrees is the angular width of one numbered wedge.
const SegmentDegrees = 18.0

// DartOrder lists segment numbers clockwise starting from the top.
var DartOrder = [20]int{20, 1, 18, 4, 13, 6, 10, 15, 2, 17, 3, 19, 7, 16, 8, 11, 14, 9, 12, 5}

// Calibration is the fitted board ellipse within a frame.
//
// CX and CY are normalised to frame width and height. RX and RY are the
// semi-major and semi-minor axes normalised to min(width, height). Angle is the
// major-axis direction in image coordinates and Rotation the offset of the
// centre of segment 20 from straight up, both in radians.
type Calibration struct {
	CX       float64 `json:"cx"`
	CY       float64 `json:"cy"`
	RX       float64 `json:"rx"`
	RY       float64 `json:"ry"`
	Angle    float64 `json:"angle"`
	Rotation float64 `json:"rotation"`
}

// Circle builds an unrotated circular calibration.
func Circle(cx, cy, r float64) Calibration {
	return Calibration{CX: cx, CY: cy, RX: r, RY: r}
}

// Valid reports whether both axes are positive.
func (c Calibration) Valid() bool {
	return c.RX > 0 && c.RY > 0 && !math.IsNaN(c.CX) && !math.IsNaN(c.CY)
}

// Tilt is the foreshortening of the board, 0 for a face-on view.
func (c Calibration) Tilt() float64 {
	if c.RX <= 0 {
		return 0
	}
	return 1 - c.RY/c.RX
}

// RotationDegrees returns Rotation in degrees.
func (c Calibration) RotationDegrees() float64 {
	return c.Rotation * 180 / math.Pi
}

// Project maps a board position to pixel coordinates in a w×h frame. rho is
// the radius as a fraction of the outer double wire and a the clockwise angle
// from the centre of segment 20, in radians.
func (c Calibration) Project(rho, a float64, w, h int) (x, y float64) {
	minDim := float64(w)
	if h < w {
		minDim = float64(h)
	}
	theta := a + c.Rotation - math.Pi/2
	dx := rho * c.RX * math.Cos(theta)
	dy := rho * c.RX * math.Sin(theta)

	if c.RX != c.RY || c.Angle != 0 {
		cos, sin := math.Cos(-c.Angle), math.Sin(-c.Angle)
		rdx := dx*cos - dy*sin
		rdy := (dx*sin + dy*cos) * (c.RY / c.RX)
		cos, sin = math.Cos(c.Angle), math.Sin(c.Angle)
		dx, dy = rdx*cos-rdy*sin, rdx*sin+rdy*cos
	}
	return c.CX*float64(w) + dx*minDim, c.CY*float64(h) + dy*minDim
}
