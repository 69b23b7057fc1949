// Package scoring turns a landing point into a dartboard hit.
package scoring

import (
	"fmt"
	"math"

	"dartcam/internal/board"
)

// Bull is the board number reported for both bull rings. None means no segment.
const (
	None = 0
	Bull = 25
)

// Per-ring confidences.
const (
	DoubleBullConfidence = 0.9
	SingleBullConfidence = 0.85
	RingConfidence       = 0.75
	// NoBoardConfidence marks a landing outside the board. It is never combined
	// with the motion confidence.
	NoBoardConfidence = 0.55

	MaxConfidence = 0.99
)

// Hit is a classified landing.
type Hit struct {
	Number     int     `json:"number"`
	Multiplier int     `json:"multiplier"`
	Confidence float64 `json:"confidence"`
}

// IsMiss reports whether the landing scored nothing.
func (h Hit) IsMiss() bool {
	return h.Number == None || h.Multiplier == 0
}

// Classify maps a pixel position in a w×h frame to a hit against cal.
func Classify(x, y float64, w, h int, cal board.Calibration) Hit {
	minDim := float64(w)
	if h < w {
		minDim = float64(h)
	}
	dx := (x - cal.CX*float64(w)) / minDim
	dy := (y - cal.CY*float64(h)) / minDim

	// Undo the ellipse: stretch the minor axis up to the major one.
	if cal.RX != cal.RY || cal.Angle != 0 {
		cos, sin := math.Cos(-cal.Angle), math.Sin(-cal.Angle)
		rdx := dx*cos - dy*sin
		rdy := (dx*sin + dy*cos) * (cal.RX / cal.RY)
		cos, sin = math.Cos(cal.Angle), math.Sin(cal.Angle)
		dx, dy = rdx*cos-rdy*sin, rdx*sin+rdy*cos
	}

	r := math.Hypot(dx, dy) / cal.RX

	switch {
	case r > board.MissRadius:
		return Hit{Number: None, Multiplier: 0, Confidence: NoBoardConfidence}
	case r <= board.DoubleBull:
		return Hit{Number: Bull, Multiplier: 2, Confidence: DoubleBullConfidence}
	case r <= board.SingleBull:
		return Hit{Number: Bull, Multiplier: 1, Confidence: SingleBullConfidence}
	}

	number := Segment(math.Atan2(dy, dx), cal.Rotation)

	multiplier := 1
	switch {
	case r >= board.DoubleInner && r <= board.DoubleOuter:
		multiplier = 2
	case r >= board.TrebleInner && r <= board.TrebleOuter:
		multiplier = 3
	}
	return Hit{Number: number, Multiplier: multiplier, Confidence: RingConfidence}
}

// Segment returns the board number for an image-space angle (atan2(dy, dx))
// given the board rotation. Wedges are centred on their numbers, so segment 20
// spans ±9° around the rotated vertical.
func Segment(theta, rotation float64) int {
	deg := math.Mod(theta*180/math.Pi+450, 360)
	deg -= rotation * 180 / math.Pi
	deg = math.Mod(deg+board.SegmentDegrees/2, 360)
	if deg < 0 {
		deg += 360
	}
	idx := int(deg/board.SegmentDegrees) % len(board.DartOrder)
	return board.DartOrder[idx]
}

// Combine merges the ring confidence with the motion confidence. The no-board
// sentinel passes through untouched.
func Combine(h Hit, motion float64) Hit {
	if h.Number == None {
		return h
	}
	c := math.Max(h.Confidence, motion)
	h.Confidence = math.Max(0, math.Min(MaxConfidence, c))
	return h
}

// Label renders a hit the way a scorer calls it: MISS, DBULL, SBULL, 20, D20, T20.
func Label(h Hit) string {
	if h.IsMiss() {
		return "MISS"
	}
	if h.Number == Bull {
		if h.Multiplier == 2 {
			return "DBULL"
		}
		return "SBULL"
	}
	switch h.Multiplier {
	case 1:
		return fmt.Sprintf("%d", h.Number)
	case 2:
		return fmt.Sprintf("D%d", h.Number)
	default:
		return fmt.Sprintf("T%d", h.Number)
	}
}

// Score is the points value of a hit.
func Score(h Hit) int {
	if h.IsMiss() {
		return 0
	}
	if h.Number == Bull {
		if h.Multiplier == 2 {
			return 50
		}
		return 25
	}
	return h.Number * h.Multiplier
}
