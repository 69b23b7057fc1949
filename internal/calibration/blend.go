package calibration

import (
	"math"

	"dartcam/internal/board"
)

// Blend moves prev toward next by alpha. Linear fields use an exponential
// moving average; Angle (period π) and Rotation (period 2π) follow the
// shortest arc. An invalid prev yields next unchanged.
func Blend(prev, next board.Calibration, alpha float64) board.Calibration {
	if !prev.Valid() {
		return next
	}
	alpha = math.Max(0, math.Min(1, alpha))
	lerp := func(a, b float64) float64 { return a + alpha*(b-a) }

	return board.Calibration{
		CX:       lerp(prev.CX, next.CX),
		CY:       lerp(prev.CY, next.CY),
		RX:       lerp(prev.RX, next.RX),
		RY:       lerp(prev.RY, next.RY),
		Angle:    blendAngle(prev.Angle, next.Angle, alpha, math.Pi),
		Rotation: blendAngle(prev.Rotation, next.Rotation, alpha, 2*math.Pi),
	}
}

func blendAngle(a, b, alpha, period float64) float64 {
	d := wrap(b-a, period)
	return wrap(a+alpha*d, period)
}

// wrap maps v into (-period/2, period/2].
func wrap(v, period float64) float64 {
	v = math.Mod(v, period)
	if v > period/2 {
		v -= period
	} else if v <= -period/2 {
		v += period
	}
	return v
}
