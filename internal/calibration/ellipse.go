package calibration

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// degenerateDet is the smallest accepted normal-matrix determinant relative to n³.
const degenerateDet = 1e-9

// Ellipse is a centred ellipse in pixels. RX is the semi-major axis and Angle
// its direction in (-π/2, π/2].
type Ellipse struct {
	RX, RY, Angle float64
}

// RadiusAt returns the distance from the centre to the ellipse along theta.
func (e Ellipse) RadiusAt(theta float64) float64 {
	c, s := math.Cos(theta-e.Angle), math.Sin(theta-e.Angle)
	return 1 / math.Sqrt(c*c/(e.RX*e.RX)+s*s/(e.RY*e.RY))
}

// FitEllipse solves 1/r² = c0 + c1·cos2θ + c2·sin2θ in the least-squares sense
// through its 3×3 normal equations, using Cramer's rule.
func FitEllipse(samples []RaySample) (Ellipse, error) {
	n := len(samples)
	if n < 3 {
		return Ellipse{}, fmt.Errorf("%w: %d samples", ErrInsufficientSamples, n)
	}

	var a [9]float64
	var b [3]float64
	for _, s := range samples {
		if s.R <= 0 {
			continue
		}
		row := [3]float64{1, math.Cos(2 * s.Theta), math.Sin(2 * s.Theta)}
		y := 1 / (s.R * s.R)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				a[i*3+j] += row[i] * row[j]
			}
			b[i] += row[i] * y
		}
	}

	A := mat.NewDense(3, 3, a[:])
	det := mat.Det(A)
	if math.Abs(det) < degenerateDet*math.Pow(float64(n), 3) {
		return Ellipse{}, fmt.Errorf("%w: det %.3g", ErrDegenerateFit, det)
	}

	var coef [3]float64
	for k := 0; k < 3; k++ {
		ak := a
		for i := 0; i < 3; i++ {
			ak[i*3+k] = b[i]
		}
		coef[k] = mat.Det(mat.NewDense(3, 3, ak[:])) / det
	}

	c0, c1, c2 := coef[0], coef[1], coef[2]
	m := math.Hypot(c1, c2)
	lMajor, lMinor := c0-m, c0+m
	if lMajor <= 0 || lMinor <= 0 {
		return Ellipse{}, fmt.Errorf("%w: principal values %.3g, %.3g", ErrImplausibleFit, lMajor, lMinor)
	}

	var angle float64
	if m > 1e-12*c0 {
		angle = (math.Atan2(c2, c1) + math.Pi) / 2
		if angle > math.Pi/2 {
			angle -= math.Pi
		}
	}
	return Ellipse{
		RX:    1 / math.Sqrt(lMajor),
		RY:    1 / math.Sqrt(lMinor),
		Angle: angle,
	}, nil
}
