package vision

import (
	"fmt"
	"math"
)

// Radial lens model: a corrected pixel p is sampled from the captured frame at
// c + (p - c)·(1 + k·r²), where r is |p - c| normalised by the half diagonal.

const undistortIterations = 12

// UndistortMap maps every corrected pixel to its source pixel, or -1.
type UndistortMap struct {
	Width  int
	Height int
	K      float64
	Src    []int32
}

// NewUndistortMap builds the lookup table for a w×h frame.
func NewUndistortMap(w, h int, k float64) *UndistortMap {
	m := &UndistortMap{Width: w, Height: h, K: k, Src: make([]int32, w*h)}
	cx, cy := float64(w)/2, float64(h)/2
	maxR := math.Hypot(cx, cy)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dx, dy := float64(x)-cx, float64(y)-cy
			r := math.Hypot(dx, dy) / maxR
			scale := 1 + k*r*r
			sx := int(math.Round(cx + dx*scale))
			sy := int(math.Round(cy + dy*scale))
			if sx >= 0 && sx < w && sy >= 0 && sy < h {
				m.Src[y*w+x] = int32(sy*w + sx)
			} else {
				m.Src[y*w+x] = -1
			}
		}
	}
	return m
}

// Matches reports whether the map was built for these parameters.
func (m *UndistortMap) Matches(w, h int, k float64) bool {
	return m != nil && m.Width == w && m.Height == h && m.K == k
}

// ApplyUndistort rewrites f in place. Pixels with no source become opaque black.
func ApplyUndistort(f *Frame, m *UndistortMap) {
	if f.Width != m.Width || f.Height != m.Height {
		panic(fmt.Sprintf("vision: undistort map %dx%d applied to %dx%d frame", m.Width, m.Height, f.Width, f.Height))
	}
	src := make([]uint8, len(f.Pix))
	copy(src, f.Pix)

	for i, s := range m.Src {
		d := i * 4
		if s < 0 {
			f.Pix[d], f.Pix[d+1], f.Pix[d+2], f.Pix[d+3] = 0, 0, 0, 255
			continue
		}
		si := int(s) * 4
		copy(f.Pix[d:d+4], src[si:si+4])
	}
}

// UndistortPoint maps a point in the captured frame to corrected coordinates,
// inverting the radial model with a fixed-point iteration. k == 0 is the identity.
func UndistortPoint(x, y float64, w, h int, k float64) (float64, float64) {
	if k == 0 {
		return x, y
	}
	cx, cy := float64(w)/2, float64(h)/2
	maxR := math.Hypot(cx, cy)
	dx, dy := x-cx, y-cy

	ux, uy := dx, dy
	for i := 0; i < undistortIterations; i++ {
		r := math.Hypot(ux, uy) / maxR
		scale := 1 + k*r*r
		if scale <= 0 {
			break
		}
		ux, uy = dx/scale, dy/scale
	}
	return cx + ux, cy + uy
}

// DistortPoint applies the forward model: where corrected point (x, y) is found
// in the captured frame.
func DistortPoint(x, y float64, w, h int, k float64) (float64, float64) {
	cx, cy := float64(w)/2, float64(h)/2
	maxR := math.Hypot(cx, cy)
	dx, dy := x-cx, y-cy
	r := math.Hypot(dx, dy) / maxR
	scale := 1 + k*r*r
	return cx + dx*scale, cy + dy*scale
}
