package vision

import (
	"fmt"
	"math"
)

// Gray is a single-channel float raster.
type Gray struct {
	Width  int
	Height int
	Pix    []float32
}

// EdgeMap holds Sobel gradient magnitudes.
type EdgeMap struct {
	Width  int
	Height int
	Mag    []float32
}

// At returns the magnitude at (x, y), or 0 outside the map.
func (e *EdgeMap) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= e.Width || y >= e.Height {
		return 0
	}
	return e.Mag[y*e.Width+x]
}

// Max returns the largest magnitude in the map.
func (e *EdgeMap) Max() float32 {
	var m float32
	for _, v := range e.Mag {
		if v > m {
			m = v
		}
	}
	return m
}

var blurKernel = [5]float32{1.0 / 16, 4.0 / 16, 6.0 / 16, 4.0 / 16, 1.0 / 16}

// Grayscale converts to luma with Rec. 601 weights.
func Grayscale(f *Frame) *Gray {
	if len(f.Pix) != f.Width*f.Height*4 {
		panic(fmt.Sprintf("vision: frame buffer %d does not match %dx%d", len(f.Pix), f.Width, f.Height))
	}
	g := &Gray{Width: f.Width, Height: f.Height, Pix: make([]float32, f.Width*f.Height)}
	for i, gi := 0, 0; i < len(f.Pix); i, gi = i+4, gi+1 {
		g.Pix[gi] = float32(f.Pix[i])*0.299 + float32(f.Pix[i+1])*0.587 + float32(f.Pix[i+2])*0.114
	}
	return g
}

// GaussianBlur applies the separable [1 4 6 4 1]/16 kernel with clamped edges.
func GaussianBlur(src *Gray) *Gray {
	w, h := src.Width, src.Height
	tmp := make([]float32, w*h)
	out := &Gray{Width: w, Height: h, Pix: make([]float32, w*h)}

	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			var sum float32
			for k := -2; k <= 2; k++ {
				sum += src.Pix[row+clamp(x+k, 0, w-1)] * blurKernel[k+2]
			}
			tmp[row+x] = sum
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var sum float32
			for k := -2; k <= 2; k++ {
				sum += tmp[clamp(y+k, 0, h-1)*w+x] * blurKernel[k+2]
			}
			out.Pix[y*w+x] = sum
		}
	}
	return out
}

// Sobel computes the 3x3 gradient magnitude. Border pixels are zero.
func Sobel(src *Gray) *EdgeMap {
	w, h := src.Width, src.Height
	out := &EdgeMap{Width: w, Height: h, Mag: make([]float32, w*h)}
	p := src.Pix
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			tl, tc, tr := p[(y-1)*w+x-1], p[(y-1)*w+x], p[(y-1)*w+x+1]
			ml, mr := p[y*w+x-1], p[y*w+x+1]
			bl, bc, br := p[(y+1)*w+x-1], p[(y+1)*w+x], p[(y+1)*w+x+1]
			gx := -tl + tr - 2*ml + 2*mr - bl + br
			gy := -tl - 2*tc - tr + bl + 2*bc + br
			out.Mag[y*w+x] = float32(math.Sqrt(float64(gx*gx + gy*gy)))
		}
	}
	return out
}

// Preprocess runs grayscale, blur and Sobel in sequence.
func Preprocess(f *Frame) (*Gray, *EdgeMap) {
	blurred := GaussianBlur(Grayscale(f))
	return blurred, Sobel(blurred)
}

// Luma returns the 8-bit grayscale used by the landing detector.
func Luma(f *Frame) []uint8 {
	g := Grayscale(f)
	out := make([]uint8, len(g.Pix))
	for i, v := range g.Pix {
		out[i] = uint8(math.Round(float64(v)))
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
