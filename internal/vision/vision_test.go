package vision

import (
	"image"
	"image/color"
	"math"
	"testing"
)

func solidFrame(w, h int, c color.RGBA) *Frame {
	f := NewFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.Set(x, y, c)
		}
	}
	return f
}

func TestGrayscaleWeights(t *testing.T) {
	tests := []struct {
		name string
		c    color.RGBA
		want float32
	}{
		{"black", color.RGBA{0, 0, 0, 255}, 0},
		{"white", color.RGBA{255, 255, 255, 255}, 255},
		{"red", color.RGBA{255, 0, 0, 255}, 255 * 0.299},
		{"green", color.RGBA{0, 255, 0, 255}, 255 * 0.587},
		{"blue", color.RGBA{0, 0, 255, 255}, 255 * 0.114},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := Grayscale(solidFrame(4, 4, tt.c))
			if d := math.Abs(float64(g.Pix[5] - tt.want)); d > 0.01 {
				t.Errorf("luma = %v, want %v", g.Pix[5], tt.want)
			}
		})
	}
}

func TestGaussianBlurPreservesFlatField(t *testing.T) {
	g := Grayscale(solidFrame(9, 7, color.RGBA{100, 100, 100, 255}))
	b := GaussianBlur(g)
	for i, v := range b.Pix {
		if math.Abs(float64(v-g.Pix[i])) > 1e-3 {
			t.Fatalf("pixel %d changed from %v to %v", i, g.Pix[i], v)
		}
	}
}

func TestSobelRespondsToStep(t *testing.T) {
	f := solidFrame(10, 10, color.RGBA{0, 0, 0, 255})
	for y := 0; y < 10; y++ {
		for x := 5; x < 10; x++ {
			f.Set(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	e := Sobel(Grayscale(f))
	if e.At(0, 5) != 0 || e.At(9, 5) != 0 {
		t.Error("border pixels should be zero")
	}
	if e.At(2, 5) != 0 {
		t.Errorf("flat region magnitude = %v, want 0", e.At(2, 5))
	}
	if e.At(5, 5) < 500 {
		t.Errorf("step magnitude = %v, want a strong response", e.At(5, 5))
	}
}

func TestGrayscalePanicsOnMismatch(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Grayscale(&Frame{Width: 4, Height: 4, Pix: make([]uint8, 10)})
}

func TestUndistortMapIdentityAtZero(t *testing.T) {
	m := NewUndistortMap(32, 24, 0)
	for i, s := range m.Src {
		if int(s) != i {
			t.Fatalf("src[%d] = %d, want identity", i, s)
		}
	}
	if !m.Matches(32, 24, 0) || m.Matches(32, 24, 0.1) || m.Matches(24, 32, 0) {
		t.Error("Matches did not track parameters")
	}
}

func TestApplyUndistortBlacksOutOfBounds(t *testing.T) {
	f := solidFrame(40, 30, color.RGBA{200, 10, 10, 255})
	ApplyUndistort(f, NewUndistortMap(40, 30, 0.4))

	// Corners sample beyond the frame with k > 0.
	if f.Pix[0] != 0 || f.Pix[3] != 255 {
		t.Errorf("corner = %v, want opaque black", f.Pix[0:4])
	}
	c := ((15*40)+20)*4
	if f.Pix[c] != 200 {
		t.Errorf("centre = %v, want unchanged", f.Pix[c:c+4])
	}
}

func TestUndistortPointRoundTrip(t *testing.T) {
	const w, h = 320, 240
	points := [][2]float64{{160, 120}, {10, 10}, {300, 30}, {200, 220}, {60, 180}}
	for _, k := range []float64{0, 0.1, 0.2, 0.3, 0.4} {
		for _, p := range points {
			dx, dy := DistortPoint(p[0], p[1], w, h, k)
			ux, uy := UndistortPoint(dx, dy, w, h, k)
			if math.Abs(ux-p[0]) > 0.05 || math.Abs(uy-p[1]) > 0.05 {
				t.Errorf("k=%v p=%v: round trip gave (%.3f, %.3f)", k, p, ux, uy)
			}
		}
	}
}

func TestUndistortPointIdentity(t *testing.T) {
	x, y := UndistortPoint(12.5, 99.25, 320, 240, 0)
	if x != 12.5 || y != 99.25 {
		t.Errorf("got (%v, %v)", x, y)
	}
}

func TestResizeKeepsAspect(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 1280, 720))
	f := Resize(src, DefaultWorkWidth)
	if f.Width != 320 || f.Height != 180 {
		t.Errorf("got %dx%d, want 320x180", f.Width, f.Height)
	}
	small := Resize(image.NewRGBA(image.Rect(0, 0, 100, 50)), DefaultWorkWidth)
	if small.Width != 100 || small.Height != 50 {
		t.Errorf("small source scaled to %dx%d", small.Width, small.Height)
	}
}
