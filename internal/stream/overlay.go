// Package stream renders the board overlay and serves the live preview.
package stream

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"dartcam/internal/board"
	"dartcam/internal/vision"
)

var (
	ringColor  = color.RGBA{0, 255, 120, 255}
	wedgeColor = color.RGBA{0, 200, 255, 200}
	labelColor = color.RGBA{255, 255, 255, 255}
	hitColor   = color.RGBA{255, 40, 40, 255}
	// fallbackColor rings are dashed.
	fallbackColor = color.RGBA{255, 200, 0, 255}
)

const ringSteps = 120

// Marker is a landing drawn on the overlay.
type Marker struct {
	X, Y  float64
	Label string
}

// Overlay describes what to draw on a frame.
type Overlay struct {
	Calibration board.Calibration
	// Aligned is false when Calibration is the fallback circle.
	Aligned bool
	Hit     *Marker
	Status  string
}

// RenderOverlay draws rings, wedge boundaries, numbers, the last hit and the
// status line onto frame in place.
func RenderOverlay(frame *vision.Frame, o Overlay) {
	img := frame.Image()
	w, h := frame.Width, frame.Height
	cal := o.Calibration

	rings := ringColor
	if !o.Aligned {
		rings = fallbackColor
	}

	z := vector.NewRasterizer(w, h)
	for _, rho := range []float64{board.DoubleBull, board.SingleBull, board.TrebleInner, board.TrebleOuter, board.DoubleInner, board.DoubleOuter} {
		px, py := cal.Project(rho, 0, w, h)
		for i := 1; i <= ringSteps; i++ {
			a := 2 * math.Pi * float64(i) / ringSteps
			x, y := cal.Project(rho, a, w, h)
			if o.Aligned || i%2 == 0 {
				strokeSegment(z, px, py, x, y, 1.2)
			}
			px, py = x, y
		}
	}
	z.Draw(img, img.Bounds(), image.NewUniform(rings), image.Point{})

	if !cal.Valid() {
		drawLabel(img, 4, 4, o.Status, labelColor)
		return
	}

	z.Reset(w, h)
	half := board.SegmentDegrees / 2 * math.Pi / 180
	for i := range board.DartOrder {
		a := float64(i)*board.SegmentDegrees*math.Pi/180 - half
		x0, y0 := cal.Project(board.SingleBull, a, w, h)
		x1, y1 := cal.Project(board.DoubleOuter, a, w, h)
		strokeSegment(z, x0, y0, x1, y1, 1)
	}
	z.Draw(img, img.Bounds(), image.NewUniform(wedgeColor), image.Point{})

	for i, n := range board.DartOrder {
		a := float64(i) * board.SegmentDegrees * math.Pi / 180
		x, y := cal.Project(1.12, a, w, h)
		s := fmt.Sprintf("%d", n)
		drawLabel(img, int(x)-len(s)*7/2, int(y)-6, s, labelColor)
	}

	if o.Hit != nil {
		drawMarker(img, o.Hit.X, o.Hit.Y, hitColor)
		drawLabel(img, int(o.Hit.X)+6, int(o.Hit.Y)-16, o.Hit.Label, hitColor)
	}
	if o.Status != "" {
		drawLabel(img, 4, 4, o.Status, labelColor)
	}
}

// strokeSegment adds a line of the given width as a quad to z.
func strokeSegment(z *vector.Rasterizer, x0, y0, x1, y1, width float64) {
	dx, dy := x1-x0, y1-y0
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	z.MoveTo(float32(x0+nx), float32(y0+ny))
	z.LineTo(float32(x1+nx), float32(y1+ny))
	z.LineTo(float32(x1-nx), float32(y1-ny))
	z.LineTo(float32(x0-nx), float32(y0-ny))
	z.ClosePath()
}

func drawMarker(img *image.RGBA, x, y float64, c color.RGBA) {
	z := vector.NewRasterizer(img.Bounds().Dx(), img.Bounds().Dy())
	strokeSegment(z, x-5, y-5, x+5, y+5, 2)
	strokeSegment(z, x-5, y+5, x+5, y-5, 2)
	z.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{})
}

// drawLabel draws text on a translucent box with its top-left corner at x, y.
func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if label == "" {
		return
	}
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}

	box := image.Rect(x-2, y-1, x+len(label)*7+2, y+13).Intersect(img.Bounds())
	draw.Draw(img, box, image.NewUniform(color.RGBA{0, 0, 0, 160}), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}
