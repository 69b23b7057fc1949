// Package vision holds the frame types and the pixel-level transforms shared by
// landing detection and board calibration.
package vision

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// DefaultWorkWidth is the width frames are downsampled to before processing.
const DefaultWorkWidth = 320

// Frame is an RGBA raster, 4 bytes per pixel, row-major.
type Frame struct {
	Width  int
	Height int
	Pix    []uint8
}

// NewFrame allocates a black, fully opaque frame.
func NewFrame(w, h int) *Frame {
	f := &Frame{Width: w, Height: h, Pix: make([]uint8, w*h*4)}
	for i := 3; i < len(f.Pix); i += 4 {
		f.Pix[i] = 255
	}
	return f
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	pix := make([]uint8, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Width: f.Width, Height: f.Height, Pix: pix}
}

// MinDim is min(Width, Height).
func (f *Frame) MinDim() int {
	if f.Width < f.Height {
		return f.Width
	}
	return f.Height
}

// Set writes one pixel; out of range coordinates are ignored.
func (f *Frame) Set(x, y int, c color.RGBA) {
	if x < 0 || y < 0 || x >= f.Width || y >= f.Height {
		return
	}
	i := (y*f.Width + x) * 4
	f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3] = c.R, c.G, c.B, c.A
}

// Image exposes the frame as an *image.RGBA sharing the same pixel buffer.
func (f *Frame) Image() *image.RGBA {
	return &image.RGBA{
		Pix:    f.Pix,
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// FromImage copies any image into a Frame without scaling.
func FromImage(src image.Image) *Frame {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return &Frame{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

// Resize scales src to the given working width, keeping the aspect ratio.
// Sources already at or below width are copied unscaled.
func Resize(src image.Image, width int) *Frame {
	b := src.Bounds()
	if width <= 0 || b.Dx() <= width {
		return FromImage(src)
	}
	height := b.Dy() * width / b.Dx()
	if height < 1 {
		height = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return &Frame{Width: width, Height: height, Pix: dst.Pix}
}
