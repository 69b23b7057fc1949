// Package detection provides region hints: rough circles around objects that
// look like a dartboard, produced by an external object detector.
package detection

import (
	"bytes"
	"context"
	"errors"
	"image/jpeg"
	"math"

	"dartcam/internal/vision"
)

// ErrProviderUnavailable is returned when no hint provider can serve a request.
var ErrProviderUnavailable = errors.New("hint provider unavailable")

// Region is a circular hint in frame pixels.
type Region struct {
	CX         float64 `json:"cx"`
	CY         float64 `json:"cy"`
	R          float64 `json:"r"`
	Label      string  `json:"label"`
	Confidence float32 `json:"confidence"`
}

// Provider returns board-like regions for a frame.
type Provider interface {
	Name() string
	IsReady() bool
	Hints(ctx context.Context, frame *vision.Frame) ([]Region, error)
	Close() error
}

// Detection is one object reported by a detector service.
type Detection struct {
	Class      string    `json:"class"`
	Confidence float32   `json:"confidence"`
	BBox       []float32 `json:"bbox"` // [x1, y1, x2, y2]
}

// DetectionResult is the detector service response.
type DetectionResult struct {
	Detections      []Detection `json:"detections"`
	Count           int         `json:"count"`
	InferenceTimeMs float32     `json:"inference_time_ms"`
	Device          string      `json:"device"`
}

// boardLabels are the detector classes a dartboard is usually mistaken for.
var boardLabels = map[string]bool{
	"clock":       true,
	"sports ball": true,
	"frisbee":     true,
	"bowl":        true,
	"dartboard":   true,
}

// IsBoardLabel reports whether label is a known stand-in for a dartboard.
func IsBoardLabel(label string) bool {
	return boardLabels[label]
}

// RegionFromBox converts a bounding box to its enclosing circle.
func RegionFromBox(d Detection) (Region, bool) {
	if len(d.BBox) < 4 {
		return Region{}, false
	}
	x1, y1, x2, y2 := float64(d.BBox[0]), float64(d.BBox[1]), float64(d.BBox[2]), float64(d.BBox[3])
	w, h := x2-x1, y2-y1
	if w <= 0 || h <= 0 {
		return Region{}, false
	}
	return Region{
		CX:         x1 + w/2,
		CY:         y1 + h/2,
		R:          math.Max(w, h) / 2,
		Label:      d.Class,
		Confidence: d.Confidence,
	}, true
}

// RegionsFromResult converts every usable detection.
func RegionsFromResult(res *DetectionResult) []Region {
	if res == nil {
		return nil
	}
	out := make([]Region, 0, len(res.Detections))
	for _, d := range res.Detections {
		if r, ok := RegionFromBox(d); ok {
			out = append(out, r)
		}
	}
	return out
}

// BestRegion picks the most board-like region. Board-like labels score double.
func BestRegion(regions []Region) (Region, bool) {
	var (
		best      Region
		bestScore float64
		found     bool
	)
	for _, r := range regions {
		score := float64(r.Confidence)
		if IsBoardLabel(r.Label) {
			score *= 2
		}
		if !found || score > bestScore {
			best, bestScore, found = r, score, true
		}
	}
	return best, found
}

// EncodeJPEG encodes a frame for transport.
func EncodeJPEG(frame *vision.Frame) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image(), &jpeg.Options{Quality: 85}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// NoopProvider never returns hints. Calibration then relies on the Hough search.
type NoopProvider struct{}

func (NoopProvider) Name() string  { return "none" }
func (NoopProvider) IsReady() bool { return true }
func (NoopProvider) Close() error  { return nil }

func (NoopProvider) Hints(context.Context, *vision.Frame) ([]Region, error) {
	return nil, nil
}

var _ Provider = NoopProvider{}
