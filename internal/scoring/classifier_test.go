package scoring

import (
	"math"
	"testing"

	"dartcam/internal/board"
)

const (
	frameW = 320
	frameH = 240
)

var circle = board.Circle(0.5, 0.5, 0.4)

// polar returns the pixel at normalised radius r and clockwise-from-top angle deg
// on the circular test board.
func polar(r, deg float64) (float64, float64) {
	rad := deg * math.Pi / 180
	px := 0.4 * 240 * r
	return 160 + px*math.Sin(rad), 120 - px*math.Cos(rad)
}

func TestClassifySegments(t *testing.T) {
	tests := []struct {
		deg  float64
		want int
	}{
		{0, 20},
		{8.9, 20},
		{-8.9, 20},
		{18, 1},
		{36, 18},
		{90, 6},
		{180, 3},
		{270, 11},
		{342, 5},
	}
	for _, tt := range tests {
		x, y := polar(0.8, tt.deg)
		h := Classify(x, y, frameW, frameH, circle)
		if h.Number != tt.want || h.Multiplier != 1 {
			t.Errorf("deg %v: got %+v, want single %d", tt.deg, h, tt.want)
		}
	}
}

func TestClassifyRingsMonotonic(t *testing.T) {
	tests := []struct {
		r          float64
		label      string
		confidence float64
	}{
		{0.0, "DBULL", DoubleBullConfidence},
		{0.03, "DBULL", DoubleBullConfidence},
		{0.06, "SBULL", SingleBullConfidence},
		{0.3, "20", RingConfidence},
		{0.6, "T20", RingConfidence},
		{0.8, "20", RingConfidence},
		{0.97, "D20", RingConfidence},
		{0.995, "D20", RingConfidence},
		{1.03, "20", RingConfidence},
		{1.1, "MISS", NoBoardConfidence},
		{2.0, "MISS", NoBoardConfidence},
	}
	for _, tt := range tests {
		x, y := polar(tt.r, 0)
		h := Classify(x, y, frameW, frameH, circle)
		if got := Label(h); got != tt.label {
			t.Errorf("r=%v: label %s, want %s", tt.r, got, tt.label)
		}
		if h.Confidence != tt.confidence {
			t.Errorf("r=%v: confidence %v, want %v", tt.r, h.Confidence, tt.confidence)
		}
	}
}

func TestClassifyEllipseReducesToCircle(t *testing.T) {
	tilted := circle
	tilted.Angle = 0.7
	for deg := 2.5; deg < 360; deg += 5 {
		for _, r := range []float64{0.05, 0.5, 0.6, 0.98, 1.2} {
			x, y := polar(r, deg)
			a := Classify(x, y, frameW, frameH, circle)
			b := Classify(x, y, frameW, frameH, tilted)
			if a != b {
				t.Fatalf("r=%v deg=%v: circle %+v, ellipse with rx=ry %+v", r, deg, a, b)
			}
		}
	}
}

func TestClassifyEllipseStretchesMinorAxis(t *testing.T) {
	cal := board.Calibration{CX: 0.5, CY: 0.5, RX: 0.4, RY: 0.2}
	// 0.8 of the minor axis straight up.
	h := Classify(160, 120-0.2*240*0.8, frameW, frameH, cal)
	if h.Number != 20 || h.Multiplier != 1 {
		t.Errorf("got %+v, want single 20", h)
	}
	// Same pixel distance along the major axis lands much nearer the bull.
	h = Classify(160+0.2*240*0.8, 120, frameW, frameH, cal)
	if h.Number != 6 || h.Multiplier != 1 {
		t.Errorf("got %+v, want single 6", h)
	}
}

func TestClassifyRotation(t *testing.T) {
	cal := circle
	cal.Rotation = 18 * math.Pi / 180
	x, y := polar(0.8, 0)
	if h := Classify(x, y, frameW, frameH, cal); h.Number != 5 {
		t.Errorf("got %d, want 5 at the top of a board rotated one wedge clockwise", h.Number)
	}
	x, y = polar(0.8, 18)
	if h := Classify(x, y, frameW, frameH, cal); h.Number != 20 {
		t.Errorf("got %d, want 20", h.Number)
	}
}

func TestLabelAndScore(t *testing.T) {
	tests := []struct {
		hit   Hit
		label string
		score int
	}{
		{Hit{Number: None}, "MISS", 0},
		{Hit{Number: 20, Multiplier: 0}, "MISS", 0},
		{Hit{Number: Bull, Multiplier: 2}, "DBULL", 50},
		{Hit{Number: Bull, Multiplier: 1}, "SBULL", 25},
		{Hit{Number: 20, Multiplier: 1}, "20", 20},
		{Hit{Number: 19, Multiplier: 2}, "D19", 38},
		{Hit{Number: 20, Multiplier: 3}, "T20", 60},
	}
	for _, tt := range tests {
		if got := Label(tt.hit); got != tt.label {
			t.Errorf("Label(%+v) = %s, want %s", tt.hit, got, tt.label)
		}
		if got := Score(tt.hit); got != tt.score {
			t.Errorf("Score(%+v) = %d, want %d", tt.hit, got, tt.score)
		}
	}
}

func TestCombine(t *testing.T) {
	h := Combine(Hit{Number: 20, Multiplier: 3, Confidence: RingConfidence}, 1.4)
	if h.Confidence != MaxConfidence {
		t.Errorf("confidence %v, want clamp to %v", h.Confidence, MaxConfidence)
	}
	h = Combine(Hit{Number: 20, Multiplier: 1, Confidence: RingConfidence}, 0.3)
	if h.Confidence != RingConfidence {
		t.Errorf("confidence %v, want %v", h.Confidence, RingConfidence)
	}
	miss := Combine(Hit{Number: None, Confidence: NoBoardConfidence}, 0.95)
	if miss.Confidence != NoBoardConfidence {
		t.Errorf("miss confidence %v, want sentinel", miss.Confidence)
	}
}

func TestProjectRoundTrip(t *testing.T) {
	cal := board.Calibration{CX: 0.52, CY: 0.47, RX: 0.4, RY: 0.3, Angle: 0.35, Rotation: 0.1}
	for i, number := range board.DartOrder {
		a := float64(i) * board.SegmentDegrees * math.Pi / 180
		x, y := cal.Project(0.6, a, 640, 480)
		got := Classify(x, y, 640, 480, cal)
		if got.Number != number || got.Multiplier != 3 {
			t.Errorf("segment %d: got %+v at (%.1f, %.1f)", number, got, x, y)
		}
	}
}
