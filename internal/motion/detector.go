// Package motion detects dart landings by differencing consecutive luma frames.
//
// A compact disturbance starts a settling window measured against the frame
// captured just before it. The landing resolves once the disturbance stays put
// for a fixed number of frames, and aborts if it vanishes or grows into
// something hand-sized.
package motion

import (
	"math"
	"sync"
	"time"
)

// Config tunes the landing detector.
type Config struct {
	// DiffThreshold is the absolute luma difference that marks a pixel changed.
	DiffThreshold uint8
	// BorderMargin excludes pixels this close to the frame edge.
	BorderMargin int
	// MinChanged and MaxChanged bound the accepted changed-pixel count.
	MinChanged int
	MaxChanged int
	// MaxSpread caps sqrt(varX + varY) of the changed pixels.
	MaxSpread float64
	// SettleFrames is the number of accepted samples needed to resolve.
	SettleFrames int
	// Cooldown is the minimum time between two resolved landings.
	Cooldown time.Duration
	// ConfidenceScale maps the mean changed count to a confidence.
	ConfidenceScale float64
}

// DefaultConfig returns the tuned defaults for 320 px wide frames.
func DefaultConfig() Config {
	return Config{
		DiffThreshold:   30,
		BorderMargin:    20,
		MinChanged:      100,
		MaxChanged:      5000,
		MaxSpread:       60,
		SettleFrames:    3,
		Cooldown:        650 * time.Millisecond,
		ConfidenceScale: 4200,
	}
}

// maxMotionConfidence keeps motion confidence strictly below certainty.
const maxMotionConfidence = 0.99

// Landing is a resolved dart position in pixel coordinates.
type Landing struct {
	X          float64
	Y          float64
	Confidence float64
	Samples    int
	At         time.Time
}

// Measurement summarises the changed pixels between two frames.
type Measurement struct {
	Changed int
	X       float64
	Y       float64
	Spread  float64
}

// Detector is the Idle/Settling state machine. It is safe for concurrent use,
// though the engine drives it from a single goroutine.
type Detector struct {
	cfg Config
	now func() time.Time

	mu       sync.Mutex
	width    int
	height   int
	prev     []uint8
	ref      []uint8
	samples  []Measurement
	settling bool
	lastEmit time.Time
}

// NewDetector creates a detector in the Idle state.
func NewDetector(cfg Config) *Detector {
	if cfg.SettleFrames < 1 {
		cfg.SettleFrames = 1
	}
	if cfg.ConfidenceScale <= 0 {
		cfg.ConfidenceScale = DefaultConfig().ConfidenceScale
	}
	return &Detector{cfg: cfg, now: time.Now}
}

// SetClock replaces the time source.
func (d *Detector) SetClock(now func() time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = now
}

// Settling reports whether a landing is currently being confirmed.
func (d *Detector) Settling() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.settling
}

// Reset drops all frame history. The cooldown clock is kept.
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resetLocked()
}

func (d *Detector) resetLocked() {
	d.prev, d.ref, d.samples = nil, nil, nil
	d.settling = false
}

// Step feeds one w×h luma frame. It returns a landing at most once per
// resolved settling window.
func (d *Detector) Step(luma []uint8, w, h int) (Landing, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(luma) != w*h {
		d.resetLocked()
		return Landing{}, false
	}
	if w != d.width || h != d.height {
		d.resetLocked()
		d.width, d.height = w, h
	}

	cur := make([]uint8, len(luma))
	copy(cur, luma)

	if d.prev == nil {
		d.prev = cur
		return Landing{}, false
	}

	if !d.settling {
		m := Measure(d.prev, cur, w, h, d.cfg.DiffThreshold, d.cfg.BorderMargin)
		if d.accept(m) {
			d.ref = d.prev
			d.samples = []Measurement{m}
			d.settling = true
		}
		d.prev = cur
		if d.settling && len(d.samples) >= d.cfg.SettleFrames {
			return d.resolveLocked()
		}
		return Landing{}, false
	}

	m := Measure(d.ref, cur, w, h, d.cfg.DiffThreshold, d.cfg.BorderMargin)
	d.prev = cur
	if !d.accept(m) {
		d.ref, d.samples = nil, nil
		d.settling = false
		return Landing{}, false
	}

	d.samples = append(d.samples, m)
	if len(d.samples) < d.cfg.SettleFrames {
		return Landing{}, false
	}
	return d.resolveLocked()
}

func (d *Detector) accept(m Measurement) bool {
	return m.Changed >= d.cfg.MinChanged &&
		m.Changed <= d.cfg.MaxChanged &&
		m.Spread <= d.cfg.MaxSpread
}

func (d *Detector) resolveLocked() (Landing, bool) {
	samples := d.samples
	d.ref, d.samples = nil, nil
	d.settling = false

	var wx, wy, total float64
	for _, s := range samples {
		n := float64(s.Changed)
		wx += s.X * n
		wy += s.Y * n
		total += n
	}
	if total == 0 {
		return Landing{}, false
	}

	now := d.now()
	if !d.lastEmit.IsZero() && now.Sub(d.lastEmit) < d.cfg.Cooldown {
		return Landing{}, false
	}
	d.lastEmit = now

	mean := total / float64(len(samples))
	return Landing{
		X:          wx / total,
		Y:          wy / total,
		Confidence: math.Min(maxMotionConfidence, mean/d.cfg.ConfidenceScale),
		Samples:    len(samples),
		At:         now,
	}, true
}

// Measure diffs two equally sized luma frames. Pixels within margin of the
// frame edge are ignored.
func Measure(a, b []uint8, w, h int, threshold uint8, margin int) Measurement {
	var (
		changed      int
		sumX, sumY   float64
		sumXX, sumYY float64
	)
	for y := margin; y <= h-margin && y < h; y++ {
		row := y * w
		for x := margin; x <= w-margin && x < w; x++ {
			i := row + x
			diff := int(a[i]) - int(b[i])
			if diff < 0 {
				diff = -diff
			}
			if diff < int(threshold) {
				continue
			}
			fx, fy := float64(x), float64(y)
			changed++
			sumX += fx
			sumY += fy
			sumXX += fx * fx
			sumYY += fy * fy
		}
	}
	if changed == 0 {
		return Measurement{}
	}
	n := float64(changed)
	mx, my := sumX/n, sumY/n
	variance := sumXX/n - mx*mx + sumYY/n - my*my
	if variance < 0 {
		variance = 0
	}
	return Measurement{Changed: changed, X: mx, Y: my, Spread: math.Sqrt(variance)}
}
