package stream

import (
	"bytes"
	"errors"
	"fmt"
	"image/jpeg"
	"net/http"
	"strconv"
	"sync"
	"time"

	"dartcam/internal/board"
	"dartcam/internal/logger"
	"dartcam/internal/pipeline"
	"dartcam/internal/vision"
)

// ErrNoFrame is returned before the first frame has been processed.
var ErrNoFrame = errors.New("no frame available")

// Source supplies the latest working frame and board.
type Source interface {
	Snapshot() (*vision.Frame, board.Calibration, bool)
	// Calibration reports false while no board has been fitted.
	Calibration() (board.Calibration, bool)
	LensStrength() float64
}

// Preview renders annotated JPEGs of the live frame. It tracks the last hit
// and status from the event bus.
type Preview struct {
	src      Source
	quality  int
	interval time.Duration

	mu      sync.RWMutex
	hit    *Marker
	status string
	undist *vision.UndistortMap
}

// NewPreview creates a preview over src.
func NewPreview(src Source) *Preview {
	return &Preview{src: src, quality: 80, interval: 200 * time.Millisecond}
}

// OnEvent implements pipeline.EventHandler.
func (p *Preview) OnEvent(ev pipeline.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch ev.Type {
	case pipeline.EventHit:
		if ev.Hit != nil {
			p.hit = &Marker{X: ev.Hit.X, Y: ev.Hit.Y, Label: ev.Hit.Label}
		}
	case pipeline.EventStatus:
		if ev.Status != nil {
			p.status = ev.Status.Status
		}
	}
}

// Render returns the latest frame, undistorted and annotated, as JPEG.
func (p *Preview) Render() ([]byte, error) {
	frame, cal, ok := p.src.Snapshot()
	if !ok {
		return nil, ErrNoFrame
	}
	frame = frame.Clone()

	if k := p.src.LensStrength(); k != 0 {
		p.mu.Lock()
		if p.undist == nil || !p.undist.Matches(frame.Width, frame.Height, k) {
			p.undist = vision.NewUndistortMap(frame.Width, frame.Height, k)
		}
		m := p.undist
		p.mu.Unlock()
		vision.ApplyUndistort(frame, m)
	}

	_, aligned := p.src.Calibration()
	p.mu.RLock()
	o := Overlay{Calibration: cal, Aligned: aligned, Hit: p.hit, Status: p.status}
	p.mu.RUnlock()
	RenderOverlay(frame, o)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame.Image(), &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return buf.Bytes(), nil
}

// ServeHTTP serves a single annotated JPEG.
func (p *Preview) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	data, err := p.Render()
	if err != nil {
		if errors.Is(err, ErrNoFrame) {
			http.Error(w, "No frame available", http.StatusServiceUnavailable)
			return
		}
		logger.Error(logger.Fields{"error": err.Error()}, "[Preview] render failed")
		http.Error(w, "Preview failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}

// ServeStream serves the annotated preview as multipart MJPEG until the
// client goes away.
func (p *Preview) ServeStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	logger.Debug(logger.Fields{"remote": r.RemoteAddr}, "[Preview] stream client connected")
	defer logger.Debug(logger.Fields{"remote": r.RemoteAddr}, "[Preview] stream client disconnected")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			frame, err := p.Render()
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "--frame\r\n")
			fmt.Fprintf(w, "Content-Type: image/jpeg\r\n")
			fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(frame))
			if _, err := w.Write(frame); err != nil {
				return
			}
			fmt.Fprintf(w, "\r\n")
			flusher.Flush()
		}
	}
}
