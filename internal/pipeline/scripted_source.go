package pipeline

import (
	"context"
	"sync"
	"time"

	"dartcam/internal/vision"
)

// ScriptedSource replays a fixed list of frames, one per Latest call, then
// repeats the last one. It backs tests and the offline replay command.
type ScriptedSource struct {
	mu      sync.Mutex
	frames  []*vision.Frame
	next    int
	seq     uint64
	open    bool
	openErr error
	stats   CaptureStats
}

// NewScriptedSource creates a source over frames.
func NewScriptedSource(frames ...*vision.Frame) *ScriptedSource {
	return &ScriptedSource{frames: frames}
}

// FailOpen makes the next Open calls return err.
func (s *ScriptedSource) FailOpen(err error) {
	s.mu.Lock()
	s.openErr = err
	s.mu.Unlock()
}

// Append queues more frames.
func (s *ScriptedSource) Append(frames ...*vision.Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, frames...)
	s.mu.Unlock()
}

func (s *ScriptedSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.openErr != nil {
		return s.openErr
	}
	if s.open {
		return ErrSourceRunning
	}
	s.open = true
	return ctx.Err()
}

func (s *ScriptedSource) Latest() (*FrameData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || len(s.frames) == 0 {
		return nil, ErrNoFrame
	}
	i := s.next
	if i >= len(s.frames) {
		i = len(s.frames) - 1
	} else {
		s.next++
	}
	s.seq++
	now := time.Now()
	s.stats.FramesCaptured++
	s.stats.LastFrameTime = now
	return &FrameData{Seq: s.seq, Timestamp: now, Image: s.frames[i]}, nil
}

// Exhausted reports whether every scripted frame has been served.
func (s *ScriptedSource) Exhausted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.next >= len(s.frames)
}

func (s *ScriptedSource) Stats() CaptureStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *ScriptedSource) Close() error {
	s.mu.Lock()
	s.open = false
	s.mu.Unlock()
	return nil
}

var _ FrameSource = (*ScriptedSource)(nil)
