package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"dartcam/internal/logger"
)

var (
	// ErrSourceRunning is returned by Open on a source that is already capturing.
	ErrSourceRunning = errors.New("frame source already running")
	// ErrStreamEnded is returned by Latest once ffmpeg has exited on its own.
	ErrStreamEnded = errors.New("camera stream ended")
)

// CameraSourceConfig configures a CameraSource.
type CameraSourceConfig struct {
	// Device is a V4L2 path, an rtsp:// or http(s):// stream, or an
	// http(s) still-image URL which is polled.
	Device string
	FPS    int
	Width  int
	Height int
	// FirstFrameTimeout bounds how long Open waits for the camera.
	FirstFrameTimeout time.Duration
}

// CameraSource captures MJPEG through ffmpeg, or polls a JPEG endpoint, and
// keeps only the newest frame.
type CameraSource struct {
	cfg CameraSourceConfig

	mu      sync.Mutex
	running atomic.Bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	cmd     *exec.Cmd

	latestMu sync.RWMutex
	latest   *FrameData
	ended    error
	seq      atomic.Uint64

	statsMu sync.RWMutex
	stats   CaptureStats

	ffmpegOut io.ReadCloser
}

// NewCameraSource creates an idle source.
func NewCameraSource(cfg CameraSourceConfig) *CameraSource {
	if cfg.FPS <= 0 {
		cfg.FPS = 10
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		cfg.Width, cfg.Height = 640, 480
	}
	if cfg.FirstFrameTimeout <= 0 {
		cfg.FirstFrameTimeout = 5 * time.Second
	}
	return &CameraSource{cfg: cfg}
}

// Open starts capture and waits for the first frame.
func (s *CameraSource) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running.Load() {
		return ErrSourceRunning
	}
	if s.cfg.Device == "" {
		return errors.New("no camera device configured")
	}

	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.latestMu.Lock()
	s.latest = nil
	s.ended = nil
	s.latestMu.Unlock()

	first := make(chan struct{})
	var once sync.Once
	signal := func() { once.Do(func() { close(first) }) }

	var runErr error
	done := s.doneCh
	if s.isHTTPImageEndpoint() {
		go func() {
			s.pollHTTPImages(signal)
			close(done)
		}()
	} else {
		if err := s.startFFmpeg(); err != nil {
			return fmt.Errorf("failed to start ffmpeg: %w", err)
		}
		go func() {
			runErr = s.capture(signal)
			close(done)
		}()
	}
	s.running.Store(true)

	logger.Info(logger.Fields{"device": s.cfg.Device, "fps": s.cfg.FPS}, "[FrameSource] capture started")

	timer := time.NewTimer(s.cfg.FirstFrameTimeout)
	defer timer.Stop()
	select {
	case <-first:
		return nil
	case <-done:
		s.running.Store(false)
		s.cmd = nil
		if runErr != nil {
			return runErr
		}
		return errors.New("camera stream ended before the first frame")
	case <-timer.C:
		s.stopLocked()
		return fmt.Errorf("no frame from %s within %s", s.cfg.Device, s.cfg.FirstFrameTimeout)
	case <-ctx.Done():
		s.stopLocked()
		return ctx.Err()
	}
}

// Latest returns the newest frame, or an error wrapping ErrStreamEnded after
// the capture process died.
func (s *CameraSource) Latest() (*FrameData, error) {
	s.latestMu.RLock()
	defer s.latestMu.RUnlock()
	if s.ended != nil {
		return nil, s.ended
	}
	if s.latest == nil {
		return nil, ErrNoFrame
	}
	return s.latest, nil
}

// Stats returns a copy of the capture statistics.
func (s *CameraSource) Stats() CaptureStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.stats
}

// Close stops capture. Closing an idle source is a no-op.
func (s *CameraSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	return nil
}

func (s *CameraSource) stopLocked() {
	if !s.running.Load() {
		return
	}
	close(s.stopCh)
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	<-s.doneCh
	s.cmd = nil
	s.running.Store(false)
	logger.Info(logger.Fields{"device": s.cfg.Device}, "[FrameSource] capture stopped")
}

func (s *CameraSource) isHTTPImageEndpoint() bool {
	d := s.cfg.Device
	return (strings.HasPrefix(d, "http://") || strings.HasPrefix(d, "https://")) &&
		(strings.Contains(d, ".jpg") || strings.Contains(d, ".jpeg") || strings.Contains(d, "image"))
}

func (s *CameraSource) pollHTTPImages(firstFrame func()) {
	client := &http.Client{Timeout: 10 * time.Second}
	interval := time.Second / time.Duration(s.cfg.FPS)
	if interval < 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if frame, err := s.fetchImage(client); err != nil {
			logger.Warn(logger.Fields{"device": s.cfg.Device, "error": err.Error()}, "[FrameSource] fetch failed")
			s.statsMu.Lock()
			s.stats.ReconnectAttempts++
			s.statsMu.Unlock()
		} else {
			s.storeFrame(frame)
			firstFrame()
		}

		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}
	}
}

func (s *CameraSource) fetchImage(client *http.Client) ([]byte, error) {
	resp, err := client.Get(s.cfg.Device)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// ffmpegArgs builds the command line for the configured device.
func ffmpegArgs(device string, fps, width, height int) []string {
	out := []string{"-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "5", "-"}
	switch {
	case strings.HasPrefix(device, "rtsp://"):
		return append([]string{
			"-rtsp_transport", "tcp",
			"-i", device,
			"-r", fmt.Sprintf("%d", fps),
		}, out...)
	case strings.HasPrefix(device, "http://"), strings.HasPrefix(device, "https://"):
		return append([]string{
			"-i", device,
			"-r", fmt.Sprintf("%d", fps),
		}, out...)
	default:
		return append([]string{
			"-f", "v4l2",
			"-video_size", fmt.Sprintf("%dx%d", width, height),
			"-framerate", fmt.Sprintf("%d", fps),
			"-i", device,
		}, out...)
	}
}

func (s *CameraSource) startFFmpeg() error {
	args := ffmpegArgs(s.cfg.Device, s.cfg.FPS, s.cfg.Width, s.cfg.Height)
	s.cmd = exec.Command("ffmpeg", args...)

	stdout, err := s.cmd.StdoutPipe()
	if err != nil {
		return err
	}
	stderr, err := s.cmd.StderrPipe()
	if err != nil {
		return err
	}
	if err := s.cmd.Start(); err != nil {
		return err
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			logger.Debug(logger.Fields{"line": scanner.Text()}, "[FrameSource] ffmpeg")
		}
	}()

	s.ffmpegOut = stdout
	return nil
}

// capture reads ffmpeg until it exits. An exit nobody asked for marks the
// source as ended so callers stop reusing the last frame.
func (s *CameraSource) capture(firstFrame func()) error {
	err := s.readFFmpeg(firstFrame)
	select {
	case <-s.stopCh:
		return err
	default:
	}

	ended := ErrStreamEnded
	if err != nil {
		ended = fmt.Errorf("%w: %v", ErrStreamEnded, err)
	}
	s.latestMu.Lock()
	s.ended = ended
	s.latestMu.Unlock()
	s.running.Store(false)
	logger.Warn(logger.Fields{"device": s.cfg.Device, "error": ended.Error()}, "[FrameSource] capture ended")
	return err
}

func (s *CameraSource) readFFmpeg(firstFrame func()) error {
	defer func() {
		if s.cmd != nil {
			_ = s.cmd.Wait()
		}
	}()

	buf := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 8192)

	for {
		select {
		case <-s.stopCh:
			return nil
		default:
		}

		n, err := s.ffmpegOut.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			for {
				frame := extractJPEGFrame(&buf)
				if frame == nil {
					break
				}
				s.storeFrame(frame)
				firstFrame()
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			select {
			case <-s.stopCh:
				return nil
			default:
			}
			logger.Warn(logger.Fields{"error": err.Error()}, "[FrameSource] read failed")
			return err
		}
	}
}

func (s *CameraSource) storeFrame(data []byte) {
	seq := s.seq.Add(1)
	now := time.Now()

	s.latestMu.Lock()
	if s.latest != nil {
		s.statsMu.Lock()
		s.stats.FramesDropped++
		s.statsMu.Unlock()
	}
	s.latest = &FrameData{Seq: seq, Timestamp: now, Data: data}
	s.latestMu.Unlock()

	s.statsMu.Lock()
	s.stats.FramesCaptured++
	s.stats.LastFrameTime = now
	s.statsMu.Unlock()

	if seq%500 == 0 {
		logger.Debug(logger.Fields{"seq": seq}, "[FrameSource] frames captured")
	}
}

// extractJPEGFrame cuts the first complete FFD8..FFD9 image out of buffer.
func extractJPEGFrame(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	start := -1
	for i := 0; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD8 {
			start = i
			break
		}
	}
	if start == -1 {
		// keep the last byte in case it starts a marker
		*buffer = (*buffer)[len(*buffer)-1:]
		return nil
	}

	end := -1
	for i := start + 2; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD9 {
			end = i + 2
			break
		}
	}
	if end == -1 {
		return nil
	}

	frame := make([]byte, end-start)
	copy(frame, (*buffer)[start:end])
	*buffer = (*buffer)[end:]
	return frame
}

var _ FrameSource = (*CameraSource)(nil)
