package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"sync"
	"time"

	"dartcam/internal/logger"
	"dartcam/internal/vision"
)

// HTTPProvider asks an object-detection service over HTTP: the frame is posted
// as a multipart JPEG to <endpoint>/detect and readiness is read from
// <endpoint>/health.
type HTTPProvider struct {
	endpoint      string
	client        *http.Client
	confThreshold float32
	healthTTL     time.Duration

	mu          sync.Mutex
	healthy     bool
	healthCheck time.Time
}

// NewHTTPProvider creates a provider for the service at endpoint.
func NewHTTPProvider(endpoint string, confThreshold float32) *HTTPProvider {
	return &HTTPProvider{
		endpoint:      strings.TrimRight(endpoint, "/"),
		client:        &http.Client{Timeout: 5 * time.Second},
		confThreshold: confThreshold,
		healthTTL:     30 * time.Second,
	}
}

func (p *HTTPProvider) Name() string { return "http" }

// IsReady checks the service health, caching a positive answer for 30 seconds.
func (p *HTTPProvider) IsReady() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.healthy && time.Since(p.healthCheck) < p.healthTTL {
		return true
	}

	resp, err := p.client.Get(p.endpoint + "/health")
	if err != nil {
		logger.Warn(logger.Fields{"endpoint": p.endpoint, "error": err.Error()}, "[HTTPProvider] health check failed")
		p.healthy = false
		return false
	}
	defer resp.Body.Close()

	p.healthy = resp.StatusCode == http.StatusOK
	if p.healthy {
		p.healthCheck = time.Now()
	} else {
		logger.Warn(logger.Fields{"endpoint": p.endpoint, "status": resp.StatusCode}, "[HTTPProvider] health check returned non-OK status")
	}
	return p.healthy
}

// Hints posts the frame and converts every returned box to a Region.
func (p *HTTPProvider) Hints(ctx context.Context, frame *vision.Frame) ([]Region, error) {
	if !p.IsReady() {
		return nil, ErrProviderUnavailable
	}

	jpg, err := EncodeJPEG(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="frame.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	fw, err := w.CreatePart(h)
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(jpg); err != nil {
		return nil, err
	}
	if err := w.WriteField("conf_threshold", fmt.Sprintf("%.2f", p.confThreshold)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := p.client.Do(req)
	if err != nil {
		p.markUnhealthy()
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("hint request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result DetectionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode hint response: %w", err)
	}
	return RegionsFromResult(&result), nil
}

func (p *HTTPProvider) markUnhealthy() {
	p.mu.Lock()
	p.healthy = false
	p.mu.Unlock()
}

func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}

var _ Provider = (*HTTPProvider)(nil)
