package detectors

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"dartcam/internal/detection"
	"dartcam/internal/logger"
	"dartcam/internal/vision"
)

// Registry holds hint providers in registration order and serves hints from
// the first ready one.
type Registry struct {
	providers map[string]detection.Provider
	order     []string
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]detection.Provider),
	}
}

// Register appends a provider.
func (r *Registry) Register(p detection.Provider) error {
	if p == nil {
		return fmt.Errorf("provider cannot be nil")
	}

	name := p.Name()
	if name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[name]; exists {
		return fmt.Errorf("provider %q already registered", name)
	}

	r.providers[name] = p
	r.order = append(r.order, name)
	return nil
}

// Get returns a provider by name.
func (r *Registry) Get(name string) (detection.Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// GetReady returns ready providers in registration order.
func (r *Registry) GetReady() []detection.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]detection.Provider, 0, len(r.order))
	for _, name := range r.order {
		if p := r.providers[name]; p.IsReady() {
			result = append(result, p)
		}
	}
	return result
}

// Names returns provider names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Unregister removes and closes a provider.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, exists := r.providers[name]
	if !exists {
		return fmt.Errorf("provider %q not found", name)
	}
	delete(r.providers, name)
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return p.Close()
}

func (r *Registry) Name() string { return "registry" }

// IsReady reports whether any provider is ready.
func (r *Registry) IsReady() bool {
	return len(r.GetReady()) > 0
}

// Hints asks ready providers in order and returns the first answer. A
// provider that turns out unavailable is skipped.
func (r *Registry) Hints(ctx context.Context, frame *vision.Frame) ([]detection.Region, error) {
	var lastErr error
	for _, p := range r.GetReady() {
		regions, err := p.Hints(ctx, frame)
		if err == nil {
			return regions, nil
		}
		logger.Warn(logger.Fields{"provider": p.Name(), "error": err.Error()}, "[Registry] hint provider failed")
		lastErr = err
		if !errors.Is(err, detection.ErrProviderUnavailable) {
			break
		}
	}
	if lastErr == nil {
		lastErr = detection.ErrProviderUnavailable
	}
	return nil, lastErr
}

// Close releases every provider.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for _, name := range r.order {
		if err := r.providers[name].Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("error closing provider %q: %w", name, err)
		}
		delete(r.providers, name)
	}
	r.order = nil
	return firstErr
}

var _ detection.Provider = (*Registry)(nil)
