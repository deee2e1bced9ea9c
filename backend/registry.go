package backend

import (
	"fmt"
	"sync"

	"github.com/meridian-cd/meridian/domain"
)

// Registry maps IaC formats to their execution backends. Formats are
// registered during startup; an unregistered format is a configuration
// error surfaced when a deployment is created, never at apply time.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
}

func NewRegistry() *Registry {
	return &Registry{backends: make(map[string]Backend)}
}

func (r *Registry) Register(format string, b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[format] = b
}

// Get returns the backend for a format, or domain.ErrUnknownFormat
func (r *Registry) Get(format string) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[format]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownFormat, format)
	}
	return b, nil
}

// Formats returns the registered format names
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	formats := make([]string, 0, len(r.backends))
	for f := range r.backends {
		formats = append(formats, f)
	}
	return formats
}
