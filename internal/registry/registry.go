package registry

import (
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
)

var (
	ErrNotFound    = errors.New("backend not found")
	ErrDuplicateID = errors.New("duplicate backend id")
	ErrNoBackends  = errors.New("no backends configured")
)

// Snapshot is a consistent copy of every backend taken inside the critical
// section. Version increases with every mutation.
type Snapshot struct {
	Version  uint64
	Backends []backend.State
}

// Target is the immutable identity of a backend, safe to use outside the lock.
type Target struct {
	ID  string
	URL *url.URL
}

type Registry struct {
	mutex    sync.Mutex
	backends []*backend.Backend
	index    map[string]*backend.Backend
	version  uint64
}

// New builds the registry in configuration order.
func New(configs []backend.Config) (*Registry, error) {
	if len(configs) == 0 {
		return nil, ErrNoBackends
	}

	r := &Registry{
		backends: make([]*backend.Backend, 0, len(configs)),
		index:    make(map[string]*backend.Backend, len(configs)),
	}

	for _, cfg := range configs {
		if _, exists := r.index[cfg.ID]; exists {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateID, cfg.ID)
		}
		b := backend.New(cfg)
		r.backends = append(r.backends, b)
		r.index[cfg.ID] = b
	}

	return r, nil
}

// Do runs fn with exclusive access to the backends. When fn succeeds the
// version is bumped and the post-mutation snapshot is returned.
func (r *Registry) Do(fn func(backends []*backend.Backend) error) (Snapshot, error) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if err := fn(r.backends); err != nil {
		return Snapshot{}, err
	}

	r.version++
	return r.snapshotLocked(), nil
}

// View runs fn with exclusive access without counting as a mutation.
func (r *Registry) View(fn func(backends []*backend.Backend)) Snapshot {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if fn != nil {
		fn(r.backends)
	}
	return r.snapshotLocked()
}

// Update mutates a single backend by id.
func (r *Registry) Update(id string, fn func(b *backend.Backend)) (Snapshot, error) {
	return r.Do(func([]*backend.Backend) error {
		b, ok := r.index[id]
		if !ok {
			return fmt.Errorf("%w: %q", ErrNotFound, id)
		}
		fn(b)
		return nil
	})
}

// Toggle sets the operator enabled flag.
func (r *Registry) Toggle(id string, enabled bool) (Snapshot, error) {
	return r.Update(id, func(b *backend.Backend) {
		b.SetEnabled(enabled)
	})
}

// Available returns the healthy and enabled backends in registry order.
func (r *Registry) Available() []backend.State {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	available := FilterAvailable(r.backends)
	states := make([]backend.State, 0, len(available))
	for _, b := range available {
		states = append(states, b.Snapshot())
	}
	return states
}

func (r *Registry) Snapshot() Snapshot {
	return r.View(nil)
}

// Targets lists the identity of every backend in registry order.
func (r *Registry) Targets() []Target {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	targets := make([]Target, 0, len(r.backends))
	for _, b := range r.backends {
		targets = append(targets, Target{ID: b.ID(), URL: b.URL()})
	}
	return targets
}

func (r *Registry) Len() int {
	return len(r.backends)
}

func (r *Registry) snapshotLocked() Snapshot {
	snap := Snapshot{
		Version:  r.version,
		Backends: make([]backend.State, 0, len(r.backends)),
	}
	for _, b := range r.backends {
		snap.Backends = append(snap.Backends, b.Snapshot())
	}
	return snap
}

// FilterAvailable keeps the backends that are healthy and enabled, preserving
// order. Callers must hold the registry lock, i.e. call it from Do or View.
func FilterAvailable(backends []*backend.Backend) []*backend.Backend {
	available := make([]*backend.Backend, 0, len(backends))
	for _, b := range backends {
		if b.Available() {
			available = append(available, b)
		}
	}
	return available
}
