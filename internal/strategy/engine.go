package strategy

import (
	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
)

// Engine holds the active algorithm and its cursor. Like the strategies it
// wraps, it must only be used from inside the registry critical section.
type Engine struct {
	current Strategy
}

func NewEngine(algorithm string) (*Engine, error) {
	s, err := New(algorithm)
	if err != nil {
		return nil, err
	}
	return &Engine{current: s}, nil
}

// Select returns nil when nothing is available.
func (e *Engine) Select(available []*backend.Backend) *backend.Backend {
	return e.current.SelectBackend(available)
}

func (e *Engine) Algorithm() string {
	return e.current.Name()
}

// SetAlgorithm switches to a fresh strategy, which starts the round-robin
// cursor over at zero. An unknown name leaves the engine untouched.
func (e *Engine) SetAlgorithm(name string) error {
	s, err := New(name)
	if err != nil {
		return err
	}
	e.current = s
	return nil
}
