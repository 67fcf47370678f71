package strategy

import (
	"errors"
	"fmt"

	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
)

const (
	RoundRobin       = "round-robin"
	LeastConnections = "least-connections"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidAlgorithm reports an algorithm name outside Algorithms().
	ErrInvalidAlgorithm = fmt.Errorf("%w: invalid algorithm", ErrInvalidArgument)
)

// Strategy picks one backend out of the available set. Implementations are
// not safe for concurrent use; the registry lock serializes calls.
type Strategy interface {
	SelectBackend(backends []*backend.Backend) *backend.Backend
	Name() string
}

// Algorithms lists the accepted algorithm names.
func Algorithms() []string {
	return []string{RoundRobin, LeastConnections}
}

// New creates a fresh strategy for the named algorithm.
func New(name string) (Strategy, error) {
	switch name {
	case RoundRobin:
		return NewRoundRobinStrategy(), nil
	case LeastConnections:
		return NewLeastConnStrategy(), nil
	default:
		return nil, fmt.Errorf("%w %q", ErrInvalidAlgorithm, name)
	}
}
