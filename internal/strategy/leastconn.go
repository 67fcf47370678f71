package strategy

import (
	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
)

type leastConnStrategy struct{}

// SelectBackend returns the backend with the fewest active connections. The
// strict comparison keeps the earliest backend on ties.
func (l *leastConnStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	best := backends[0]
	for _, b := range backends[1:] {
		if b.ActiveConnections() < best.ActiveConnections() {
			best = b
		}
	}

	return best
}

func (l *leastConnStrategy) Name() string {
	return LeastConnections
}

func NewLeastConnStrategy() Strategy {
	return &leastConnStrategy{}
}
