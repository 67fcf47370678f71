package strategy

import (
	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
)

// roundRobinStrategy walks the available set with a plain cursor. When the
// set shrinks or grows the cursor wraps against the new length; it does not
// remember which backend it served last.
type roundRobinStrategy struct {
	cursor int
}

func (rb *roundRobinStrategy) SelectBackend(backends []*backend.Backend) *backend.Backend {
	if len(backends) == 0 {
		return nil
	}

	chosen := backends[rb.cursor%len(backends)]
	rb.cursor = (rb.cursor + 1) % len(backends)

	return chosen
}

func (rb *roundRobinStrategy) Name() string {
	return RoundRobin
}

func NewRoundRobinStrategy() Strategy {
	return &roundRobinStrategy{}
}
