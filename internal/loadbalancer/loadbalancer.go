package loadbalancer

import (
	"log/slog"

	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
	"github.com/angeloszaimis/l7-load-balancer/internal/broadcast"
	"github.com/angeloszaimis/l7-load-balancer/internal/registry"
	"github.com/angeloszaimis/l7-load-balancer/internal/strategy"
)

// Publisher receives the state produced by every mutation.
type Publisher interface {
	Publish(state broadcast.State) bool
}

type LoadBalancer struct {
	registry  *registry.Registry
	engine    *strategy.Engine
	publisher Publisher
	logger    *slog.Logger
}

// NewLoadBalancer wires the core together. publisher may be nil.
func NewLoadBalancer(reg *registry.Registry, engine *strategy.Engine, publisher Publisher, logger *slog.Logger) *LoadBalancer {
	return &LoadBalancer{
		registry:  reg,
		engine:    engine,
		publisher: publisher,
		logger:    logger.With(slog.String("component", "loadbalancer")),
	}
}

// SelectBackend picks a backend with the active algorithm and opens a request
// on it in the same critical section. ok is false when no backend is healthy
// and enabled, which callers should answer with 503.
func (lb *LoadBalancer) SelectBackend() (lease Lease, ok bool) {
	var algorithm string
	snap, _ := lb.registry.Do(func(backends []*backend.Backend) error {
		algorithm = lb.engine.Algorithm()

		chosen := lb.engine.Select(registry.FilterAvailable(backends))
		if chosen == nil {
			return errNoneAvailable
		}

		chosen.Begin()
		lease = newLease(chosen)
		ok = true
		return nil
	})

	if !ok {
		return Lease{}, false
	}

	lb.publish(algorithm, snap)
	return lease, true
}

// SetAlgorithm switches the selection algorithm and resets its cursor.
// Unknown names fail with strategy.ErrInvalidAlgorithm, which wraps
// strategy.ErrInvalidArgument, and change nothing.
func (lb *LoadBalancer) SetAlgorithm(name string) error {
	snap, err := lb.registry.Do(func([]*backend.Backend) error {
		return lb.engine.SetAlgorithm(name)
	})
	if err != nil {
		lb.logger.Warn("Rejected algorithm change", slog.String("requested", name))
		return err
	}

	lb.logger.Info("Algorithm changed", slog.String("algorithm", name))
	lb.publish(name, snap)
	return nil
}

// ToggleBackend sets the operator enabled flag. Unknown ids fail with
// registry.ErrNotFound.
func (lb *LoadBalancer) ToggleBackend(id string, enabled bool) error {
	err := lb.update(id, func(b *backend.Backend) {
		b.SetEnabled(enabled)
	})
	if err != nil {
		return err
	}

	lb.logger.Info("Backend toggled",
		slog.String("backend", id),
		slog.Bool("enabled", enabled))
	return nil
}

// Algorithm returns the active algorithm name.
func (lb *LoadBalancer) Algorithm() string {
	var algorithm string
	lb.registry.View(func([]*backend.Backend) {
		algorithm = lb.engine.Algorithm()
	})
	return algorithm
}

// State returns a consistent snapshot of the algorithm and every backend.
func (lb *LoadBalancer) State() broadcast.State {
	var algorithm string
	snap := lb.registry.View(func([]*backend.Backend) {
		algorithm = lb.engine.Algorithm()
	})
	return toState(algorithm, snap)
}

// Available returns the backends selection currently chooses from.
func (lb *LoadBalancer) Available() []backend.State {
	return lb.registry.Available()
}

// Publish pushes the current state to the publisher. The health monitor calls
// it once per completed tick.
func (lb *LoadBalancer) Publish() {
	if lb.publisher == nil {
		return
	}
	lb.publisher.Publish(lb.State())
}

func (lb *LoadBalancer) publish(algorithm string, snap registry.Snapshot) {
	if lb.publisher == nil {
		return
	}
	lb.publisher.Publish(toState(algorithm, snap))
}

func toState(algorithm string, snap registry.Snapshot) broadcast.State {
	return broadcast.State{
		Algorithm: algorithm,
		Version:   snap.Version,
		Backends:  snap.Backends,
	}
}
