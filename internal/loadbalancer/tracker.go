package loadbalancer

import (
	"errors"
	"net/url"
	"time"

	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
)

var errNoneAvailable = errors.New("no available backend")

// Lease identifies an in-flight request by backend id. It carries no pointer
// into the registry, so it can travel with the request safely.
type Lease struct {
	BackendID string
	URL       *url.URL
	Started   time.Time
}

// Elapsed returns the time since the request was opened.
func (l Lease) Elapsed() time.Duration {
	return time.Since(l.Started)
}

func newLease(b *backend.Backend) Lease {
	return Lease{
		BackendID: b.ID(),
		URL:       b.URL(),
		Started:   time.Now(),
	}
}

// BeginRequest opens a request on a specific backend, bypassing selection.
func (lb *LoadBalancer) BeginRequest(id string) (Lease, error) {
	var lease Lease
	err := lb.update(id, func(b *backend.Backend) {
		b.Begin()
		lease = newLease(b)
	})
	if err != nil {
		return Lease{}, err
	}
	return lease, nil
}

// EndRequest closes a request. Only successful requests feed the latency
// average; the connection slot is released either way.
func (lb *LoadBalancer) EndRequest(id string, elapsed time.Duration, success bool) error {
	return lb.update(id, func(b *backend.Backend) {
		b.End(elapsed, success)
	})
}

// RecordError counts a forwarding failure. It does not release the
// connection; EndRequest still has to be called.
func (lb *LoadBalancer) RecordError(id string) error {
	return lb.update(id, func(b *backend.Backend) {
		b.RecordError()
	})
}

// update applies fn to one backend and publishes the resulting state.
func (lb *LoadBalancer) update(id string, fn func(b *backend.Backend)) error {
	var algorithm string
	snap, err := lb.registry.Update(id, func(b *backend.Backend) {
		fn(b)
		algorithm = lb.engine.Algorithm()
	})
	if err != nil {
		return err
	}

	lb.publish(algorithm, snap)
	return nil
}
