package broadcast

import (
	"log/slog"
	"sync"

	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
)

// State is the snapshot handed to observers.
type State struct {
	Algorithm string          `json:"algorithm"`
	Version   uint64          `json:"version"`
	Backends  []backend.State `json:"backends"`
}

// Subscription receives the latest state. Close it when done.
type Subscription struct {
	ch   chan State
	hub  *Hub
	once sync.Once
}

// C returns the channel states arrive on. It is closed by Close.
func (s *Subscription) C() <-chan State {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.unsubscribe(s)
	})
}

type Hub struct {
	mutex       sync.Mutex
	latest      State
	hasLatest   bool
	subscribers map[*Subscription]struct{}
	closed      bool
	logger      *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[*Subscription]struct{}),
		logger:      logger.With(slog.String("component", "broadcast")),
	}
}

// Publish records state as the latest and offers it to every subscriber.
// A state older than the one already held is dropped and false is returned.
func (h *Hub) Publish(state State) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.hasLatest && state.Version < h.latest.Version {
		return false
	}

	h.latest = state
	h.hasLatest = true

	for sub := range h.subscribers {
		offer(sub.ch, state)
	}

	return true
}

// Latest returns the newest published state.
func (h *Hub) Latest() (State, bool) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return h.latest, h.hasLatest
}

// Subscribe registers an observer. If a state was already published it is
// immediately available on the channel.
func (h *Hub) Subscribe() *Subscription {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	sub := &Subscription{
		ch:  make(chan State, 1),
		hub: h,
	}
	if h.closed {
		close(sub.ch)
		return sub
	}
	if h.hasLatest {
		sub.ch <- h.latest
	}
	h.subscribers[sub] = struct{}{}

	h.logger.Debug("Subscriber added", slog.Int("subscribers", len(h.subscribers)))
	return sub
}

// Close detaches every subscriber. WebSocket clients receive a close frame.
func (h *Hub) Close() {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for sub := range h.subscribers {
		delete(h.subscribers, sub)
		close(sub.ch)
	}
}

// Subscribers returns the number of attached observers.
func (h *Hub) Subscribers() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.subscribers)
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if _, ok := h.subscribers[sub]; !ok {
		return
	}
	delete(h.subscribers, sub)
	close(sub.ch)

	h.logger.Debug("Subscriber removed", slog.Int("subscribers", len(h.subscribers)))
}

// offer replaces whatever is waiting in the single-slot channel. Only the hub
// writes to ch and it does so under its lock, so the send cannot block.
func offer(ch chan State, state State) {
	select {
	case <-ch:
	default:
	}
	ch <- state
}
