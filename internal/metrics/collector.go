package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/angeloszaimis/l7-load-balancer/internal/broadcast"
)

type EventType string

const (
	EventResponseCompleted EventType = "response_completed"
	EventRequestFailed     EventType = "request_failed"
	EventProbeCompleted    EventType = "probe_completed"
	EventHealthChanged     EventType = "health_changed"
)

type MetricEvent struct {
	Type       EventType
	Timestamp  time.Time
	Backend    string
	Duration   time.Duration
	StatusCode int
	Healthy    bool
}

// Collector feeds metric events and published states into Prometheus from a
// single goroutine, so the request path never waits on it.
type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
	done    chan struct{}
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger.With(slog.String("component", "metrics")),
		done:    make(chan struct{}),
	}
}

// Emit queues an event without blocking. It reports false when the event was
// dropped because the buffer is full. Emit on a nil collector is a no-op.
func (c *Collector) Emit(event MetricEvent) bool {
	if c == nil {
		return false
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
		return true
	default:
		return false
	}
}

// Start processes events and states until ctx is cancelled. states may be
// nil.
func (c *Collector) Start(ctx context.Context, states <-chan broadcast.State) {
	go c.run(ctx, states)
}

// Done is closed once the collector has drained and stopped.
func (c *Collector) Done() <-chan struct{} {
	return c.done
}

func (c *Collector) Handler() http.Handler {
	return c.metrics.Handler()
}

func (c *Collector) Metrics() *Metrics {
	return c.metrics
}

func (c *Collector) run(ctx context.Context, states <-chan broadcast.State) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")
	defer close(c.done)

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case state, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			c.metrics.ObserveState(state)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventResponseCompleted:
		c.metrics.RecordResponse(event.Backend, event.Duration, event.StatusCode)

	case EventRequestFailed:
		c.metrics.RecordError(event.Backend)

	case EventProbeCompleted:
		c.metrics.RecordProbe(event.Backend, event.Healthy, event.Duration)

	case EventHealthChanged:
		c.metrics.RecordHealthChange(event.Backend, event.Healthy)

	default:
		c.logger.Debug("Unknown metric event", slog.String("type", string(event.Type)))
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}
