package healthcheck

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
	"github.com/angeloszaimis/l7-load-balancer/internal/metrics"
	"github.com/angeloszaimis/l7-load-balancer/internal/registry"
)

const (
	DefaultInterval = 10 * time.Second
	DefaultTimeout  = 5 * time.Second
	DefaultPath     = "/health"
)

type Config struct {
	Interval   time.Duration
	Timeout    time.Duration
	Path       string
	Thresholds backend.Thresholds
}

// Notifier is told once per completed tick that backend state may have
// changed.
type Notifier interface {
	Publish()
}

// Outcome is the applied result of probing one backend.
type Outcome struct {
	BackendID string
	Result    Result
	Status    backend.Status
	Changed   bool
}

// Report lists the outcomes of one tick in registry order. Backends whose
// result was discarded because the tick was cancelled are missing.
type Report struct {
	Outcomes []Outcome
}

// Monitor probes every backend on a fixed interval and drives the health
// state machine of each one through the registry.
type Monitor struct {
	registry  *registry.Registry
	notifier  Notifier
	config    Config
	prober    Prober
	collector *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	stoppedCh chan struct{}
	ticks     sync.WaitGroup
}

type Option func(*Monitor)

func WithProber(p Prober) Option {
	return func(m *Monitor) {
		m.prober = p
	}
}

// WithCollector reports probe results and health transitions as metrics.
func WithCollector(c *metrics.Collector) Option {
	return func(m *Monitor) {
		m.collector = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// New creates a monitor. Zero config values fall back to the defaults.
func New(reg *registry.Registry, notifier Notifier, cfg Config, logger *slog.Logger, opts ...Option) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.Thresholds.Unhealthy <= 0 {
		cfg.Thresholds.Unhealthy = backend.DefaultThresholds.Unhealthy
	}
	if cfg.Thresholds.Healthy <= 0 {
		cfg.Thresholds.Healthy = backend.DefaultThresholds.Healthy
	}

	m := &Monitor{
		registry: reg,
		notifier: notifier,
		config:   cfg,
		logger:   logger.With(slog.String("component", "healthcheck")),
		now:      time.Now,
	}

	for _, opt := range opts {
		opt(m)
	}

	if m.prober == nil {
		m.prober = NewHTTPProber(nil)
	}

	return m
}

// Start runs one tick immediately and then one per interval until ctx is
// cancelled or Stop is called. Calling Start on a running monitor does nothing.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true

	ctx, m.cancel = context.WithCancel(ctx)
	m.stoppedCh = make(chan struct{})

	m.logger.Info("Health monitor started",
		slog.Duration("interval", m.config.Interval),
		slog.Duration("timeout", m.config.Timeout),
		slog.String("path", m.config.Path))

	go m.run(ctx, m.stoppedCh)
}

// Stop cancels in-flight probes and waits for every tick to return.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel, stoppedCh := m.cancel, m.stoppedCh
	m.mu.Unlock()

	cancel()
	<-stoppedCh
	m.ticks.Wait()

	m.logger.Info("Health monitor stopped")
}

func (m *Monitor) run(ctx context.Context, stoppedCh chan struct{}) {
	defer close(stoppedCh)

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	m.launch(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.launch(ctx)
		}
	}
}

// launch runs a tick in its own goroutine so a slow backend never holds up
// the next tick.
func (m *Monitor) launch(ctx context.Context) {
	m.ticks.Add(1)
	go func() {
		defer m.ticks.Done()
		m.CheckAll(ctx)
	}()
}

// CheckAll probes every backend concurrently, applies each outcome as it
// settles and notifies once after all of them settled. A cancelled tick
// applies nothing further and does not notify.
func (m *Monitor) CheckAll(ctx context.Context) Report {
	targets := m.registry.Targets()
	outcomes := make([]*Outcome, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target registry.Target) {
			defer wg.Done()
			outcomes[i] = m.check(ctx, target)
		}(i, target)
	}
	wg.Wait()

	report := Report{Outcomes: make([]Outcome, 0, len(targets))}
	for _, o := range outcomes {
		if o != nil {
			report.Outcomes = append(report.Outcomes, *o)
		}
	}

	if ctx.Err() != nil {
		return report
	}

	if m.notifier != nil {
		m.notifier.Publish()
	}
	return report
}

func (m *Monitor) check(ctx context.Context, target registry.Target) *Outcome {
	result := m.prober.Probe(ctx, target.URL, m.config.Path, m.config.Timeout)

	// Shutdown aborted the probe; its failure says nothing about the backend.
	if ctx.Err() != nil {
		return nil
	}

	outcome := &Outcome{BackendID: target.ID, Result: result}
	var failCount int

	_, err := m.registry.Update(target.ID, func(b *backend.Backend) {
		outcome.Changed = b.RecordProbe(result.OK, m.now(), m.config.Thresholds)
		outcome.Status = b.Status()
		failCount = b.FailCount()
	})
	if err != nil {
		m.logger.Error("Failed to apply probe result",
			slog.String("backend", target.ID),
			slog.String("error", err.Error()))
		return nil
	}

	m.collector.Emit(metrics.MetricEvent{
		Type:     metrics.EventProbeCompleted,
		Backend:  target.ID,
		Duration: result.Elapsed,
		Healthy:  result.OK,
	})

	m.logOutcome(target, outcome, failCount)
	return outcome
}

func (m *Monitor) logOutcome(target registry.Target, o *Outcome, failCount int) {
	if o.Changed {
		m.collector.Emit(metrics.MetricEvent{
			Type:    metrics.EventHealthChanged,
			Backend: target.ID,
			Healthy: o.Status == backend.StatusHealthy,
		})

		if o.Status == backend.StatusHealthy {
			m.logger.Info("Server is back up",
				slog.String("backend", target.ID),
				slog.String("server", target.URL.String()))
		} else {
			m.logger.Warn("Server is down",
				slog.String("backend", target.ID),
				slog.String("server", target.URL.String()),
				slog.String("reason", o.Result.Reason))
		}
		return
	}

	if !o.Result.OK {
		m.logger.Debug("Health probe failed",
			slog.String("backend", target.ID),
			slog.String("reason", o.Result.Reason),
			slog.Int("consecutive_failures", failCount))
	}
}
