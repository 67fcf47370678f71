package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/angeloszaimis/l7-load-balancer/config"
	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
	"github.com/angeloszaimis/l7-load-balancer/internal/broadcast"
	"github.com/angeloszaimis/l7-load-balancer/internal/handler"
	"github.com/angeloszaimis/l7-load-balancer/internal/healthcheck"
	"github.com/angeloszaimis/l7-load-balancer/internal/httpserver"
	"github.com/angeloszaimis/l7-load-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/l7-load-balancer/internal/metrics"
	"github.com/angeloszaimis/l7-load-balancer/internal/registry"
	"github.com/angeloszaimis/l7-load-balancer/internal/strategy"
	"github.com/angeloszaimis/l7-load-balancer/pkg/logger"
)

const metricsBufferSize = 1000

var errNoBackends = errors.New("no backends configured")

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log := logger.New(logger.Options{
		Level:       cfg.Logging.Level,
		Environment: cfg.Server.Environment,
		AddSource:   true,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Load balancer stopped with error", slog.Any("err", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	backendConfigs, err := initializeBackends(cfg, log)
	if err != nil {
		return fmt.Errorf("initialize backends: %w", err)
	}

	reg, err := registry.New(backendConfigs)
	if err != nil {
		return fmt.Errorf("create registry: %w", err)
	}

	engine, err := createEngine(cfg.Strategy.Type)
	if err != nil {
		return fmt.Errorf("create strategy: %w", err)
	}

	hub := broadcast.NewHub(log)
	lb := loadbalancer.NewLoadBalancer(reg, engine, hub, log)
	lb.Publish()

	collector := metrics.NewCollector(metricsBufferSize, log)
	collectorCtx, stopCollector := context.WithCancel(context.Background())
	defer stopCollector()
	collector.Start(collectorCtx, hub.Subscribe().C())

	monitor := healthcheck.New(reg, lb, healthcheck.Config{
		Interval: cfg.HealthCheck.IntervalDuration(),
		Timeout:  cfg.HealthCheck.TimeoutDuration(),
		Path:     cfg.HealthCheck.Path,
		Thresholds: backend.Thresholds{
			Unhealthy: cfg.HealthCheck.UnhealthyThreshold,
			Healthy:   cfg.HealthCheck.HealthyThreshold,
		},
	}, log, healthcheck.WithCollector(collector))

	loadBalancerHandler := handler.NewLoadBalancerHandler(log, lb, reg.Targets(), collector, cfg.Proxy.TimeoutDuration())

	// Proxied streams and WebSockets outlive any fixed write timeout.
	proxySrv, err := httpserver.New(cfg.Server.Address, setupRouter(loadBalancerHandler), httpserver.WithWriteTimeout(0))
	if err != nil {
		return fmt.Errorf("create proxy server: %w", err)
	}
	apiSrv, err := httpserver.New(cfg.Server.APIAddress, setupAPIRouter(lb, hub, collector, log), httpserver.WithWriteTimeout(0))
	if err != nil {
		return fmt.Errorf("create api server: %w", err)
	}

	if err := proxySrv.Listen(); err != nil {
		return fmt.Errorf("listen proxy: %w", err)
	}
	if err := apiSrv.Listen(); err != nil {
		return fmt.Errorf("listen api: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(proxySrv.Start)
	g.Go(apiSrv.Start)

	monitor.Start(gctx)

	log.Info("Load balancer running",
		slog.String("proxy", proxySrv.Addr()),
		slog.String("api", apiSrv.Addr()),
		slog.String("algorithm", lb.Algorithm()),
		slog.Int("backends", reg.Len()))

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")

		monitor.Stop()
		hub.Close()

		shutdownErr := errors.Join(
			proxySrv.Shutdown(context.Background()),
			apiSrv.Shutdown(context.Background()),
		)

		stopCollector()
		<-collector.Done()
		return shutdownErr
	})

	return g.Wait()
}

func initializeBackends(cfg *config.Config, log *slog.Logger) ([]backend.Config, error) {
	if len(cfg.Backends) == 0 {
		return nil, errNoBackends
	}

	backends := make([]backend.Config, 0, len(cfg.Backends))

	for _, bc := range cfg.Backends {
		u, err := url.Parse(bc.URL)
		if err != nil {
			log.Error("Failed to parse URL",
				slog.String("backend", bc.ID),
				slog.String("url", bc.URL),
				slog.String("error", err.Error()))
			return nil, fmt.Errorf("backend %s: %w", bc.ID, err)
		}

		backends = append(backends, backend.Config{
			ID:     bc.ID,
			URL:    u,
			Weight: bc.Weight,
		})
	}

	return backends, nil
}

func createEngine(strategyType string) (*strategy.Engine, error) {
	return strategy.NewEngine(strategyType)
}
