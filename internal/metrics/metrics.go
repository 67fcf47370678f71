package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angeloszaimis/l7-load-balancer/internal/backend"
	"github.com/angeloszaimis/l7-load-balancer/internal/broadcast"
)

const namespace = "lb"

// Metrics holds the Prometheus collectors of the load balancer on a private
// registry.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	requestErrors     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	probesTotal       *prometheus.CounterVec
	probeDuration     *prometheus.HistogramVec
	healthTransitions *prometheus.CounterVec
	activeConnections *prometheus.GaugeVec
	responseTime      *prometheus.GaugeVec
	backendUp         *prometheus.GaugeVec
	backendEnabled    *prometheus.GaugeVec
	algorithm         *prometheus.GaugeVec
	stateVersion      prometheus.Gauge
	currentAlgorithm  string
	registry          *prometheus.Registry
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of proxied requests",
		},
		[]string{"backend", "status"},
	)

	m.requestErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_errors_total",
			Help:      "Total number of requests that could not be forwarded",
		},
		[]string{"backend"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Proxied request duration in seconds",
			Buckets: []float64{
				.005, .01, .025, .05, .1,
				.25, .5, 1, 2.5, 5, 10, 30,
			},
		},
		[]string{"backend"},
	)

	m.probesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_probes_total",
			Help:      "Total number of health probes by result",
		},
		[]string{"backend", "result"},
	)

	m.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_probe_duration_seconds",
			Help:      "Health probe duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)

	m.healthTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_transitions_total",
			Help:      "Total number of backend health status changes",
		},
		[]string{"backend", "status"},
	)

	m.activeConnections = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_active_connections",
			Help:      "In-flight requests per backend",
		},
		[]string{"backend"},
	)

	m.responseTime = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_response_time_ms",
			Help:      "Smoothed response time of successful requests in milliseconds",
		},
		[]string{"backend"},
	)

	m.backendUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_up",
			Help:      "Backend health status (1=healthy, 0=unhealthy)",
		},
		[]string{"backend"},
	)

	m.backendEnabled = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_enabled",
			Help:      "Operator switch (1=enabled, 0=disabled)",
		},
		[]string{"backend"},
	)

	m.algorithm = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "algorithm_info",
			Help:      "Active selection algorithm",
		},
		[]string{"algorithm"},
	)

	m.stateVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "state_version",
			Help:      "Version of the last observed state",
		},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestErrors,
		m.requestDuration,
		m.probesTotal,
		m.probeDuration,
		m.healthTransitions,
		m.activeConnections,
		m.responseTime,
		m.backendUp,
		m.backendEnabled,
		m.algorithm,
		m.stateVersion,
	)
	m.registry.MustRegister(collectors.NewGoCollector())
	m.registry.MustRegister(
		collectors.NewProcessCollector(
			collectors.ProcessCollectorOpts{},
		),
	)

	return m
}

func (m *Metrics) RecordResponse(backendID string, duration time.Duration, statusCode int) {
	m.requestsTotal.WithLabelValues(backendID, strconv.Itoa(statusCode)).Inc()
	m.requestDuration.WithLabelValues(backendID).Observe(duration.Seconds())
}

func (m *Metrics) RecordError(backendID string) {
	m.requestErrors.WithLabelValues(backendID).Inc()
}

func (m *Metrics) RecordProbe(backendID string, ok bool, duration time.Duration) {
	result := "success"
	if !ok {
		result = "failure"
	}
	m.probesTotal.WithLabelValues(backendID, result).Inc()
	m.probeDuration.WithLabelValues(backendID).Observe(duration.Seconds())
}

func (m *Metrics) RecordHealthChange(backendID string, healthy bool) {
	status := backend.StatusHealthy
	if !healthy {
		status = backend.StatusUnhealthy
	}
	text, _ := status.MarshalText()
	m.healthTransitions.WithLabelValues(backendID, string(text)).Inc()
}

// ObserveState copies the gauges of a published state.
func (m *Metrics) ObserveState(state broadcast.State) {
	if state.Algorithm != m.currentAlgorithm {
		if m.currentAlgorithm != "" {
			m.algorithm.DeleteLabelValues(m.currentAlgorithm)
		}
		m.algorithm.WithLabelValues(state.Algorithm).Set(1)
		m.currentAlgorithm = state.Algorithm
	}

	m.stateVersion.Set(float64(state.Version))

	for _, b := range state.Backends {
		m.activeConnections.WithLabelValues(b.ID).Set(float64(b.ActiveConnections))
		m.responseTime.WithLabelValues(b.ID).Set(float64(b.ResponseTimeMs))
		m.backendUp.WithLabelValues(b.ID).Set(boolToFloat(b.Status == backend.StatusHealthy))
		m.backendEnabled.WithLabelValues(b.ID).Set(boolToFloat(b.Enabled))
	}
}

// Registry exposes the underlying registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
