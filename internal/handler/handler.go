package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/angeloszaimis/l7-load-balancer/internal/loadbalancer"
	"github.com/angeloszaimis/l7-load-balancer/internal/metrics"
	"github.com/angeloszaimis/l7-load-balancer/internal/registry"
)

const (
	DefaultProxyTimeout = 30 * time.Second

	HeaderBackendServer = "X-Backend-Server"
	HeaderRequestID     = "X-Request-ID"
)

type LoadBalancerHandler struct {
	logger           *slog.Logger
	balancer         *loadbalancer.LoadBalancer
	proxies          map[string]*httputil.ReverseProxy
	metricsCollector *metrics.Collector
}

// ErrorBody is the JSON body written when a request cannot be forwarded.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type forwardKey struct{}

// forward is the per-request state shared between ServeHTTP and the proxy
// error handler through the request context.
type forward struct {
	lease  loadbalancer.Lease
	failed bool
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

// NewLoadBalancerHandler builds one reverse proxy per target. collector may be
// nil; a non-positive proxyTimeout falls back to DefaultProxyTimeout.
func NewLoadBalancerHandler(
	logger *slog.Logger,
	lb *loadbalancer.LoadBalancer,
	targets []registry.Target,
	collector *metrics.Collector,
	proxyTimeout time.Duration,
) *LoadBalancerHandler {
	if proxyTimeout <= 0 {
		proxyTimeout = DefaultProxyTimeout
	}

	h := &LoadBalancerHandler{
		logger:           logger.With(slog.String("component", "proxy")),
		balancer:         lb,
		proxies:          make(map[string]*httputil.ReverseProxy, len(targets)),
		metricsCollector: collector,
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = proxyTimeout

	for _, target := range targets {
		h.proxies[target.ID] = h.newReverseProxy(target, transport)
	}

	return h
}

func (h *LoadBalancerHandler) newReverseProxy(target registry.Target, transport http.RoundTripper) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target.URL)
			pr.SetXForwarded()
			if pr.In.Header.Get(HeaderRequestID) == "" {
				pr.Out.Header.Set(HeaderRequestID, uuid.NewString())
			}
		},
		Transport: transport,
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			h.proxyError(w, r, target, err)
		},
	}
}

func (h *LoadBalancerHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientIP := extractClientIP(r)

	h.logger.Debug("Received request",
		slog.String("from", clientIP),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("host", r.Host),
		slog.String("user_agent", r.UserAgent()))

	lease, ok := h.balancer.SelectBackend()
	if !ok {
		h.logger.Warn("No healthy backends available", slog.String("client", clientIP))
		writeJSON(w, http.StatusServiceUnavailable, ErrorBody{
			Error:   "Service Unavailable",
			Message: "No healthy backends available.",
		})
		return
	}

	proxy, found := h.proxies[lease.BackendID]
	if !found {
		// Every registry backend gets a proxy at construction.
		h.logger.Error("No proxy for backend", slog.String("backend", lease.BackendID))
		h.finish(lease, http.StatusInternalServerError, false)
		writeJSON(w, http.StatusInternalServerError, ErrorBody{
			Error:   "Internal Server Error",
			Message: fmt.Sprintf("Backend %s has no route.", lease.BackendID),
		})
		return
	}

	fwd := &forward{lease: lease}
	r = r.WithContext(context.WithValue(r.Context(), forwardKey{}, fwd))

	h.logger.Debug("Forwarding to backend",
		slog.String("client", clientIP),
		slog.String("backend", lease.BackendID),
		slog.String("server", lease.URL.String()))

	w.Header().Set(HeaderBackendServer, lease.BackendID)

	wrapped := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

	// The proxy panics with http.ErrAbortHandler when the response body copy
	// fails mid-stream. The request still has to be closed on the backend.
	defer func() {
		rec := recover()
		if rec != nil && !fwd.failed {
			fwd.failed = true
			h.recordFailure(lease.BackendID)
			h.logger.Warn("Response stream aborted",
				slog.String("backend", lease.BackendID),
				slog.String("server", lease.URL.String()))
		}

		h.finish(lease, wrapped.statusCode, !fwd.failed)

		if rec != nil {
			panic(rec)
		}
	}()

	proxy.ServeHTTP(wrapped, r)
}

// finish closes the request opened by SelectBackend.
func (h *LoadBalancerHandler) finish(lease loadbalancer.Lease, statusCode int, success bool) {
	duration := lease.Elapsed()

	if err := h.balancer.EndRequest(lease.BackendID, duration, success); err != nil {
		h.logger.Error("Failed to end request",
			slog.String("backend", lease.BackendID),
			slog.String("error", err.Error()))
	}

	if !success {
		return
	}

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:       metrics.EventResponseCompleted,
		Backend:    lease.BackendID,
		Duration:   duration,
		StatusCode: statusCode,
	})
}

func (h *LoadBalancerHandler) proxyError(w http.ResponseWriter, r *http.Request, target registry.Target, err error) {
	if fwd, ok := r.Context().Value(forwardKey{}).(*forward); ok {
		fwd.failed = true
	}

	h.recordFailure(target.ID)

	h.logger.Warn("Backend unreachable",
		slog.String("backend", target.ID),
		slog.String("server", target.URL.String()),
		slog.String("error", err.Error()))

	writeJSON(w, http.StatusBadGateway, ErrorBody{
		Error:   "Bad Gateway",
		Message: fmt.Sprintf("Backend %s is unreachable.", target.ID),
	})
}

// recordFailure counts a failed forward. The connection slot is released by
// finish.
func (h *LoadBalancerHandler) recordFailure(backendID string) {
	if err := h.balancer.RecordError(backendID); err != nil {
		h.logger.Error("Failed to record error",
			slog.String("backend", backendID),
			slog.String("error", err.Error()))
	}

	h.metricsCollector.Emit(metrics.MetricEvent{
		Type:    metrics.EventRequestFailed,
		Backend: backendID,
	})
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer, which the
// reverse proxy needs to hijack upgraded connections and flush streams.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
