package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/angeloszaimis/l7-load-balancer/internal/broadcast"
	"github.com/angeloszaimis/l7-load-balancer/internal/registry"
	"github.com/angeloszaimis/l7-load-balancer/internal/strategy"
)

// maxBodyBytes bounds control request bodies.
const maxBodyBytes = 1 << 20

// Balancer is the part of the load balancer the control plane drives.
type Balancer interface {
	State() broadcast.State
	SetAlgorithm(name string) error
	ToggleBackend(id string, enabled bool) error
}

type Handler struct {
	balancer Balancer
	hub      *broadcast.Hub
	metrics  http.Handler
	logger   *slog.Logger
}

type algorithmRequest struct {
	Algorithm string `json:"algorithm"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

type messageResponse struct {
	Message   string `json:"message"`
	Algorithm string `json:"algorithm,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// New creates the control API. hub and metrics are optional; their routes are
// only registered when set.
func New(balancer Balancer, hub *broadcast.Hub, metrics http.Handler, logger *slog.Logger) *Handler {
	return &Handler{
		balancer: balancer,
		hub:      hub,
		metrics:  metrics,
		logger:   logger.With(slog.String("component", "api")),
	}
}

// Routes returns the control plane mux wrapped in permissive CORS, so a
// dashboard served from another origin can use it.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", h.getState)
	mux.HandleFunc("POST /api/algorithm", h.setAlgorithm)
	mux.HandleFunc("POST /api/backends/{id}/toggle", h.toggleBackend)
	mux.HandleFunc("GET /healthz", h.healthz)

	if h.hub != nil {
		mux.HandleFunc("GET /ws", h.hub.ServeWS)
	}
	if h.metrics != nil {
		mux.Handle("GET /metrics", h.metrics)
	}

	return cors(mux)
}

func (h *Handler) getState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.balancer.State())
}

func (h *Handler) setAlgorithm(w http.ResponseWriter, r *http.Request) {
	var req algorithmRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.balancer.SetAlgorithm(req.Algorithm); err != nil {
		h.writeDomainError(w, err, fmt.Sprintf("Invalid algorithm: %s", req.Algorithm))
		return
	}

	writeJSON(w, http.StatusOK, messageResponse{
		Message:   fmt.Sprintf("Algorithm set to %s", req.Algorithm),
		Algorithm: req.Algorithm,
	})
}

func (h *Handler) toggleBackend(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req toggleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Enabled == nil {
		writeError(w, http.StatusBadRequest, "Field enabled is required")
		return
	}

	if err := h.balancer.ToggleBackend(id, *req.Enabled); err != nil {
		h.writeDomainError(w, err, fmt.Sprintf("Backend %s not found", id))
		return
	}

	state := "disabled"
	if *req.Enabled {
		state = "enabled"
	}
	writeJSON(w, http.StatusOK, messageResponse{
		Message: fmt.Sprintf("Backend %s %s", id, state),
	})
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeDomainError maps core sentinels to status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error, message string) {
	switch {
	case errors.Is(err, strategy.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, message)
	case errors.Is(err, registry.ErrNotFound):
		writeError(w, http.StatusNotFound, message)
	default:
		h.logger.Error("Control request failed", slog.String("error", err.Error()))
		writeError(w, http.StatusInternalServerError, "Internal error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
