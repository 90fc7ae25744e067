package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// HealthChecker defines the interface for checking database health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// ModelHealthChecker defines the interface for checking model scorer health.
type ModelHealthChecker interface {
	Enabled() bool
	IsCircuitOpen() bool
}

// ReadinessChecker reports whether the service should take new traffic.
type ReadinessChecker interface {
	IsReady() bool
}

// HealthHandler handles health check HTTP requests.
type HealthHandler struct {
	healthChecker HealthChecker
	modelChecker  ModelHealthChecker
	readiness     ReadinessChecker
	logger        *zap.Logger
}

// HealthHandlerConfig holds configuration for HealthHandler.
type HealthHandlerConfig struct {
	HealthChecker HealthChecker
	ModelChecker  ModelHealthChecker
	Readiness     ReadinessChecker
	Logger        *zap.Logger
}

// NewHealthHandler creates a new HealthHandler with all required dependencies.
func NewHealthHandler(cfg HealthHandlerConfig) *HealthHandler {
	if cfg.Logger == nil {
		panic("logger is required")
	}
	return &HealthHandler{
		healthChecker: cfg.HealthChecker,
		modelChecker:  cfg.ModelChecker,
		readiness:     cfg.Readiness,
		logger:        cfg.Logger,
	}
}

// RegisterRoutes registers health routes on the router.
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/ready", h.HandleReadiness)
	r.Get("/healthz", h.HandleLiveness)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status string                     `json:"status"`
	Checks map[string]ComponentHealth `json:"checks,omitempty"`
}

// ComponentHealth represents the health of a single component.
type ComponentHealth struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HandleHealth returns a health check response including service dependencies.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	response := HealthResponse{
		Status: "ok",
		Checks: make(map[string]ComponentHealth),
	}
	status := http.StatusOK

	// Database is critical; the service cannot ingest without it.
	if h.healthChecker != nil {
		if err := h.healthChecker.Ping(ctx); err != nil {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
			response.Checks["database"] = ComponentHealth{Status: "unhealthy", Message: err.Error()}
			h.logger.Error("database health check failed", zap.Error(err))
		} else {
			response.Checks["database"] = ComponentHealth{Status: "healthy"}
		}
	}

	// The model scorer degrades to heuristic-only advice, so an open
	// circuit is reported but does not fail the check.
	if h.modelChecker != nil {
		switch {
		case !h.modelChecker.Enabled():
			response.Checks["model"] = ComponentHealth{Status: "disabled", Message: "no API key configured"}
		case h.modelChecker.IsCircuitOpen():
			if response.Status == "ok" {
				response.Status = "degraded"
			}
			response.Checks["model"] = ComponentHealth{
				Status:  "degraded",
				Message: "circuit breaker open - falling back to heuristic advice",
			}
		default:
			response.Checks["model"] = ComponentHealth{Status: "healthy"}
		}
	}

	WriteJSON(w, status, response, h.logger)
}

// HandleReadiness reports whether the service can take traffic.
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if h.readiness != nil && !h.readiness.IsReady() {
		WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "draining"}, h.logger)
		return
	}
	if h.healthChecker != nil {
		if err := h.healthChecker.Ping(ctx); err != nil {
			WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"}, h.logger)
			return
		}
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"}, h.logger)
}

// HandleLiveness reports that the process is up.
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "alive"}, h.logger)
}
