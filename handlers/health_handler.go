package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/medicrypt/recordvault/services/audit"
	"github.com/medicrypt/recordvault/utils"
	"go.uber.org/zap"
)

// readinessTimeout bounds all dependency checks of one readiness probe
const readinessTimeout = 5 * time.Second

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
	Events    *audit.Stats      `json:"events,omitempty"`
}

// Pinger is a dependency that can report its connectivity
type Pinger interface {
	PingContext(ctx context.Context) error
}

// EventStats reports the state of the security event stream
type EventStats interface {
	GetStats() audit.Stats
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	checks map[string]Pinger
	events EventStats
	logger *zap.Logger
}

// NewHealthHandler creates a new HealthHandler. checks maps a dependency
// name to its pinger; it is empty for the in-memory backend.
func NewHealthHandler(checks map[string]Pinger, events EventStats, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		checks: checks,
		events: events,
		logger: logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	_ = utils.WriteOK(w, response)
}

// HandleReadiness handles GET /readyz
// Readiness check - validates that all dependencies are available
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	checks := make(map[string]string, len(h.checks)+1)
	allHealthy := true

	for name, pinger := range h.checks {
		if err := pinger.PingContext(ctx); err != nil {
			h.logger.Warn("dependency health check failed",
				zap.String("dependency", name),
				zap.Error(err))
			checks[name] = "unhealthy"
			allHealthy = false
			continue
		}
		checks[name] = "healthy"
	}

	var stats *audit.Stats
	if h.events != nil {
		s := h.events.GetStats()
		stats = &s
		if s.Started {
			checks["security_events"] = "healthy"
		} else {
			checks["security_events"] = "stopped"
			allHealthy = false
		}
	}

	status := "healthy"
	httpStatus := http.StatusOK
	if !allHealthy {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	response := HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
		Events:    stats,
	}

	if err := utils.WriteJSON(w, httpStatus, utils.SuccessResponse{Data: response}); err != nil {
		h.logger.Error("failed to write readiness response", zap.Error(err))
	}
}
