// Package handler provides HTTP handlers for the DriveLess API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/driveless/driveless/internal/api/models"
	"github.com/driveless/driveless/internal/api/response"
	"github.com/driveless/driveless/internal/provider/resilience"
)

// readinessTimeout bounds each dependency ping.
const readinessTimeout = 2 * time.Second

// DependencyCheck is a named dependency probed by readiness and status.
type DependencyCheck struct {
	Name string
	Ping func(ctx context.Context) error
}

// OpsHandlerConfig holds configuration for the OpsHandler.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string
	Checks    []DependencyCheck
	// Registry reports provider circuit health (optional).
	Registry *resilience.Registry
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	checks    []DependencyCheck
	registry  *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		checks:    cfg.Checks,
		registry:  cfg.Registry,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]any{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check. Every
// dependency must answer its ping.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	subsystems := h.pingAll(r.Context())

	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	failed := map[string]any{}
	for _, s := range subsystems {
		if s.Status != models.HealthStatusOK {
			failed[s.Name] = *s.Detail
		}
	}
	if len(failed) > 0 {
		health.Status = models.HealthStatusFail
		health.Details = failed
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: h.pingAll(r.Context()),
		Providers:  []models.ProviderStatus{},
	}

	for _, s := range status.Subsystems {
		if s.Status == models.HealthStatusFail {
			status.Status = models.HealthStatusFail
		}
	}

	if h.registry != nil {
		for _, ph := range h.registry.GetAllHealth() {
			status.Providers = append(status.Providers, toProviderStatus(ph))
		}
		// an open circuit degrades the service, it does not take it down
		if h.registry.OverallStatus() != resilience.StatusOK && status.Status == models.HealthStatusOK {
			status.Status = models.HealthStatusDegraded
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) pingAll(ctx context.Context) []models.SubsystemStatus {
	out := make([]models.SubsystemStatus, len(h.checks))
	for i, c := range h.checks {
		pingCtx, cancel := context.WithTimeout(ctx, readinessTimeout)
		err := c.Ping(pingCtx)
		cancel()

		out[i] = models.SubsystemStatus{Name: c.Name, Status: models.HealthStatusOK}
		if err != nil {
			detail := err.Error()
			out[i].Status = models.HealthStatusFail
			out[i].Detail = &detail
		}
	}
	return out
}

func toProviderStatus(ph *resilience.ProviderHealth) models.ProviderStatus {
	ps := models.ProviderStatus{
		Provider:            ph.Name,
		Status:              models.HealthStatusOK,
		CircuitState:        ph.CircuitState.String(),
		ConsecutiveFailures: int(ph.Counts.ConsecutiveFailures),
	}
	switch {
	case ph.IsUnhealthy():
		ps.Status = models.HealthStatusFail
	case ph.IsDegraded():
		ps.Status = models.HealthStatusDegraded
	}
	if ph.LastSuccessAt != nil {
		t := models.Timestamp(*ph.LastSuccessAt)
		ps.LastSuccessAt = &t
	}
	if ph.LastFailureAt != nil {
		t := models.Timestamp(*ph.LastFailureAt)
		ps.LastFailureAt = &t
	}
	if ph.LastError != "" {
		msg := ph.LastError
		ps.Message = &msg
	}
	return ps
}
