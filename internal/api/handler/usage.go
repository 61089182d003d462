package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/driveless/driveless/internal/api/models"
	"github.com/driveless/driveless/internal/api/response"
)

// UsageHandler reports the caller's daily quota.
type UsageHandler struct {
	usage  UsageLimiter
	logger zerolog.Logger
}

// NewUsageHandler creates a new UsageHandler.
func NewUsageHandler(limiter UsageLimiter, logger zerolog.Logger) *UsageHandler {
	return &UsageHandler{usage: limiter, logger: logger}
}

// GetUsage handles GET /v1/usage - today's optimizations for the caller.
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	u, err := h.usage.Get(r.Context(), callerKey(r))
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to read usage")
		response.ServiceUnavailable(w, r, "usage is temporarily unavailable")
		return
	}

	response.JSON(w, r, http.StatusOK, models.Usage{
		CurrentUsage: u.CurrentUsage,
		Limit:        u.Limit,
		Remaining:    u.Remaining,
		ResetsAt:     models.Timestamp(u.ResetsAt),
	})
}
