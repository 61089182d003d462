package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/driveless/driveless/internal/api/models"
	"github.com/driveless/driveless/internal/api/response"
	"github.com/driveless/driveless/internal/optimizer"
	"github.com/driveless/driveless/internal/route"
	"github.com/driveless/driveless/internal/routing"
	"github.com/driveless/driveless/internal/telemetry"
	"github.com/driveless/driveless/internal/usage"
	"github.com/driveless/driveless/internal/validation"
)

// Optimizer runs route optimizations.
type Optimizer interface {
	Optimize(ctx context.Context, req optimizer.RouteRequest) (*route.Route, error)
}

// UsageLimiter enforces the daily optimization quota.
type UsageLimiter interface {
	Get(ctx context.Context, id string) (usage.Usage, error)
	Check(ctx context.Context, id string) (usage.Usage, error)
	Record(ctx context.Context, id string) (usage.Usage, error)
}

// RunRecorder records optimization outcomes.
type RunRecorder interface {
	RecordRun(outcome string, stops int, duration time.Duration)
}

// RouteHandlerConfig holds configuration for the RouteHandler.
type RouteHandlerConfig struct {
	Optimizer Optimizer
	Usage     UsageLimiter
	// Metrics is optional.
	Metrics RunRecorder
	Logger  zerolog.Logger
}

// RouteHandler handles route optimization endpoints.
type RouteHandler struct {
	optimizer Optimizer
	usage     UsageLimiter
	metrics   RunRecorder
	logger    zerolog.Logger
}

// NewRouteHandler creates a new RouteHandler.
func NewRouteHandler(cfg RouteHandlerConfig) *RouteHandler {
	return &RouteHandler{
		optimizer: cfg.Optimizer,
		usage:     cfg.Usage,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
}

// Optimize handles POST /v1/routes:optimize - order the stops of a route.
func (h *RouteHandler) Optimize(w http.ResponseWriter, r *http.Request) {
	var input models.OptimizeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := validation.Struct(input); err != nil {
		h.record(err, true, len(input.Stops), 0)
		writeError(w, r, h.logger, err)
		return
	}

	caller := callerKey(r)
	if _, err := h.usage.Check(r.Context(), caller); err != nil {
		var limitErr *usage.LimitError
		if errors.As(err, &limitErr) {
			h.record(err, true, len(input.Stops), 0)
			writeError(w, r, h.logger, err)
			return
		}
		// the quota store being down does not block optimizations
		h.logger.Warn().Err(err).Str("caller", caller).Msg("usage check failed")
	}

	req := optimizer.RouteRequest{
		Start:           input.Start,
		End:             input.End,
		Stops:           make([]optimizer.StopInput, len(input.Stops)),
		ConsiderTraffic: input.ConsiderTraffic,
		RoundTrip:       input.RoundTrip,
	}
	for i, s := range input.Stops {
		req.Stops[i] = optimizer.StopInput{Address: s.Address, Category: s.Category, Notes: s.Notes}
	}

	start := time.Now()
	rt, err := h.optimizer.Optimize(r.Context(), req)
	h.record(err, isRejection(err), len(req.Stops), time.Since(start))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if _, err := h.usage.Record(r.Context(), caller); err != nil {
		h.logger.Warn().Err(err).Str("caller", caller).Msg("usage record failed")
	}

	response.JSON(w, r, http.StatusOK, toRoute(rt))
}

// ListStopCategories handles GET /v1/stop-categories - list stop categories.
func (h *RouteHandler) ListStopCategories(w http.ResponseWriter, r *http.Request) {
	categories := route.Categories()
	out := models.StopCategories{Items: make([]models.StopCategory, len(categories))}
	for i, c := range categories {
		out.Items[i] = toStopCategory(c)
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	response.JSON(w, r, http.StatusOK, out)
}

func (h *RouteHandler) record(err error, rejected bool, stops int, d time.Duration) {
	if h.metrics == nil {
		return
	}
	h.metrics.RecordRun(telemetry.Outcome(err, rejected), stops, d)
}

func isRejection(err error) bool {
	var verr *validation.Error
	return errors.As(err, &verr) ||
		errors.Is(err, routing.ErrNoStops) ||
		errors.Is(err, routing.ErrTooManyStops)
}
