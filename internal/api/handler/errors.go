package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/driveless/driveless/internal/api/middleware"
	"github.com/driveless/driveless/internal/api/models"
	"github.com/driveless/driveless/internal/api/response"
	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/internal/provider/resilience"
	"github.com/driveless/driveless/internal/route"
	"github.com/driveless/driveless/internal/routing"
	"github.com/driveless/driveless/internal/savedroute"
	"github.com/driveless/driveless/internal/usage"
	"github.com/driveless/driveless/internal/validation"
)

// writeError maps a domain error to its problem response. Provider status
// strings stay in the log; responses carry a generic detail.
func writeError(w http.ResponseWriter, r *http.Request, log zerolog.Logger, err error) {
	var (
		verr       *validation.Error
		limitErr   *usage.LimitError
		unresolved *geocoding.UnresolvedLocationError
		trafficErr *routing.TrafficRefinementError
		routeErr   *routing.RouteCalculationError
	)

	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, r, "request validation failed", toFieldErrors(verr))
	case errors.Is(err, routing.ErrNoStops), errors.Is(err, routing.ErrTooManyStops):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, route.ErrInvalidDocument):
		response.BadRequest(w, r, err.Error(), nil)
	case errors.Is(err, savedroute.ErrRouteNotFound):
		response.NotFound(w, r, "route not found")
	case errors.As(err, &limitErr):
		response.DailyLimitExceeded(w, r, limitErr.Usage.CurrentUsage, limitErr.Usage.Limit, limitErr.Usage.ResetsAt.Unix())

	// checked before the provider error types, which may wrap a timeout
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		response.ServiceUnavailable(w, r, "request timed out")

	case errors.As(err, &unresolved):
		logProviderError(r, log, err)
		if errors.Is(err, geocoding.ErrProviderUnavailable) || errors.Is(err, geocoding.ErrRateLimitExceeded) {
			response.ServiceUnavailable(w, r, "geocoding is temporarily unavailable")
			return
		}
		response.Unprocessable(w, r, "address could not be resolved: "+unresolved.Query)

	case errors.As(err, &trafficErr):
		logProviderError(r, log, err)
		response.BadGateway(w, r, "live traffic could not be retrieved")

	case errors.As(err, &routeErr):
		logProviderError(r, log, err)
		switch {
		case errors.Is(err, routing.ErrNoRouteFound):
			response.Unprocessable(w, r, "no drivable route connects these addresses")
		case errors.Is(err, routing.ErrRateLimitExceeded):
			response.TooManyRequests(w, r, "routing quota exceeded, try again later")
		case errors.Is(err, resilience.ErrCircuitOpen), errors.Is(err, routing.ErrProviderUnavailable):
			response.ServiceUnavailable(w, r, "routing is temporarily unavailable")
		default:
			response.BadGateway(w, r, "route calculation failed")
		}

	default:
		middleware.RequestLogger(r.Context(), log).Error().Err(err).
			Str("path", r.URL.Path).
			Msg("request failed")
		response.InternalError(w, r, "an unexpected error occurred")
	}
}

func logProviderError(r *http.Request, log zerolog.Logger, err error) {
	middleware.RequestLogger(r.Context(), log).Warn().Err(err).
		Str("path", r.URL.Path).
		Msg("provider error")
}

func toFieldErrors(verr *validation.Error) []models.FieldError {
	out := make([]models.FieldError, len(verr.Errors))
	for i, fe := range verr.Errors {
		out[i] = models.FieldError{Field: fe.Field, Message: fe.Message}
	}
	return out
}
