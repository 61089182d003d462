package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/driveless/driveless/internal/api/models"
	"github.com/driveless/driveless/internal/api/response"
	"github.com/driveless/driveless/internal/savedroute"
	"github.com/driveless/driveless/internal/validation"
)

// SavedRouteService stores routes per user.
type SavedRouteService interface {
	List(ctx context.Context, userID string, limit int, cursor string) (*savedroute.ListResult, error)
	Get(ctx context.Context, userID, routeID string) (*savedroute.SavedRoute, error)
	Import(ctx context.Context, userID, name string, data []byte) (*savedroute.SavedRoute, error)
	Delete(ctx context.Context, userID, routeID string) error
	Export(ctx context.Context, userID, routeID string) (*savedroute.Export, error)
}

// SavedRouteHandler handles /v1/me/routes endpoints.
type SavedRouteHandler struct {
	service SavedRouteService
	logger  zerolog.Logger
}

// NewSavedRouteHandler creates a new SavedRouteHandler.
func NewSavedRouteHandler(service SavedRouteService, logger zerolog.Logger) *SavedRouteHandler {
	return &SavedRouteHandler{service: service, logger: logger}
}

// ListRoutes handles GET /v1/me/routes - list saved routes, newest first.
func (h *SavedRouteHandler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > savedroute.MaxListLimit {
			response.BadRequest(w, r, "invalid limit", []models.FieldError{
				{Field: "limit", Message: fmt.Sprintf("must be between 1 and %d", savedroute.MaxListLimit)},
			})
			return
		}
		limit = n
	}

	result, err := h.service.List(r.Context(), userID, limit, r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out := models.PagedSavedRoutes{
		Items: make([]models.SavedRouteSummary, len(result.Items)),
		Meta:  models.PageMeta{Limit: limit},
	}
	if out.Meta.Limit == 0 {
		out.Meta.Limit = savedroute.DefaultListLimit
	}
	for i, sr := range result.Items {
		out.Items[i] = toSavedRouteSummary(sr)
	}
	if result.NextCursor != "" {
		out.Meta.NextCursor = &result.NextCursor
	}

	response.JSON(w, r, http.StatusOK, out)
}

// CreateRoute handles POST /v1/me/routes - save a route document.
func (h *SavedRouteHandler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	var input models.SaveRouteRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if err := validation.Struct(input); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	h.save(w, r, input.Name, input.Route)
}

// ImportRoute handles POST /v1/me/routes:import - save an exported route file.
// The optional name query parameter names the saved route.
func (h *SavedRouteHandler) ImportRoute(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.BadRequest(w, r, "route document is too large", nil)
			return
		}
		response.BadRequest(w, r, "could not read request body", nil)
		return
	}
	if len(data) == 0 {
		response.BadRequest(w, r, "route document is required", nil)
		return
	}

	h.save(w, r, r.URL.Query().Get("name"), data)
}

func (h *SavedRouteHandler) save(w http.ResponseWriter, r *http.Request, name string, data []byte) {
	sr, err := h.service.Import(r.Context(), GetUserID(r.Context()), name, data)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out, err := toSavedRoute(sr)
	if err != nil {
		h.unreadable(w, r, sr, err)
		return
	}
	response.Created(w, r, "/v1/me/routes/"+sr.ID, out)
}

// GetRoute handles GET /v1/me/routes/{routeId} - get a saved route.
func (h *SavedRouteHandler) GetRoute(w http.ResponseWriter, r *http.Request) {
	sr, err := h.service.Get(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "routeId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	out, err := toSavedRoute(sr)
	if err != nil {
		h.unreadable(w, r, sr, err)
		return
	}
	response.JSON(w, r, http.StatusOK, out)
}

// DeleteRoute handles DELETE /v1/me/routes/{routeId} - delete a saved route.
func (h *SavedRouteHandler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "routeId")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.NoContent(w, r)
}

// ExportRoute handles GET /v1/me/routes/{routeId}/export - download the route document.
func (h *SavedRouteHandler) ExportRoute(w http.ResponseWriter, r *http.Request) {
	export, err := h.service.Export(r.Context(), GetUserID(r.Context()), chi.URLParam(r, "routeId"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	response.Attachment(w, r, export.Filename, export.Data)
}

// unreadable reports a stored document that no longer rebuilds.
func (h *SavedRouteHandler) unreadable(w http.ResponseWriter, r *http.Request, sr *savedroute.SavedRoute, err error) {
	h.logger.Error().Err(err).Str("route_id", sr.ID).Msg("saved route is unreadable")
	response.InternalError(w, r, "saved route could not be read")
}

func toSavedRoute(sr *savedroute.SavedRoute) (models.SavedRoute, error) {
	rt, err := sr.Document.Route()
	if err != nil {
		return models.SavedRoute{}, err
	}
	return models.SavedRoute{
		SavedRouteSummary: toSavedRouteSummary(sr),
		Route:             toRoute(rt),
	}, nil
}
