package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/driveless/driveless/internal/api/models"
	"github.com/driveless/driveless/internal/api/response"
	"github.com/driveless/driveless/internal/geocoding"
)

// maxQueryLength bounds the address accepted by the geocode endpoint.
const maxQueryLength = 500

// Geocoder resolves a free-text address.
type Geocoder interface {
	Resolve(ctx context.Context, query string) (*geocoding.Location, error)
}

// GeocodeHandler handles address lookups.
type GeocodeHandler struct {
	geocoder Geocoder
	logger   zerolog.Logger
}

// NewGeocodeHandler creates a new GeocodeHandler.
func NewGeocodeHandler(geocoder Geocoder, logger zerolog.Logger) *GeocodeHandler {
	return &GeocodeHandler{geocoder: geocoder, logger: logger}
}

// Geocode handles GET /v1/geocode?q= - resolve one address.
func (h *GeocodeHandler) Geocode(w http.ResponseWriter, r *http.Request) {
	q := geocoding.Sanitize(r.URL.Query().Get("q"))
	if q == "" {
		response.BadRequest(w, r, "q is required", []models.FieldError{
			{Field: "q", Message: "is required"},
		})
		return
	}
	if len([]rune(q)) > maxQueryLength {
		response.BadRequest(w, r, "q is too long", []models.FieldError{
			{Field: "q", Message: fmt.Sprintf("must be at most %d characters", maxQueryLength)},
		})
		return
	}

	loc, err := h.geocoder.Resolve(r.Context(), q)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.JSON(w, r, http.StatusOK, models.GeocodeResponse{
		Query:            q,
		FormattedAddress: loc.FormattedAddress,
		DisplayName:      loc.DisplayName,
		PlaceID:          loc.PlaceID,
		Point:            models.Point{Lat: loc.Coordinate.Lat, Lng: loc.Coordinate.Lng},
	})
}
