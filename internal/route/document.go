package route

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/pkg/polyline"
)

// DocumentVersion is written into every exported document.
const DocumentVersion = 1

// averageSpeedMetersPerSecond (30 mph) estimates legs missing from older exports.
const averageSpeedMetersPerSecond = 30 * MetersPerMile / 3600

// ErrInvalidDocument is returned when an imported document is malformed.
var ErrInvalidDocument = errors.New("invalid route document")

// Document is the portable export format of a route.
type Document struct {
	Version              int                `json:"version"`
	TotalDistance        string             `json:"totalDistance"`
	EstimatedTime        string             `json:"estimatedTime"`
	TotalDistanceMeters  float64            `json:"totalDistanceMeters"`
	TotalDurationSeconds int                `json:"totalDurationSeconds"`
	TrafficConsidered    bool               `json:"trafficConsidered"`
	TrafficDegraded      bool               `json:"trafficDegraded,omitempty"`
	Waypoints            []DocumentWaypoint `json:"waypoints"`
	Legs                 []DocumentLeg      `json:"legs,omitempty"`
}

// DocumentWaypoint is a waypoint in a Document.
type DocumentWaypoint struct {
	Address     string                `json:"address"`
	Type        WaypointType          `json:"type"`
	DisplayName string                `json:"displayName,omitempty"`
	Category    *Category             `json:"category"`
	Notes       string                `json:"notes"`
	Coords      *geocoding.Coordinate `json:"coords"`
	PlaceID     string                `json:"placeId,omitempty"`
}

// DocumentLeg is a leg in a Document.
type DocumentLeg struct {
	DistanceMeters           float64 `json:"distanceMeters"`
	DurationSeconds          int     `json:"durationSeconds"`
	DurationInTrafficSeconds *int    `json:"durationInTrafficSeconds,omitempty"`
	Polyline                 string  `json:"polyline,omitempty"`
}

// NewDocument converts r into its export form.
func NewDocument(r *Route) Document {
	totals := r.Totals()
	doc := Document{
		Version:              DocumentVersion,
		TotalDistance:        totals.FormattedDistance,
		EstimatedTime:        totals.FormattedDuration,
		TotalDistanceMeters:  r.TotalDistanceMeters,
		TotalDurationSeconds: r.TotalDurationSeconds,
		TrafficConsidered:    r.TrafficConsidered,
		TrafficDegraded:      r.TrafficDegraded,
		Waypoints:            make([]DocumentWaypoint, len(r.Waypoints)),
		Legs:                 make([]DocumentLeg, len(r.Legs)),
	}

	for i, wp := range r.Waypoints {
		coord := wp.Location.Coordinate
		doc.Waypoints[i] = DocumentWaypoint{
			Address:     address(wp),
			Type:        wp.Type,
			DisplayName: wp.DisplayName,
			Category:    wp.Category,
			Notes:       wp.Notes,
			Coords:      &coord,
			PlaceID:     wp.Location.PlaceID,
		}
	}

	for i, l := range r.Legs {
		dl := DocumentLeg{
			DistanceMeters:           l.DistanceMeters,
			DurationSeconds:          l.DurationSeconds,
			DurationInTrafficSeconds: l.DurationInTrafficSeconds,
		}
		if len(l.Path) > 0 {
			coords := make([]polyline.Coordinate, len(l.Path))
			for j, c := range l.Path {
				coords[j] = polyline.Coordinate{Lat: c.Lat, Lng: c.Lng}
			}
			dl.Polyline = polyline.Encode(coords)
		}
		doc.Legs[i] = dl
	}

	return doc
}

// ParseDocument decodes and validates an exported document.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate checks the fields an import cannot do without.
func (d *Document) Validate() error {
	if len(d.Waypoints) == 0 {
		return fmt.Errorf("%w: waypoints are required", ErrInvalidDocument)
	}
	if d.TotalDistance == "" {
		return fmt.Errorf("%w: totalDistance is required", ErrInvalidDocument)
	}
	if d.EstimatedTime == "" {
		return fmt.Errorf("%w: estimatedTime is required", ErrInvalidDocument)
	}
	for i, wp := range d.Waypoints {
		if wp.Coords == nil {
			return fmt.Errorf("%w: waypoint %d has no coordinates", ErrInvalidDocument, i)
		}
		if wp.Category != nil {
			if _, ok := LookupCategory(wp.Category.ID); !ok {
				return fmt.Errorf("%w: waypoint %d has unknown category %q", ErrInvalidDocument, i, wp.Category.ID)
			}
		}
	}
	if len(d.Legs) > 0 && len(d.Legs) != len(d.Waypoints)-1 {
		return fmt.Errorf("%w: %d waypoints need %d legs, got %d",
			ErrInvalidDocument, len(d.Waypoints), len(d.Waypoints)-1, len(d.Legs))
	}
	return nil
}

// Route rebuilds the route described by d through Build. Documents without
// legs get straight-line estimates at 30 mph.
func (d *Document) Route() (*Route, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	waypoints := make([]Waypoint, len(d.Waypoints))
	for i, dw := range d.Waypoints {
		loc := geocoding.Location{
			RawQuery:         dw.Address,
			FormattedAddress: dw.Address,
			Coordinate:       *dw.Coords,
			PlaceID:          dw.PlaceID,
		}
		var category *Category
		if dw.Category != nil {
			c, _ := LookupCategory(dw.Category.ID)
			category = &c
		}
		waypoints[i] = Waypoint{
			Location:    loc,
			Type:        dw.Type,
			DisplayName: geocoding.Sanitize(dw.DisplayName),
			Category:    category,
			Notes:       geocoding.Sanitize(dw.Notes),
		}
	}

	legs := make([]Leg, 0, len(waypoints)-1)
	for i := 0; i+1 < len(waypoints); i++ {
		from, to := waypoints[i].Location, waypoints[i+1].Location
		if len(d.Legs) == 0 {
			meters := polyline.Distance(
				polyline.Coordinate{Lat: from.Coordinate.Lat, Lng: from.Coordinate.Lng},
				polyline.Coordinate{Lat: to.Coordinate.Lat, Lng: to.Coordinate.Lng},
			)
			legs = append(legs, Leg{
				From:            from,
				To:              to,
				DistanceMeters:  meters,
				DurationSeconds: int(math.Round(meters / averageSpeedMetersPerSecond)),
			})
			continue
		}

		dl := d.Legs[i]
		leg := Leg{
			From:                     from,
			To:                       to,
			DistanceMeters:           dl.DistanceMeters,
			DurationSeconds:          dl.DurationSeconds,
			DurationInTrafficSeconds: dl.DurationInTrafficSeconds,
		}
		for _, c := range polyline.Decode(dl.Polyline) {
			leg.Path = append(leg.Path, geocoding.Coordinate{Lat: c.Lat, Lng: c.Lng})
		}
		legs = append(legs, leg)
	}

	r, err := Build(waypoints, legs, d.TrafficConsidered)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return r.WithTrafficDegraded(d.TrafficDegraded), nil
}
