// Package route holds the optimized route model: ordered waypoints, the legs
// between them and their totals, plus the presentation helpers built on it.
package route

import (
	"errors"
	"fmt"

	"github.com/driveless/driveless/internal/geocoding"
)

// ErrInvalidRoute is returned when waypoints and legs do not form a valid route.
var ErrInvalidRoute = errors.New("invalid route")

// WaypointType is the role of a waypoint within a route.
type WaypointType string

const (
	WaypointStart WaypointType = "start"
	WaypointStop  WaypointType = "stop"
	WaypointEnd   WaypointType = "end"
)

// DefaultLabel returns the label shown for a waypoint without a display name.
func DefaultLabel(t WaypointType) string {
	switch t {
	case WaypointStart:
		return "START"
	case WaypointEnd:
		return "END"
	default:
		return "STOP"
	}
}

// Leg is the drive between two consecutive waypoints.
type Leg struct {
	From                     geocoding.Location     `json:"from"`
	To                       geocoding.Location     `json:"to"`
	DistanceMeters           float64                `json:"distanceMeters"`
	DurationSeconds          int                    `json:"durationSeconds"`
	DurationInTrafficSeconds *int                   `json:"durationInTrafficSeconds,omitempty"`
	Path                     []geocoding.Coordinate `json:"path,omitempty"`
}

// EffectiveDurationSeconds returns the traffic duration when traffic was
// considered and is known for this leg, and the free-flow duration otherwise.
func (l Leg) EffectiveDurationSeconds(trafficConsidered bool) int {
	if trafficConsidered && l.DurationInTrafficSeconds != nil {
		return *l.DurationInTrafficSeconds
	}
	return l.DurationSeconds
}

// Waypoint is one point of the route in visiting order.
type Waypoint struct {
	Location    geocoding.Location `json:"location"`
	Type        WaypointType       `json:"type"`
	DisplayName string             `json:"displayName"`
	Category    *Category          `json:"category,omitempty"`
	Notes       string             `json:"notes,omitempty"`
}

// Route is an optimized, fully resolved route. Values returned by Build are
// not modified afterwards.
type Route struct {
	Waypoints            []Waypoint `json:"waypoints"`
	Legs                 []Leg      `json:"legs"`
	TotalDistanceMeters  float64    `json:"totalDistanceMeters"`
	TotalDurationSeconds int        `json:"totalDurationSeconds"`
	TrafficConsidered    bool       `json:"trafficConsidered"`
	TrafficDegraded      bool       `json:"trafficDegraded,omitempty"`
}

// Build assembles a Route. The first waypoint must be the start, the last the
// end, every other one a stop, and there must be exactly one leg per
// consecutive pair. Totals are exact sums of the legs.
func Build(waypoints []Waypoint, legs []Leg, trafficConsidered bool) (*Route, error) {
	if len(waypoints) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 waypoints, got %d", ErrInvalidRoute, len(waypoints))
	}
	if len(legs) != len(waypoints)-1 {
		return nil, fmt.Errorf("%w: %d waypoints need %d legs, got %d",
			ErrInvalidRoute, len(waypoints), len(waypoints)-1, len(legs))
	}

	last := len(waypoints) - 1
	wps := make([]Waypoint, len(waypoints))
	for i, wp := range waypoints {
		want := WaypointStop
		switch i {
		case 0:
			want = WaypointStart
		case last:
			want = WaypointEnd
		}
		if wp.Type != want {
			return nil, fmt.Errorf("%w: waypoint %d is %q, expected %q", ErrInvalidRoute, i, wp.Type, want)
		}

		if wp.DisplayName == "" {
			wp.DisplayName = wp.Location.DisplayName
		}
		if wp.DisplayName == "" {
			wp.DisplayName = DefaultLabel(wp.Type)
		}
		if wp.Category != nil {
			c := *wp.Category
			wp.Category = &c
		}
		wps[i] = wp
	}

	ls := make([]Leg, len(legs))
	for i, l := range legs {
		if l.DistanceMeters < 0 || l.DurationSeconds < 0 {
			return nil, fmt.Errorf("%w: leg %d has negative distance or duration", ErrInvalidRoute, i)
		}
		if l.DurationInTrafficSeconds != nil {
			d := *l.DurationInTrafficSeconds
			if d < 0 {
				return nil, fmt.Errorf("%w: leg %d has negative traffic duration", ErrInvalidRoute, i)
			}
			l.DurationInTrafficSeconds = &d
		}
		if l.Path != nil {
			l.Path = append([]geocoding.Coordinate(nil), l.Path...)
		}
		ls[i] = l
	}

	totals := Aggregate(ls, trafficConsidered)

	return &Route{
		Waypoints:            wps,
		Legs:                 ls,
		TotalDistanceMeters:  totals.TotalDistanceMeters,
		TotalDurationSeconds: totals.TotalDurationSeconds,
		TrafficConsidered:    trafficConsidered,
	}, nil
}

// WithTrafficDegraded returns a copy of r flagged as having fallen back to
// free-flow durations for at least one leg.
func (r Route) WithTrafficDegraded(degraded bool) *Route {
	r.TrafficDegraded = degraded
	return &r
}

// Stops returns the intermediate waypoints in visiting order.
func (r *Route) Stops() []Waypoint {
	if len(r.Waypoints) < 2 {
		return nil
	}
	return r.Waypoints[1 : len(r.Waypoints)-1]
}

// Totals returns the aggregated and formatted totals of r.
func (r *Route) Totals() Totals {
	return Aggregate(r.Legs, r.TrafficConsidered)
}
