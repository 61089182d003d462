// Package haversine is an offline routing provider that estimates legs as
// great-circle distances driven at a constant average speed.
package haversine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/internal/routing"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "haversine"

	// EarthRadiusMiles is the mean Earth radius used for distances.
	EarthRadiusMiles = 3958.8

	// DefaultSpeedMPH is the assumed average driving speed.
	DefaultSpeedMPH = 30.0

	metersPerMile = 1609.34
)

// Config holds configuration for the Provider.
type Config struct {
	// SpeedMPH defaults to DefaultSpeedMPH.
	SpeedMPH float64

	Logger zerolog.Logger

	Clock func() time.Time
}

// Provider implements routing.Provider without any network calls. It has no
// traffic model, so traffic requests get free-flow durations.
type Provider struct {
	speedMPH float64
	logger   zerolog.Logger
	now      func() time.Time
}

// New creates a new Provider.
func New(cfg Config) *Provider {
	speed := cfg.SpeedMPH
	if speed <= 0 {
		speed = DefaultSpeedMPH
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Provider{speedMPH: speed, logger: cfg.Logger, now: clock}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return ProviderName
}

// Directions returns straight-line legs. With OptimizeWaypoints the stops are
// ordered by nearest neighbour from the origin and then improved with 2-opt;
// origin and destination stay fixed.
func (p *Provider) Directions(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	points := make([]geocoding.Location, 0, len(req.Waypoints)+2)
	points = append(points, req.Origin)
	points = append(points, req.Waypoints...)
	points = append(points, req.Destination)
	for i, loc := range points {
		if loc.Coordinate == (geocoding.Coordinate{}) {
			return nil, &routing.RouteCalculationError{
				Provider: ProviderName,
				Status:   "INVALID_REQUEST",
				Message:  fmt.Sprintf("location %d has no coordinates", i),
				Err:      routing.ErrInvalidRequest,
			}
		}
	}

	order := make([]int, len(req.Waypoints))
	for i := range order {
		order[i] = i
	}
	if req.OptimizeWaypoints && len(order) > 1 {
		order = p.optimize(req.Origin.Coordinate, req.Destination.Coordinate, req.Waypoints)
	}

	seq := make([]geocoding.Coordinate, 0, len(points))
	seq = append(seq, req.Origin.Coordinate)
	for _, idx := range order {
		seq = append(seq, req.Waypoints[idx].Coordinate)
	}
	seq = append(seq, req.Destination.Coordinate)

	legs := make([]routing.ProviderLeg, len(seq)-1)
	for i := range legs {
		miles := DistanceMiles(seq[i], seq[i+1])
		legs[i] = routing.ProviderLeg{
			DistanceMeters:  int(math.Round(miles * metersPerMile)),
			DurationSeconds: int(math.Round(miles / p.speedMPH * 3600)),
			Start:           seq[i],
			End:             seq[i+1],
			Path:            []geocoding.Coordinate{seq[i], seq[i+1]},
		}
	}

	p.logger.Debug().
		Int("waypoints", len(req.Waypoints)).
		Ints("waypoint_order", order).
		Msg("computed straight-line route")

	return &routing.DirectionsResponse{
		Legs:          legs,
		WaypointOrder: order,
		Provider:      ProviderName,
		FetchedAt:     p.now(),
	}, nil
}

// optimize returns a visiting order of stops. Ties are broken by the lower
// stop index so the result depends only on the input.
func (p *Provider) optimize(origin, destination geocoding.Coordinate, stops []geocoding.Location) []int {
	n := len(stops)
	visited := make([]bool, n)
	order := make([]int, 0, n)

	cur := origin
	for len(order) < n {
		best := -1
		bestDist := math.Inf(1)
		for i, s := range stops {
			if visited[i] {
				continue
			}
			if d := DistanceMiles(cur, s.Coordinate); d < bestDist {
				best, bestDist = i, d
			}
		}
		visited[best] = true
		order = append(order, best)
		cur = stops[best].Coordinate
	}

	// 2-opt over the full path with the endpoints pinned
	path := make([]geocoding.Coordinate, 0, n+2)
	path = append(path, origin)
	for _, idx := range order {
		path = append(path, stops[idx].Coordinate)
	}
	path = append(path, destination)

	const epsilon = 1e-9
	for improved := true; improved; {
		improved = false
		for i := 1; i < len(path)-2; i++ {
			for j := i + 1; j < len(path)-1; j++ {
				before := DistanceMiles(path[i-1], path[i]) + DistanceMiles(path[j], path[j+1])
				after := DistanceMiles(path[i-1], path[j]) + DistanceMiles(path[i], path[j+1])
				if after < before-epsilon {
					reverse(path[i:j+1], order[i-1:j])
					improved = true
				}
			}
		}
	}

	return order
}

func reverse(path []geocoding.Coordinate, order []int) {
	for l, r := 0, len(path)-1; l < r; l, r = l+1, r-1 {
		path[l], path[r] = path[r], path[l]
		order[l], order[r] = order[r], order[l]
	}
}

// DistanceMiles returns the great-circle distance between a and b.
func DistanceMiles(a, b geocoding.Coordinate) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return EarthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
