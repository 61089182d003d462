// Package routing orders stops through a directions provider and refines
// leg durations with live traffic.
package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/internal/route"
)

// Sentinel errors for routing operations.
var (
	// ErrProviderUnavailable indicates the routing provider is down or the circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no drivable route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidRequest indicates the provider rejected the request.
	ErrInvalidRequest = errors.New("invalid routing request")
	// ErrNoStops is returned when a route has no intermediate stops.
	ErrNoStops = errors.New("at least one stop is required")
	// ErrTooManyStops is returned when a route has more stops than allowed.
	ErrTooManyStops = errors.New("too many stops")
)

// Provider computes driving directions.
type Provider interface {
	Directions(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	Name() string
}

// TravelMode is the provider travel mode.
type TravelMode string

const (
	ModeDriving TravelMode = "driving"
)

// TrafficModel selects how a provider predicts traffic.
type TrafficModel string

const (
	TrafficBestGuess   TrafficModel = "best_guess"
	TrafficPessimistic TrafficModel = "pessimistic"
	TrafficOptimistic  TrafficModel = "optimistic"
)

// DirectionsRequest asks a provider for a route through Waypoints.
type DirectionsRequest struct {
	Origin            geocoding.Location
	Destination       geocoding.Location
	Waypoints         []geocoding.Location
	OptimizeWaypoints bool
	Mode              TravelMode
	DepartureTime     *time.Time
	TrafficModel      TrafficModel
}

// DirectionsResponse is a provider route. WaypointOrder is the visiting
// order of the request waypoints when OptimizeWaypoints was set.
type DirectionsResponse struct {
	Legs             []ProviderLeg
	WaypointOrder    []int
	OverviewPolyline string
	Provider         string
	FetchedAt        time.Time
}

// ProviderLeg is one leg as reported by the provider.
type ProviderLeg struct {
	DistanceMeters           int
	DurationSeconds          int
	DurationInTrafficSeconds *int
	Start                    geocoding.Coordinate
	End                      geocoding.Coordinate
	Path                     []geocoding.Coordinate
}

// Plan is the outcome of Engine.Optimize: Order[i] is the index into the
// input stops visited i-th, Legs run start → stops in Order → end.
type Plan struct {
	Order             []int
	Legs              []route.Leg
	TrafficConsidered bool
	TrafficDegraded   bool
}

// RouteCalculationError is returned when the provider cannot produce a route.
type RouteCalculationError struct {
	Provider string
	Status   string
	Message  string
	Err      error
}

func (e *RouteCalculationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "route calculation failed"
	}
	if e.Status != "" {
		msg = e.Status + ": " + msg
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *RouteCalculationError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the failure is transient.
func (e *RouteCalculationError) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}

// TrafficRefinementError is returned under TrafficPolicyStrict when a leg's
// traffic duration cannot be fetched.
type TrafficRefinementError struct {
	LegIndex int
	Err      error
}

func (e *TrafficRefinementError) Error() string {
	return fmt.Sprintf("traffic refinement failed for leg %d: %v", e.LegIndex, e.Err)
}

func (e *TrafficRefinementError) Unwrap() error {
	return e.Err
}
