package routing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/internal/route"
)

const tracerName = "github.com/driveless/driveless/internal/routing"

// DefaultMaxStops matches the waypoint limit of the Directions API.
const DefaultMaxStops = 25

// TrafficPolicy decides what happens when a traffic lookup for one leg fails.
type TrafficPolicy string

const (
	// TrafficPolicyLenient keeps the free-flow duration for the failed leg
	// and marks the plan as degraded.
	TrafficPolicyLenient TrafficPolicy = "lenient"
	// TrafficPolicyStrict fails the whole optimization.
	TrafficPolicyStrict TrafficPolicy = "strict"
)

// EngineConfig holds configuration for the Engine.
type EngineConfig struct {
	// Provider computes directions (required).
	Provider Provider

	Logger zerolog.Logger

	// MaxStops bounds the number of intermediate stops (default: 25).
	MaxStops int

	// TrafficPolicy defaults to TrafficPolicyLenient.
	TrafficPolicy TrafficPolicy

	// TrafficModel defaults to best_guess.
	TrafficModel TrafficModel

	// TrafficConcurrency bounds in-flight traffic lookups (default: 4).
	TrafficConcurrency int

	// Clock returns the departure time for traffic lookups (default: time.Now).
	Clock func() time.Time
}

// Engine orders stops and computes the legs of the resulting route.
type Engine struct {
	provider           Provider
	logger             zerolog.Logger
	maxStops           int
	trafficPolicy      TrafficPolicy
	trafficModel       TrafficModel
	trafficConcurrency int
	now                func() time.Time
	tracer             trace.Tracer
}

// NewEngine creates a new Engine.
func NewEngine(cfg EngineConfig) *Engine {
	maxStops := cfg.MaxStops
	if maxStops <= 0 {
		maxStops = DefaultMaxStops
	}

	policy := cfg.TrafficPolicy
	if policy == "" {
		policy = TrafficPolicyLenient
	}

	model := cfg.TrafficModel
	if model == "" {
		model = TrafficBestGuess
	}

	concurrency := cfg.TrafficConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Engine{
		provider:           cfg.Provider,
		logger:             cfg.Logger,
		maxStops:           maxStops,
		trafficPolicy:      policy,
		trafficModel:       model,
		trafficConcurrency: concurrency,
		now:                clock,
		tracer:             otel.Tracer(tracerName),
	}
}

// MaxStops returns the configured stop limit.
func (e *Engine) MaxStops() int {
	return e.maxStops
}

// ProviderName returns the name of the underlying provider.
func (e *Engine) ProviderName() string {
	return e.provider.Name()
}

// Optimize finds the visiting order of stops between the fixed start and end
// and returns the legs in that order. With considerTraffic each leg is
// re-timed with a departure of now.
func (e *Engine) Optimize(ctx context.Context, start, end geocoding.Location, stops []geocoding.Location, considerTraffic bool) (*Plan, error) {
	plan, err := e.Order(ctx, start, end, stops)
	if err != nil {
		return nil, err
	}
	if !considerTraffic {
		return plan, nil
	}
	if err := e.RefineTraffic(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// Order runs the ordering pass only. Stop count limits are checked before
// the provider is called.
func (e *Engine) Order(ctx context.Context, start, end geocoding.Location, stops []geocoding.Location) (*Plan, error) {
	if len(stops) == 0 {
		return nil, ErrNoStops
	}
	if len(stops) > e.maxStops {
		return nil, fmt.Errorf("%w: %d stops, at most %d allowed", ErrTooManyStops, len(stops), e.maxStops)
	}

	order, legs, err := e.order(ctx, start, end, stops)
	if err != nil {
		return nil, err
	}
	return &Plan{Order: order, Legs: legs}, nil
}

// RefineTraffic runs the traffic pass over plan's legs and marks the plan
// as traffic-considered. The stop order is not changed.
func (e *Engine) RefineTraffic(ctx context.Context, plan *Plan) error {
	degraded, err := e.refineTraffic(ctx, plan.Legs)
	if err != nil {
		return err
	}
	plan.TrafficConsidered = true
	plan.TrafficDegraded = degraded
	return nil
}

// order runs the ordering pass: one optimizing request with free-flow timing.
func (e *Engine) order(ctx context.Context, start, end geocoding.Location, stops []geocoding.Location) ([]int, []route.Leg, error) {
	ctx, span := e.tracer.Start(ctx, "routing.order",
		trace.WithAttributes(
			attribute.String("provider", e.provider.Name()),
			attribute.Int("stops", len(stops)),
		))
	defer span.End()

	e.logger.Debug().
		Str("provider", e.provider.Name()).
		Int("stops", len(stops)).
		Msg("requesting optimized waypoint order")

	resp, err := e.provider.Directions(ctx, DirectionsRequest{
		Origin:            start,
		Destination:       end,
		Waypoints:         stops,
		OptimizeWaypoints: true,
		Mode:              ModeDriving,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "directions failed")
		return nil, nil, e.wrapProviderError(err)
	}

	if err := validateResponse(resp, len(stops)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid directions response")
		return nil, nil, &RouteCalculationError{
			Provider: e.provider.Name(),
			Status:   "INVALID_RESPONSE",
			Message:  err.Error(),
			Err:      ErrProviderUnavailable,
		}
	}

	seq := make([]geocoding.Location, 0, len(stops)+2)
	seq = append(seq, start)
	for _, idx := range resp.WaypointOrder {
		seq = append(seq, stops[idx])
	}
	seq = append(seq, end)

	legs := make([]route.Leg, len(resp.Legs))
	for i, pl := range resp.Legs {
		legs[i] = route.Leg{
			From:            seq[i],
			To:              seq[i+1],
			DistanceMeters:  float64(pl.DistanceMeters),
			DurationSeconds: pl.DurationSeconds,
			Path:            pl.Path,
		}
	}

	order := append([]int(nil), resp.WaypointOrder...)
	return order, legs, nil
}

// validateResponse checks that order is a permutation of 0..n-1 and that
// there is one leg per consecutive pair of start, stops and end.
func validateResponse(resp *DirectionsResponse, n int) error {
	if resp == nil {
		return errors.New("empty response")
	}
	if len(resp.WaypointOrder) != n {
		return fmt.Errorf("waypoint order has %d entries, expected %d", len(resp.WaypointOrder), n)
	}
	seen := make([]bool, n)
	for _, idx := range resp.WaypointOrder {
		if idx < 0 || idx >= n || seen[idx] {
			return fmt.Errorf("waypoint order %v is not a permutation", resp.WaypointOrder)
		}
		seen[idx] = true
	}
	if len(resp.Legs) != n+1 {
		return fmt.Errorf("response has %d legs, expected %d", len(resp.Legs), n+1)
	}
	return nil
}

// refineTraffic fills DurationInTrafficSeconds on each leg in place. It
// reports whether any leg fell back to its free-flow duration.
func (e *Engine) refineTraffic(ctx context.Context, legs []route.Leg) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "routing.traffic",
		trace.WithAttributes(
			attribute.Int("legs", len(legs)),
			attribute.String("policy", string(e.trafficPolicy)),
		))
	defer span.End()

	departure := e.now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.trafficConcurrency)

	var mu sync.Mutex
	degraded := false

	for i := range legs {
		g.Go(func() error {
			seconds, err := e.legTraffic(gctx, legs[i], departure)
			if err != nil {
				if e.trafficPolicy == TrafficPolicyStrict {
					return &TrafficRefinementError{LegIndex: i, Err: e.wrapProviderError(err)}
				}
				e.logger.Warn().Err(err).
					Int("leg", i).
					Str("provider", e.provider.Name()).
					Msg("traffic lookup failed, keeping free-flow duration")
				mu.Lock()
				degraded = true
				mu.Unlock()
				return nil
			}

			// each goroutine writes only its own leg
			legs[i].DurationInTrafficSeconds = &seconds
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "traffic refinement failed")
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}

	span.SetAttributes(attribute.Bool("degraded", degraded))
	return degraded, nil
}

// legTraffic asks the provider for a single-leg route departing now. A
// provider without a traffic model yields its re-timed free-flow duration.
func (e *Engine) legTraffic(ctx context.Context, leg route.Leg, departure time.Time) (int, error) {
	resp, err := e.provider.Directions(ctx, DirectionsRequest{
		Origin:        leg.From,
		Destination:   leg.To,
		Mode:          ModeDriving,
		DepartureTime: &departure,
		TrafficModel:  e.trafficModel,
	})
	if err != nil {
		return 0, err
	}
	if resp == nil || len(resp.Legs) == 0 {
		return 0, errors.New("traffic response has no legs")
	}

	pl := resp.Legs[0]
	if pl.DurationInTrafficSeconds != nil {
		return *pl.DurationInTrafficSeconds, nil
	}
	return pl.DurationSeconds, nil
}

// wrapProviderError makes sure provider failures surface as RouteCalculationError.
func (e *Engine) wrapProviderError(err error) error {
	var rce *RouteCalculationError
	if errors.As(err, &rce) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &RouteCalculationError{
		Provider: e.provider.Name(),
		Status:   "PROVIDER_ERROR",
		Message:  "directions request failed",
		Err:      fmt.Errorf("%w: %w", ErrProviderUnavailable, err),
	}
}
