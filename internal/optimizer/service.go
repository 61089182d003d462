package optimizer

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/internal/route"
	"github.com/driveless/driveless/internal/routing"
)

const tracerName = "github.com/driveless/driveless/internal/optimizer"

// Geocoder resolves a free-text address.
type Geocoder interface {
	Resolve(ctx context.Context, query string) (*geocoding.Location, error)
}

// Router orders stops and refines leg durations with traffic.
type Router interface {
	Order(ctx context.Context, start, end geocoding.Location, stops []geocoding.Location) (*routing.Plan, error)
	RefineTraffic(ctx context.Context, plan *routing.Plan) error
	MaxStops() int
}

// Config holds configuration for the Service.
type Config struct {
	Geocoder Geocoder
	Router   Router
	Logger   zerolog.Logger

	// OnTransition is called after every state change (optional).
	OnTransition TransitionObserver
}

// Service runs optimizations.
type Service struct {
	geocoder     Geocoder
	router       Router
	logger       zerolog.Logger
	onTransition TransitionObserver
	tracer       trace.Tracer
}

// NewService creates a new optimizer service.
func NewService(cfg Config) *Service {
	return &Service{
		geocoder:     cfg.Geocoder,
		router:       cfg.Router,
		logger:       cfg.Logger,
		onTransition: cfg.OnTransition,
		tracer:       otel.Tracer(tracerName),
	}
}

// Optimize validates req, resolves its addresses and returns the optimized
// route. No partial route is returned on failure.
func (s *Service) Optimize(ctx context.Context, req RouteRequest) (*route.Route, error) {
	req, err := s.normalize(req)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logger := s.logger.With().Str("run_id", runID).Logger()
	run := NewRun(runID, func(id string, from, to State) {
		logger.Debug().Str("from", string(from)).Str("to", string(to)).Msg("optimizer state changed")
		if s.onTransition != nil {
			s.onTransition(id, from, to)
		}
	})

	ctx, span := s.tracer.Start(ctx, "optimizer.optimize",
		trace.WithAttributes(
			attribute.String("run_id", runID),
			attribute.Int("stops", len(req.Stops)),
			attribute.Bool("traffic", req.ConsiderTraffic),
			attribute.Bool("round_trip", req.RoundTrip),
		))
	defer span.End()

	started := time.Now()
	r, err := s.run(ctx, run, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "optimization failed")
		logger.Info().Err(err).
			Str("state", string(run.State())).
			Dur("elapsed", time.Since(started)).
			Msg("route optimization failed")
		return nil, err
	}

	logger.Info().
		Int("stops", len(req.Stops)).
		Float64("distance_m", r.TotalDistanceMeters).
		Int("duration_s", r.TotalDurationSeconds).
		Bool("traffic_degraded", r.TrafficDegraded).
		Dur("elapsed", time.Since(started)).
		Msg("route optimized")
	return r, nil
}

func (s *Service) run(ctx context.Context, run *Run, req RouteRequest) (*route.Route, error) {
	if err := run.Transition(StateResolving); err != nil {
		return nil, err
	}
	start, end, stops, err := s.resolve(ctx, req)
	if err != nil {
		return nil, s.fail(run, err)
	}

	if err := run.Transition(StateOrdering); err != nil {
		return nil, err
	}
	plan, err := s.router.Order(ctx, *start, *end, stops)
	if err != nil {
		return nil, s.fail(run, err)
	}

	if req.ConsiderTraffic {
		if err := run.Transition(StateTrafficRefinement); err != nil {
			return nil, err
		}
		if err := s.router.RefineTraffic(ctx, plan); err != nil {
			return nil, s.fail(run, err)
		}
	}

	if err := run.Transition(StateAggregating); err != nil {
		return nil, err
	}
	r, err := s.aggregate(ctx, req, *start, *end, plan)
	if err != nil {
		return nil, err
	}

	if err := run.Transition(StateReady); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Service) fail(run *Run, cause error) error {
	if err := run.Transition(StateFailed); err != nil {
		return fmt.Errorf("%w (while handling: %w)", err, cause)
	}
	return cause
}

// resolve geocodes every address concurrently. The first failure cancels the
// remaining lookups.
func (s *Service) resolve(ctx context.Context, req RouteRequest) (*geocoding.Location, *geocoding.Location, []geocoding.Location, error) {
	ctx, span := s.tracer.Start(ctx, "optimizer.resolve")
	defer span.End()

	queries := make([]string, 0, len(req.Stops)+2)
	queries = append(queries, req.Start)
	for _, st := range req.Stops {
		queries = append(queries, st.Address)
	}
	if !req.RoundTrip {
		queries = append(queries, req.End)
	}
	span.SetAttributes(attribute.Int("queries", len(queries)))

	resolved := make([]*geocoding.Location, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			loc, err := s.geocoder.Resolve(gctx, q)
			if err != nil {
				return err
			}
			resolved[i] = loc
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resolve failed")
		return nil, nil, nil, err
	}

	start := resolved[0]
	end := start
	if !req.RoundTrip {
		end = resolved[len(resolved)-1]
	}

	stops := make([]geocoding.Location, len(req.Stops))
	for i := range req.Stops {
		stops[i] = *resolved[i+1]
	}
	return start, end, stops, nil
}

// aggregate attaches the caller's category and notes to each stop in visiting
// order and builds the route.
func (s *Service) aggregate(ctx context.Context, req RouteRequest, start, end geocoding.Location, plan *routing.Plan) (*route.Route, error) {
	_, span := s.tracer.Start(ctx, "optimizer.aggregate")
	defer span.End()

	waypoints := make([]route.Waypoint, 0, len(plan.Order)+2)
	waypoints = append(waypoints, route.Waypoint{Location: start, Type: route.WaypointStart})
	for _, idx := range plan.Order {
		in := req.Stops[idx]
		category, _ := route.LookupCategory(in.Category)
		waypoints = append(waypoints, route.Waypoint{
			Location: plan.Legs[len(waypoints)-1].To,
			Type:     route.WaypointStop,
			Category: &category,
			Notes:    in.Notes,
		})
	}
	waypoints = append(waypoints, route.Waypoint{Location: end, Type: route.WaypointEnd})

	r, err := route.Build(waypoints, plan.Legs, plan.TrafficConsidered)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return r.WithTrafficDegraded(plan.TrafficDegraded), nil
}

// normalize sanitises user text and validates the request.
func (s *Service) normalize(req RouteRequest) (RouteRequest, error) {
	errs := &ValidationError{}

	out := RouteRequest{
		Start:           geocoding.Sanitize(req.Start),
		End:             geocoding.Sanitize(req.End),
		Stops:           make([]StopInput, len(req.Stops)),
		ConsiderTraffic: req.ConsiderTraffic,
		RoundTrip:       req.RoundTrip,
	}
	if out.RoundTrip {
		out.End = ""
	}

	if out.Start == "" {
		errs.Add("start", "is required")
	}
	if out.End == "" && !out.RoundTrip {
		errs.Add("end", "is required unless roundTrip is set")
	}

	maxStops := s.router.MaxStops()
	switch {
	case len(req.Stops) == 0:
		errs.Add("stops", routing.ErrNoStops.Error())
	case len(req.Stops) > maxStops:
		errs.Add("stops", fmt.Sprintf("must contain at most %d stops", maxStops))
	}

	for i, st := range req.Stops {
		field := "stops[" + strconv.Itoa(i) + "]"
		in := StopInput{
			Address:  geocoding.Sanitize(st.Address),
			Category: st.Category,
			Notes:    geocoding.Sanitize(st.Notes),
		}
		if in.Address == "" {
			errs.Add(field+".address", "is required")
		}
		if _, ok := route.LookupCategory(in.Category); !ok {
			errs.Add(field+".category", fmt.Sprintf("unknown category %q", in.Category))
		}
		if len([]rune(in.Notes)) > MaxNotesLength {
			errs.Add(field+".notes", fmt.Sprintf("must be at most %d characters", MaxNotesLength))
		}
		out.Stops[i] = in
	}

	if errs.HasErrors() {
		return RouteRequest{}, errs
	}
	return out, nil
}
