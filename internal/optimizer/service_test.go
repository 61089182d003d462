package optimizer_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/internal/optimizer"
	"github.com/driveless/driveless/internal/route"
	"github.com/driveless/driveless/internal/routing"
	"github.com/driveless/driveless/internal/routing/haversine"
)

// fakeGeocoder places every known query on the equator at the given longitude.
type fakeGeocoder struct {
	places map[string]float64
	failOn string
	calls  atomic.Int32

	mu      sync.Mutex
	queries []string
}

func (f *fakeGeocoder) Resolve(_ context.Context, query string) (*geocoding.Location, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()

	lng, ok := f.places[query]
	if !ok || query == f.failOn {
		return nil, &geocoding.UnresolvedLocationError{Query: query, Status: "ZERO_RESULTS", Err: geocoding.ErrNoResults}
	}
	return &geocoding.Location{
		RawQuery:         query,
		FormattedAddress: query + ", Austin, TX",
		Coordinate:       geocoding.Coordinate{Lat: 0, Lng: lng},
		DisplayName:      strings.ToUpper(query),
	}, nil
}

// countingRouter wraps a Router and counts calls.
type countingRouter struct {
	optimizer.Router
	orders     atomic.Int32
	refines    atomic.Int32
	orderErr   error
	refineErr  error
	maxStops   int
	degradeAll bool
}

func (c *countingRouter) Order(ctx context.Context, start, end geocoding.Location, stops []geocoding.Location) (*routing.Plan, error) {
	c.orders.Add(1)
	if c.orderErr != nil {
		return nil, c.orderErr
	}
	return c.Router.Order(ctx, start, end, stops)
}

func (c *countingRouter) RefineTraffic(ctx context.Context, plan *routing.Plan) error {
	c.refines.Add(1)
	if c.refineErr != nil {
		return c.refineErr
	}
	if err := c.Router.RefineTraffic(ctx, plan); err != nil {
		return err
	}
	if c.degradeAll {
		plan.TrafficDegraded = true
	}
	return nil
}

func (c *countingRouter) MaxStops() int {
	if c.maxStops > 0 {
		return c.maxStops
	}
	return c.Router.MaxStops()
}

func newRouter() *countingRouter {
	engine := routing.NewEngine(routing.EngineConfig{
		Provider: haversine.New(haversine.Config{Logger: zerolog.Nop()}),
		Logger:   zerolog.Nop(),
	})
	return &countingRouter{Router: engine}
}

func places() map[string]float64 {
	return map[string]float64{
		"depot":     0,
		"warehouse": 10,
		"alpha":     1,
		"bravo":     2,
		"charlie":   3,
		"delta":     4,
	}
}

type transitionLog struct {
	mu    sync.Mutex
	steps []string
}

func (l *transitionLog) observe(_ string, from, to optimizer.State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.steps = append(l.steps, string(from)+"->"+string(to))
}

func newService(g optimizer.Geocoder, r optimizer.Router, log *transitionLog) *optimizer.Service {
	cfg := optimizer.Config{Geocoder: g, Router: r, Logger: zerolog.Nop()}
	if log != nil {
		cfg.OnTransition = log.observe
	}
	return optimizer.NewService(cfg)
}

func TestService_Optimize(t *testing.T) {
	geocoder := &fakeGeocoder{places: places()}
	log := &transitionLog{}
	svc := newService(geocoder, newRouter(), log)

	r, err := svc.Optimize(context.Background(), optimizer.RouteRequest{
		Start: "depot",
		End:   "warehouse",
		Stops: []optimizer.StopInput{
			{Address: "charlie", Category: "delivery", Notes: "ring <b>twice</b>"},
			{Address: "alpha"},
			{Address: "bravo", Category: "Meeting"},
		},
	})
	require.NoError(t, err)

	require.Len(t, r.Waypoints, 5)
	assert.Equal(t, route.WaypointStart, r.Waypoints[0].Type)
	assert.Equal(t, "DEPOT", r.Waypoints[0].DisplayName)
	assert.Nil(t, r.Waypoints[0].Category)

	stops := r.Stops()
	require.Len(t, stops, 3)
	assert.Equal(t, "alpha", stops[0].Location.RawQuery)
	assert.Equal(t, "default", stops[0].Category.ID)
	assert.Equal(t, "bravo", stops[1].Location.RawQuery)
	assert.Equal(t, "meeting", stops[1].Category.ID)
	assert.Equal(t, "charlie", stops[2].Location.RawQuery)
	assert.Equal(t, "delivery", stops[2].Category.ID)
	assert.Equal(t, "ring twice", stops[2].Notes)

	assert.Equal(t, route.WaypointEnd, r.Waypoints[4].Type)
	assert.Equal(t, "warehouse", r.Waypoints[4].Location.RawQuery)

	require.Len(t, r.Legs, 4)
	assert.InDelta(t, 10*111195, r.TotalDistanceMeters, 500)
	assert.False(t, r.TrafficConsidered)

	assert.Equal(t, []string{
		"idle->resolving",
		"resolving->ordering",
		"ordering->aggregating",
		"aggregating->ready",
	}, log.steps)
}

func TestService_Optimize_WithTraffic(t *testing.T) {
	router := newRouter()
	log := &transitionLog{}
	svc := newService(&fakeGeocoder{places: places()}, router, log)

	r, err := svc.Optimize(context.Background(), optimizer.RouteRequest{
		Start:           "depot",
		End:             "warehouse",
		Stops:           []optimizer.StopInput{{Address: "bravo"}, {Address: "alpha"}},
		ConsiderTraffic: true,
	})
	require.NoError(t, err)

	assert.True(t, r.TrafficConsidered)
	assert.False(t, r.TrafficDegraded)
	for _, leg := range r.Legs {
		require.NotNil(t, leg.DurationInTrafficSeconds)
	}
	assert.Equal(t, int32(1), router.refines.Load())
	assert.Contains(t, log.steps, "ordering->traffic_refinement")
	assert.Contains(t, log.steps, "traffic_refinement->aggregating")
}

func TestService_Optimize_TrafficDegradedCarriedOver(t *testing.T) {
	router := newRouter()
	router.degradeAll = true
	svc := newService(&fakeGeocoder{places: places()}, router, nil)

	r, err := svc.Optimize(context.Background(), optimizer.RouteRequest{
		Start:           "depot",
		End:             "warehouse",
		Stops:           []optimizer.StopInput{{Address: "alpha"}},
		ConsiderTraffic: true,
	})
	require.NoError(t, err)
	assert.True(t, r.TrafficDegraded)
}

func TestService_Optimize_RoundTrip(t *testing.T) {
	geocoder := &fakeGeocoder{places: places()}
	svc := newService(geocoder, newRouter(), nil)

	r, err := svc.Optimize(context.Background(), optimizer.RouteRequest{
		Start:     "depot",
		End:       "ignored",
		Stops:     []optimizer.StopInput{{Address: "bravo"}, {Address: "alpha"}},
		RoundTrip: true,
	})
	require.NoError(t, err)

	first, last := r.Waypoints[0], r.Waypoints[len(r.Waypoints)-1]
	assert.Equal(t, first.Location, last.Location)
	assert.Equal(t, route.WaypointEnd, last.Type)
	assert.Equal(t, int32(3), geocoder.calls.Load())
	assert.NotContains(t, geocoder.queries, "ignored")
	assert.InDelta(t, 4*111195, r.TotalDistanceMeters, 500)
}

func TestService_Optimize_Validation(t *testing.T) {
	tests := []struct {
		name   string
		req    optimizer.RouteRequest
		fields []string
	}{
		{
			name:   "missing start and end",
			req:    optimizer.RouteRequest{Stops: []optimizer.StopInput{{Address: "alpha"}}},
			fields: []string{"start", "end"},
		},
		{
			name:   "no stops",
			req:    optimizer.RouteRequest{Start: "depot", End: "warehouse"},
			fields: []string{"stops"},
		},
		{
			name:   "too many stops",
			req:    optimizer.RouteRequest{Start: "depot", End: "warehouse", Stops: make([]optimizer.StopInput, 4)},
			fields: []string{"stops", "stops[0].address", "stops[1].address", "stops[2].address", "stops[3].address"},
		},
		{
			name: "stop address only markup",
			req: optimizer.RouteRequest{Start: "depot", End: "warehouse", Stops: []optimizer.StopInput{
				{Address: "<script></script>"},
			}},
			fields: []string{"stops[0].address"},
		},
		{
			name: "unknown category",
			req: optimizer.RouteRequest{Start: "depot", End: "warehouse", Stops: []optimizer.StopInput{
				{Address: "alpha", Category: "lunch"},
			}},
			fields: []string{"stops[0].category"},
		},
		{
			name: "notes too long",
			req: optimizer.RouteRequest{Start: "depot", End: "warehouse", Stops: []optimizer.StopInput{
				{Address: "alpha", Notes: strings.Repeat("x", optimizer.MaxNotesLength+1)},
			}},
			fields: []string{"stops[0].notes"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			geocoder := &fakeGeocoder{places: places()}
			router := newRouter()
			router.maxStops = 3
			svc := newService(geocoder, router, nil)

			_, err := svc.Optimize(context.Background(), tt.req)

			var verr *optimizer.ValidationError
			require.ErrorAs(t, err, &verr)
			got := make([]string, len(verr.Errors))
			for i, fe := range verr.Errors {
				got[i] = fe.Field
			}
			assert.Equal(t, tt.fields, got)
			assert.Equal(t, int32(0), geocoder.calls.Load())
			assert.Equal(t, int32(0), router.orders.Load())
		})
	}
}

func TestService_Optimize_UnresolvedStopFailsFast(t *testing.T) {
	geocoder := &fakeGeocoder{places: places(), failOn: "bravo"}
	router := newRouter()
	log := &transitionLog{}
	svc := newService(geocoder, router, log)

	r, err := svc.Optimize(context.Background(), optimizer.RouteRequest{
		Start: "depot",
		End:   "warehouse",
		Stops: []optimizer.StopInput{{Address: "alpha"}, {Address: "bravo"}, {Address: "charlie"}},
	})
	require.Error(t, err)
	assert.Nil(t, r)

	var unresolved *geocoding.UnresolvedLocationError
	require.ErrorAs(t, err, &unresolved)
	assert.Equal(t, "bravo", unresolved.Query)
	assert.Equal(t, int32(0), router.orders.Load())
	assert.Equal(t, []string{"idle->resolving", "resolving->failed"}, log.steps)
}

func TestService_Optimize_RoutingFailure(t *testing.T) {
	router := newRouter()
	router.orderErr = &routing.RouteCalculationError{Provider: "mock", Status: "ZERO_RESULTS", Err: routing.ErrNoRouteFound}
	log := &transitionLog{}
	svc := newService(&fakeGeocoder{places: places()}, router, log)

	_, err := svc.Optimize(context.Background(), optimizer.RouteRequest{
		Start:           "depot",
		End:             "warehouse",
		Stops:           []optimizer.StopInput{{Address: "alpha"}},
		ConsiderTraffic: true,
	})
	assert.ErrorIs(t, err, routing.ErrNoRouteFound)
	assert.Equal(t, int32(0), router.refines.Load())
	assert.Equal(t, "ordering->failed", log.steps[len(log.steps)-1])
}

func TestService_Optimize_TrafficFailure(t *testing.T) {
	router := newRouter()
	router.refineErr = &routing.TrafficRefinementError{LegIndex: 1, Err: errors.New("timeout")}
	log := &transitionLog{}
	svc := newService(&fakeGeocoder{places: places()}, router, log)

	_, err := svc.Optimize(context.Background(), optimizer.RouteRequest{
		Start:           "depot",
		End:             "warehouse",
		Stops:           []optimizer.StopInput{{Address: "alpha"}},
		ConsiderTraffic: true,
	})

	var tre *routing.TrafficRefinementError
	require.ErrorAs(t, err, &tre)
	assert.Equal(t, "traffic_refinement->failed", log.steps[len(log.steps)-1])
}

func TestService_Optimize_Deterministic(t *testing.T) {
	svc := newService(&fakeGeocoder{places: places()}, newRouter(), nil)
	req := optimizer.RouteRequest{
		Start: "depot",
		End:   "warehouse",
		Stops: []optimizer.StopInput{{Address: "delta"}, {Address: "bravo"}, {Address: "charlie"}, {Address: "alpha"}},
	}

	first, err := svc.Optimize(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.Optimize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.Waypoints, second.Waypoints)
	assert.Equal(t, first.TotalDistanceMeters, second.TotalDistanceMeters)
}
