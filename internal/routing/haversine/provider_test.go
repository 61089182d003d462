package haversine_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/internal/routing"
	"github.com/driveless/driveless/internal/routing/haversine"
)

func at(lat, lng float64) geocoding.Location {
	return geocoding.Location{Coordinate: geocoding.Coordinate{Lat: lat, Lng: lng}}
}

func TestDistanceMiles(t *testing.T) {
	tests := []struct {
		name string
		a, b geocoding.Coordinate
		want float64
		tol  float64
	}{
		{"same point", geocoding.Coordinate{Lat: 30.27, Lng: -97.74}, geocoding.Coordinate{Lat: 30.27, Lng: -97.74}, 0, 1e-9},
		{"one degree of latitude", geocoding.Coordinate{Lat: 0, Lng: 0}, geocoding.Coordinate{Lat: 1, Lng: 0}, 69.09, 0.01},
		{"Austin to Dallas", geocoding.Coordinate{Lat: 30.2672, Lng: -97.7431}, geocoding.Coordinate{Lat: 32.7767, Lng: -96.7970}, 182, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, haversine.DistanceMiles(tt.a, tt.b), tt.tol)
		})
	}
}

func TestProvider_LegEstimates(t *testing.T) {
	p := haversine.New(haversine.Config{Logger: zerolog.Nop()})

	resp, err := p.Directions(context.Background(), routing.DirectionsRequest{
		Origin:      at(0, 0),
		Destination: at(1, 0),
	})
	require.NoError(t, err)
	require.Len(t, resp.Legs, 1)

	leg := resp.Legs[0]
	// 69.09 miles at 30 mph
	assert.InDelta(t, 111190, leg.DistanceMeters, 20)
	assert.InDelta(t, 8291, leg.DurationSeconds, 5)
	assert.Nil(t, leg.DurationInTrafficSeconds)
	assert.Len(t, leg.Path, 2)
	assert.Equal(t, haversine.ProviderName, resp.Provider)
}

func TestProvider_OptimizeOrdersAlongTheLine(t *testing.T) {
	p := haversine.New(haversine.Config{Logger: zerolog.Nop()})

	// stops on a line east of the origin, given out of order
	stops := []geocoding.Location{at(0, 3), at(0, 1), at(0, 4), at(0, 2)}

	resp, err := p.Directions(context.Background(), routing.DirectionsRequest{
		Origin:            at(0, 0),
		Destination:       at(0, 5),
		Waypoints:         stops,
		OptimizeWaypoints: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 3, 0, 2}, resp.WaypointOrder)
	require.Len(t, resp.Legs, 5)
	for _, leg := range resp.Legs {
		assert.InDelta(t, 111195, leg.DistanceMeters, 300)
	}
}

func TestProvider_TwoOptFixesNearestNeighbourDetour(t *testing.T) {
	p := haversine.New(haversine.Config{Logger: zerolog.Nop()})

	// nearest neighbour goes 0 → 1 → 3 → -1.5 and doubles back; 2-opt
	// must turn it into 0 → -1.5 → 1 → 3
	stops := []geocoding.Location{at(0, 1), at(0, -1.5), at(0, 3)}

	resp, err := p.Directions(context.Background(), routing.DirectionsRequest{
		Origin:            at(0, 0),
		Destination:       at(0, 10),
		Waypoints:         stops,
		OptimizeWaypoints: true,
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1, 0, 2}, resp.WaypointOrder)

	total := 0
	for _, leg := range resp.Legs {
		total += leg.DistanceMeters
	}
	assert.InDelta(t, 13*111195, total, 500)
}

func TestProvider_Deterministic(t *testing.T) {
	p := haversine.New(haversine.Config{Logger: zerolog.Nop()})
	req := routing.DirectionsRequest{
		Origin:            at(30.2747, -97.7404),
		Destination:       at(30.1975, -97.6664),
		Waypoints:         []geocoding.Location{at(30.2707, -97.7531), at(30.2669, -97.7729), at(30.3072, -97.7560), at(30.2500, -97.7500)},
		OptimizeWaypoints: true,
	}

	first, err := p.Directions(context.Background(), req)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := p.Directions(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, first.WaypointOrder, again.WaypointOrder)
	}
}

func TestProvider_UnoptimizedKeepsOrder(t *testing.T) {
	p := haversine.New(haversine.Config{Logger: zerolog.Nop()})

	resp, err := p.Directions(context.Background(), routing.DirectionsRequest{
		Origin:      at(0, 0),
		Destination: at(0, 5),
		Waypoints:   []geocoding.Location{at(0, 3), at(0, 1)},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, resp.WaypointOrder)
}

func TestProvider_MissingCoordinates(t *testing.T) {
	p := haversine.New(haversine.Config{Logger: zerolog.Nop()})

	_, err := p.Directions(context.Background(), routing.DirectionsRequest{
		Origin:      at(0, 0),
		Destination: geocoding.Location{FormattedAddress: "somewhere"},
	})
	assert.ErrorIs(t, err, routing.ErrInvalidRequest)
}

func TestProvider_WorksWithEngine(t *testing.T) {
	engine := routing.NewEngine(routing.EngineConfig{
		Provider: haversine.New(haversine.Config{Logger: zerolog.Nop()}),
		Logger:   zerolog.Nop(),
	})

	plan, err := engine.Optimize(context.Background(), at(0, 0), at(0, 5),
		[]geocoding.Location{at(0, 4), at(0, 2)}, true)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 0}, plan.Order)
	assert.True(t, plan.TrafficConsidered)
	assert.False(t, plan.TrafficDegraded)
	for _, leg := range plan.Legs {
		require.NotNil(t, leg.DurationInTrafficSeconds)
		assert.Equal(t, leg.DurationSeconds, *leg.DurationInTrafficSeconds)
	}
}
