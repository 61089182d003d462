package google_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/internal/routing"
	"github.com/driveless/driveless/internal/routing/google"
)

var (
	capitol    = geocoding.Location{FormattedAddress: "1100 Congress Ave, Austin, TX", PlaceID: "ChIJcapitol"}
	wholeFoods = geocoding.Location{FormattedAddress: "525 N Lamar Blvd, Austin, TX", Coordinate: geocoding.Coordinate{Lat: 30.2707, Lng: -97.7531}}
	zilker     = geocoding.Location{FormattedAddress: "2100 Barton Springs Rd, Austin, TX", PlaceID: "ChIJzilker"}
	airport    = geocoding.Location{RawQuery: "AUS airport"}
)

var fetchedAt = time.Date(2026, 5, 4, 8, 30, 0, 0, time.UTC)

func newTestClient(serverURL string, httpClient google.HTTPDoer) *google.Client {
	return google.NewClient(google.ClientConfig{
		APIKey:     "test-key",
		BaseURL:    serverURL,
		HTTPClient: httpClient,
		Logger:     zerolog.Nop(),
		Clock:      func() time.Time { return fetchedAt },
	})
}

func TestClient_Directions_Optimized(t *testing.T) {
	respBody, err := os.ReadFile("testdata/directions_response.json")
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/maps/api/directions/json", r.URL.Path)

		q := r.URL.Query()
		assert.Equal(t, "place_id:ChIJcapitol", q.Get("origin"))
		assert.Equal(t, "AUS airport", q.Get("destination"))
		assert.Equal(t, "optimize:true|30.270700,-97.753100|place_id:ChIJzilker", q.Get("waypoints"))
		assert.Equal(t, "driving", q.Get("mode"))
		assert.Equal(t, "test-key", q.Get("key"))
		assert.Empty(t, q.Get("departure_time"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(respBody)
	}))
	defer server.Close()

	client := newTestClient(server.URL, server.Client())

	resp, err := client.Directions(context.Background(), routing.DirectionsRequest{
		Origin:            capitol,
		Destination:       airport,
		Waypoints:         []geocoding.Location{wholeFoods, zilker},
		OptimizeWaypoints: true,
		Mode:              routing.ModeDriving,
	})
	require.NoError(t, err)

	assert.Equal(t, google.ProviderName, resp.Provider)
	assert.Equal(t, fetchedAt, resp.FetchedAt)
	assert.Equal(t, []int{1, 0}, resp.WaypointOrder)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", resp.OverviewPolyline)
	require.Len(t, resp.Legs, 3)

	first := resp.Legs[0]
	assert.Equal(t, 4023, first.DistanceMeters)
	assert.Equal(t, 540, first.DurationSeconds)
	require.NotNil(t, first.DurationInTrafficSeconds)
	assert.Equal(t, 720, *first.DurationInTrafficSeconds)
	assert.InDelta(t, 30.2747, first.Start.Lat, 1e-9)
	assert.InDelta(t, -97.7729, first.End.Lng, 1e-9)
	require.Len(t, first.Path, 2)
	assert.InDelta(t, 38.5, first.Path[0].Lat, 1e-9)
	assert.InDelta(t, -120.95, first.Path[1].Lng, 1e-9)

	assert.Nil(t, resp.Legs[1].DurationInTrafficSeconds)
	assert.Empty(t, resp.Legs[1].Path)
}

func TestClient_Directions_TrafficParams(t *testing.T) {
	departure := time.Unix(1777883400, 0)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "1777883400", q.Get("departure_time"))
		assert.Equal(t, "pessimistic", q.Get("traffic_model"))
		assert.Empty(t, q.Get("waypoints"))

		_, _ = w.Write([]byte(`{"status":"OK","routes":[{"legs":[{"distance":{"value":1000},"duration":{"value":100},"duration_in_traffic":{"value":160}}]}]}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL, server.Client()).Directions(context.Background(), routing.DirectionsRequest{
		Origin:        capitol,
		Destination:   zilker,
		DepartureTime: &departure,
		TrafficModel:  routing.TrafficPessimistic,
	})
	require.NoError(t, err)
	require.Len(t, resp.Legs, 1)
	assert.Equal(t, 160, *resp.Legs[0].DurationInTrafficSeconds)
	assert.Empty(t, resp.WaypointOrder)
}

func TestClient_Directions_UnoptimizedKeepsInputOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "30.270700,-97.753100|place_id:ChIJzilker", r.URL.Query().Get("waypoints"))
		_, _ = w.Write([]byte(`{"status":"OK","routes":[{"legs":[{},{},{}]}]}`))
	}))
	defer server.Close()

	resp, err := newTestClient(server.URL, server.Client()).Directions(context.Background(), routing.DirectionsRequest{
		Origin:      capitol,
		Destination: airport,
		Waypoints:   []geocoding.Location{wholeFoods, zilker},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, resp.WaypointOrder)
}

func TestClient_Directions_StatusErrors(t *testing.T) {
	tests := []struct {
		status   string
		sentinel error
	}{
		{"ZERO_RESULTS", routing.ErrNoRouteFound},
		{"NOT_FOUND", routing.ErrNoRouteFound},
		{"MAX_WAYPOINTS_EXCEEDED", routing.ErrTooManyStops},
		{"OVER_QUERY_LIMIT", routing.ErrRateLimitExceeded},
		{"OVER_DAILY_LIMIT", routing.ErrRateLimitExceeded},
		{"REQUEST_DENIED", routing.ErrProviderUnavailable},
		{"UNKNOWN_ERROR", routing.ErrProviderUnavailable},
		{"INVALID_REQUEST", routing.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"status":"` + tt.status + `","error_message":"nope","routes":[]}`))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, server.Client()).Directions(context.Background(), routing.DirectionsRequest{
				Origin:      capitol,
				Destination: zilker,
			})

			var rce *routing.RouteCalculationError
			require.ErrorAs(t, err, &rce)
			assert.Equal(t, tt.status, rce.Status)
			assert.Equal(t, "nope", rce.Message)
			assert.Equal(t, google.ProviderName, rce.Provider)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestClient_Directions_OKWithoutRoutes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"status":"OK","routes":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, server.Client()).Directions(context.Background(), routing.DirectionsRequest{
		Origin:      capitol,
		Destination: zilker,
	})
	assert.ErrorIs(t, err, routing.ErrNoRouteFound)
}

func TestClient_Directions_HTTPErrors(t *testing.T) {
	tests := []struct {
		code     int
		sentinel error
	}{
		{http.StatusTooManyRequests, routing.ErrRateLimitExceeded},
		{http.StatusUnauthorized, routing.ErrProviderUnavailable},
		{http.StatusBadGateway, routing.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.code), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.code)
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, server.Client()).Directions(context.Background(), routing.DirectionsRequest{
				Origin:      capitol,
				Destination: zilker,
			})
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

func TestClient_Directions_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`<html>`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, server.Client()).Directions(context.Background(), routing.DirectionsRequest{
		Origin:      capitol,
		Destination: zilker,
	})

	var rce *routing.RouteCalculationError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, "INVALID_RESPONSE", rce.Status)
}

type failingDoer struct {
	err error
}

func (f failingDoer) Do(*http.Request) (*http.Response, error) {
	return nil, f.err
}

func TestClient_Directions_TransportErrors(t *testing.T) {
	req := routing.DirectionsRequest{Origin: capitol, Destination: zilker}

	_, err := newTestClient("http://unused", failingDoer{err: errors.New("connection refused")}).Directions(context.Background(), req)
	var rce *routing.RouteCalculationError
	require.ErrorAs(t, err, &rce)
	assert.Equal(t, "REQUEST_FAILED", rce.Status)
	assert.True(t, rce.IsRetryable())

	_, err = newTestClient("http://unused", failingDoer{err: context.DeadlineExceeded}).Directions(context.Background(), req)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, errors.As(err, &rce))
}
