package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveless/driveless/internal/api"
	"github.com/driveless/driveless/internal/api/handler"
	"github.com/driveless/driveless/internal/api/models"
	"github.com/driveless/driveless/internal/auth"
	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/internal/kvstore"
	"github.com/driveless/driveless/internal/optimizer"
	"github.com/driveless/driveless/internal/provider/resilience"
	"github.com/driveless/driveless/internal/route"
	"github.com/driveless/driveless/internal/routing"
	"github.com/driveless/driveless/internal/routing/haversine"
	"github.com/driveless/driveless/internal/savedroute"
	"github.com/driveless/driveless/internal/usage"
)

const testSigningKey = "test-secret-key-for-testing-only"

// austin maps test addresses to coordinates.
var austin = map[string]geocoding.Coordinate{
	"1100 Congress Ave, Austin, TX":      {Lat: 30.2747, Lng: -97.7404},
	"525 N Lamar Blvd, Austin, TX":       {Lat: 30.2707, Lng: -97.7531},
	"2100 Barton Springs Rd, Austin, TX": {Lat: 30.2669, Lng: -97.7729},
	"3600 Presidential Blvd, Austin, TX": {Lat: 30.1975, Lng: -97.6664},
	"200 E Riverside Dr, Austin, TX":     {Lat: 30.2560, Lng: -97.7450},
	"1 Nowhere Lane, Atlantis":           {},
}

type mapProvider struct{}

func (mapProvider) Name() string { return "map" }

func (mapProvider) Geocode(_ context.Context, query string) ([]geocoding.Result, error) {
	c, ok := austin[query]
	if !ok || c == (geocoding.Coordinate{}) {
		return nil, nil
	}
	return []geocoding.Result{{FormattedAddress: query + ", USA", Coordinate: c}}, nil
}

type testEnv struct {
	router  http.Handler
	jwt     *auth.JWTService
	limiter *usage.Limiter
}

type envOption func(*api.RouterConfig)

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	resolver := geocoding.NewResolver(geocoding.ResolverConfig{
		Provider: mapProvider{},
		Store:    kvstore.NewMemoryStore(),
		Logger:   logger,
	})
	engine := routing.NewEngine(routing.EngineConfig{
		Provider: haversine.New(haversine.Config{Logger: logger}),
		Logger:   logger,
	})
	limiter := usage.NewLimiter(usage.LimiterConfig{
		Counter: usage.NewMemoryCounter(nil),
		Limit:   3,
		Logger:  logger,
	})
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: testSigningKey,
		Issuer:     "driveless",
		Audience:   "driveless-api",
	})

	cfg := api.RouterConfig{
		Version:        "test",
		BuildTime:      "2026-01-01T00:00:00Z",
		Logger:         logger,
		TokenValidator: jwtService,
		Optimizer: optimizer.NewService(optimizer.Config{
			Geocoder: resolver,
			Router:   engine,
			Logger:   logger,
		}),
		Geocoder: resolver,
		Usage:    limiter,
		SavedRoutes: savedroute.NewService(savedroute.ServiceConfig{
			Repo:   savedroute.NewInMemoryRepository(),
			Logger: logger,
		}),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &testEnv{router: api.NewRouter(cfg), jwt: jwtService, limiter: limiter}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	token, _, err := e.jwt.GenerateAccessToken(userID)
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader = http.NoBody
	switch b := body.(type) {
	case nil:
	case []byte:
		reader = bytes.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = "198.51.100.10:4321"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func optimizeBody() models.OptimizeRequest {
	return models.OptimizeRequest{
		Start: "1100 Congress Ave, Austin, TX",
		End:   "3600 Presidential Blvd, Austin, TX",
		Stops: []models.StopRequest{
			{Address: "2100 Barton Springs Rd, Austin, TX", Category: "delivery", Notes: "back door"},
			{Address: "525 N Lamar Blvd, Austin, TX"},
			{Address: "200 E Riverside Dr, Austin, TX", Category: "Meeting"},
		},
	}
}

func decodeProblem(t *testing.T, w *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &p))
	return p
}

func TestRouter_HealthCheck(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/ops/health", nil, "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	var health models.Health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
	assert.Equal(t, models.HealthStatusOK, health.Status)
	assert.Equal(t, "test", health.Details["version"])
}

func TestRouter_ReadinessCheck(t *testing.T) {
	tests := []struct {
		name       string
		pingErr    error
		wantStatus int
		wantHealth models.HealthStatus
	}{
		{"store reachable", nil, http.StatusOK, models.HealthStatusOK},
		{"store down", errors.New("connection refused"), http.StatusServiceUnavailable, models.HealthStatusFail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, func(cfg *api.RouterConfig) {
				cfg.Checks = []handler.DependencyCheck{{
					Name: "redis",
					Ping: func(context.Context) error { return tt.pingErr },
				}}
			})

			w := env.do(t, http.MethodGet, "/v1/ops/ready", nil, "")

			assert.Equal(t, tt.wantStatus, w.Code)
			var health models.Health
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &health))
			assert.Equal(t, tt.wantHealth, health.Status)
			if tt.pingErr != nil {
				assert.Equal(t, "connection refused", health.Details["redis"])
			}
		})
	}
}

func TestRouter_SystemStatus(t *testing.T) {
	registry := resilience.NewRegistry()
	registry.Register("google-directions", resilience.NewClient(resilience.DefaultClientConfig("google-directions")))

	env := newTestEnv(t, func(cfg *api.RouterConfig) {
		cfg.Registry = registry
		cfg.Checks = []handler.DependencyCheck{{Name: "postgres", Ping: func(context.Context) error { return nil }}}
	})

	w := env.do(t, http.MethodGet, "/v1/ops/status", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var status models.SystemStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, models.HealthStatusOK, status.Status)
	require.Len(t, status.Subsystems, 1)
	assert.Equal(t, "postgres", status.Subsystems[0].Name)
	require.Len(t, status.Providers, 1)
	assert.Equal(t, "google-directions", status.Providers[0].Provider)
	assert.Equal(t, "closed", status.Providers[0].CircuitState)
}

func TestRouter_Optimize(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/routes:optimize", optimizeBody(), "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rt models.Route
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rt))

	require.Len(t, rt.Waypoints, 5)
	require.Len(t, rt.Legs, 4)
	assert.Equal(t, "start", rt.Waypoints[0].Type)
	assert.Equal(t, "end", rt.Waypoints[4].Type)
	assert.Equal(t, "1100 Congress Ave, Austin, TX, USA", rt.Waypoints[0].Address)
	assert.False(t, rt.TrafficConsidered)
	assert.Contains(t, rt.TotalDistance, "miles")
	assert.NotEmpty(t, rt.EstimatedTime)
	assert.NotEmpty(t, rt.Geometry.Polyline)
	assert.True(t, strings.HasPrefix(rt.MapsLinks.Google, "https://www.google.com/maps/dir/?api=1"))
	assert.True(t, strings.HasPrefix(rt.MapsLinks.Apple, "http://maps.apple.com/"))

	seen := map[string]bool{}
	for _, wp := range rt.Waypoints[1:4] {
		assert.Equal(t, "stop", wp.Type)
		seen[wp.Address] = true
		if wp.Address == "2100 Barton Springs Rd, Austin, TX, USA" {
			require.NotNil(t, wp.Category)
			assert.Equal(t, "delivery", wp.Category.ID)
			assert.Equal(t, "back door", wp.Notes)
		}
	}
	assert.Len(t, seen, 3)

	var sum float64
	for _, l := range rt.Legs {
		sum += l.DistanceMeters
	}
	assert.InDelta(t, rt.TotalDistanceMeters, sum, 1e-6)

	w = env.do(t, http.MethodGet, "/v1/usage", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var u models.Usage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	assert.Equal(t, 1, u.CurrentUsage)
	assert.Equal(t, 3, u.Limit)
	assert.Equal(t, 2, u.Remaining)
}

func TestRouter_Optimize_RoundTrip(t *testing.T) {
	env := newTestEnv(t)

	body := optimizeBody()
	body.End = ""
	body.RoundTrip = true

	w := env.do(t, http.MethodPost, "/v1/routes:optimize", body, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rt models.Route
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rt))
	first, last := rt.Waypoints[0], rt.Waypoints[len(rt.Waypoints)-1]
	assert.Equal(t, first.Point, last.Point)
}

func TestRouter_Optimize_ValidationError(t *testing.T) {
	tests := []struct {
		name      string
		body      models.OptimizeRequest
		wantField string
	}{
		{"missing start", models.OptimizeRequest{End: "x", Stops: []models.StopRequest{{Address: "y"}}}, "start"},
		{"no stops", models.OptimizeRequest{Start: "a", End: "b"}, "stops"},
		{"unknown category", models.OptimizeRequest{Start: "a", End: "b", Stops: []models.StopRequest{{Address: "y", Category: "pizza"}}}, "stops[0].category"},
		{"missing end", models.OptimizeRequest{Start: "a", Stops: []models.StopRequest{{Address: "y"}}}, "end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			w := env.do(t, http.MethodPost, "/v1/routes:optimize", tt.body, "")

			assert.Equal(t, http.StatusBadRequest, w.Code)
			p := decodeProblem(t, w)
			assert.Equal(t, models.ProblemTypeValidation, p.Type)
			fields := make([]string, len(p.Errors))
			for i, fe := range p.Errors {
				fields[i] = fe.Field
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
}

func TestRouter_Optimize_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/routes:optimize", []byte(`{"start":`), "")

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid JSON body", decodeProblem(t, w).Detail)
}

func TestRouter_Optimize_UnresolvedAddress(t *testing.T) {
	env := newTestEnv(t)

	body := optimizeBody()
	body.Stops[1].Address = "1 Nowhere Lane, Atlantis"

	w := env.do(t, http.MethodPost, "/v1/routes:optimize", body, "")

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, models.ProblemTypeUnprocessable, p.Type)
	assert.Contains(t, p.Detail, "1 Nowhere Lane, Atlantis")

	// failed optimizations are not counted
	u, err := env.limiter.Get(context.Background(), "ip:198.51.100.10")
	require.NoError(t, err)
	assert.Equal(t, 0, u.CurrentUsage)
}

func TestRouter_Optimize_DailyLimit(t *testing.T) {
	env := newTestEnv(t)

	for i := 0; i < 3; i++ {
		w := env.do(t, http.MethodPost, "/v1/routes:optimize", optimizeBody(), "")
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := env.do(t, http.MethodPost, "/v1/routes:optimize", optimizeBody(), "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	p := decodeProblem(t, w)
	assert.Equal(t, models.ProblemTypeDailyLimit, p.Type)
	require.NotNil(t, p.CurrentUsage)
	assert.Equal(t, 3, *p.CurrentUsage)
	assert.Equal(t, 3, *p.Limit)

	// a signed-in caller has a separate quota
	w = env.do(t, http.MethodPost, "/v1/routes:optimize", optimizeBody(), env.token(t, "usr_1"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_Optimize_BadTokenRejected(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/routes:optimize", optimizeBody(), "not-a-token")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_RequireJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/v1/routes:optimize", strings.NewReader("start=a"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
}

func TestRouter_Geocode(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/geocode?q=525+N+Lamar+Blvd%2C+Austin%2C+TX", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.GeocodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "525 N Lamar Blvd, Austin, TX", resp.Query)
	assert.Equal(t, 30.2707, resp.Point.Lat)

	w = env.do(t, http.MethodGet, "/v1/geocode", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = env.do(t, http.MethodGet, "/v1/geocode?q=nowhere", nil, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestRouter_StopCategories(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/stop-categories", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.StopCategories
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Items, 5)
	assert.Equal(t, "default", resp.Items[0].ID)
	assert.Equal(t, "public, max-age=3600", w.Header().Get("Cache-Control"))
}

func sampleDocument(t *testing.T) json.RawMessage {
	t.Helper()
	loc := func(addr string) geocoding.Location {
		return geocoding.Location{RawQuery: addr, FormattedAddress: addr, Coordinate: austin[addr]}
	}
	start := loc("1100 Congress Ave, Austin, TX")
	stop := loc("525 N Lamar Blvd, Austin, TX")
	end := loc("3600 Presidential Blvd, Austin, TX")

	rt, err := route.Build(
		[]route.Waypoint{
			{Location: start, Type: route.WaypointStart},
			{Location: stop, Type: route.WaypointStop},
			{Location: end, Type: route.WaypointEnd},
		},
		[]route.Leg{
			{From: start, To: stop, DistanceMeters: 1400, DurationSeconds: 240},
			{From: stop, To: end, DistanceMeters: 14800, DurationSeconds: 1080},
		},
		false,
	)
	require.NoError(t, err)

	data, err := json.Marshal(route.NewDocument(rt))
	require.NoError(t, err)
	return data
}

func TestRouter_SavedRoutes_RequireAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/me/routes", nil, "")

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, models.ProblemTypeUnauthorized, decodeProblem(t, w).Type)
}

func TestRouter_SavedRoutes(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "usr_1")

	// create
	w := env.do(t, http.MethodPost, "/v1/me/routes", models.SaveRouteRequest{
		Name:  "Monday deliveries",
		Route: sampleDocument(t),
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created models.SavedRoute
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.True(t, strings.HasPrefix(created.ID, "rte_"))
	assert.Equal(t, "/v1/me/routes/"+created.ID, w.Header().Get("Location"))
	assert.Equal(t, "Monday deliveries", created.Name)
	assert.Equal(t, 1, created.StopCount)
	assert.Len(t, created.Route.Waypoints, 3)

	// list
	w = env.do(t, http.MethodGet, "/v1/me/routes?limit=10", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	var page models.PagedSavedRoutes
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, 10, page.Meta.Limit)
	assert.Nil(t, page.Meta.NextCursor)

	// get
	w = env.do(t, http.MethodGet, "/v1/me/routes/"+created.ID, nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	// other users cannot see it
	w = env.do(t, http.MethodGet, "/v1/me/routes/"+created.ID, nil, env.token(t, "usr_2"))
	assert.Equal(t, http.StatusNotFound, w.Code)

	// export then import
	w = env.do(t, http.MethodGet, "/v1/me/routes/"+created.ID+"/export", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "monday-deliveries.json")
	exported := w.Body.Bytes()

	w = env.do(t, http.MethodPost, "/v1/me/routes:import?name=Copy", exported, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var imported models.SavedRoute
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &imported))
	assert.Equal(t, "Copy", imported.Name)
	assert.Equal(t, created.Route.TotalDistance, imported.Route.TotalDistance)

	// delete
	w = env.do(t, http.MethodDelete, "/v1/me/routes/"+created.ID, nil, token)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, http.MethodGet, "/v1/me/routes/"+created.ID, nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_SavedRoutes_InvalidInput(t *testing.T) {
	env := newTestEnv(t)
	token := env.token(t, "usr_1")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"bad limit", http.MethodGet, "/v1/me/routes?limit=0", nil},
		{"missing route", http.MethodPost, "/v1/me/routes", models.SaveRouteRequest{Name: "x"}},
		{"name too long", http.MethodPost, "/v1/me/routes", models.SaveRouteRequest{Name: strings.Repeat("n", 81), Route: sampleDocument(t)}},
		{"malformed import", http.MethodPost, "/v1/me/routes:import", []byte(`{"waypoints": []}`)},
		{"empty import", http.MethodPost, "/v1/me/routes:import", []byte{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, tt.method, tt.path, tt.body, token)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestRouter_RequestID_Preserved(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/v1/ops/health", http.NoBody)
	req.Header.Set("X-Request-Id", "custom-request-id-123")
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	assert.Equal(t, "custom-request-id-123", w.Header().Get("X-Request-Id"))
}

func TestRouter_NotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/v1/nonexistent", nil, "")

	assert.Equal(t, http.StatusNotFound, w.Code)
}
