// Package google provides a client for the Google Directions API.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/internal/provider/resilience"
	"github.com/driveless/driveless/internal/routing"
	"github.com/driveless/driveless/pkg/polyline"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "google-directions"

	// DefaultBaseURL is the Google Maps API base URL.
	DefaultBaseURL = "https://maps.googleapis.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 15 * time.Second

	directionsPath = "/maps/api/directions/json"
)

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the Directions client.
type ClientConfig struct {
	// APIKey is the Google Maps API key (required).
	APIKey string

	// BaseURL overrides the API host, mainly for tests.
	BaseURL string

	// HTTPClient defaults to a resilient client registered with Registry.
	HTTPClient HTTPDoer

	Timeout time.Duration

	Registry *resilience.Registry

	Logger zerolog.Logger

	// Clock stamps FetchedAt (default: time.Now).
	Clock func() time.Time
}

// Client is a Google Directions API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient HTTPDoer
	logger     zerolog.Logger
	now        func() time.Time
}

// NewClient creates a new Directions client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     cfg.Logger,
		now:        clock,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Directions requests a driving route from origin to destination through
// the request waypoints.
func (c *Client) Directions(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	params := c.buildParams(req)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+directionsPath+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Int("waypoints", len(req.Waypoints)).
		Bool("optimize", req.OptimizeWaypoints).
		Bool("traffic", req.DepartureTime != nil).
		Msg("requesting directions from Google")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &routing.RouteCalculationError{
			Provider: ProviderName,
			Status:   "REQUEST_FAILED",
			Message:  "failed to reach routing provider",
			Err:      fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleHTTPError(resp.StatusCode)
	}

	var dr directionsResponse
	if err := json.Unmarshal(body, &dr); err != nil {
		return nil, &routing.RouteCalculationError{
			Provider: ProviderName,
			Status:   "INVALID_RESPONSE",
			Message:  "could not decode directions response",
			Err:      fmt.Errorf("%w: %w", routing.ErrProviderUnavailable, err),
		}
	}

	if dr.Status != statusOK {
		return nil, statusError(dr.Status, dr.ErrorMessage)
	}
	if len(dr.Routes) == 0 {
		return nil, statusError(statusZeroResults, "response contained no routes")
	}

	result := c.toDirectionsResponse(&dr.Routes[0], len(req.Waypoints))

	c.logger.Debug().
		Int("legs", len(result.Legs)).
		Ints("waypoint_order", result.WaypointOrder).
		Msg("received directions from Google")

	return result, nil
}

func (c *Client) buildParams(req routing.DirectionsRequest) url.Values {
	mode := req.Mode
	if mode == "" {
		mode = routing.ModeDriving
	}

	params := url.Values{}
	params.Set("origin", formatLocation(req.Origin))
	params.Set("destination", formatLocation(req.Destination))
	params.Set("mode", string(mode))
	params.Set("key", c.apiKey)

	if len(req.Waypoints) > 0 {
		parts := make([]string, 0, len(req.Waypoints)+1)
		if req.OptimizeWaypoints {
			parts = append(parts, "optimize:true")
		}
		for _, wp := range req.Waypoints {
			parts = append(parts, formatLocation(wp))
		}
		params.Set("waypoints", strings.Join(parts, "|"))
	}

	if req.DepartureTime != nil {
		params.Set("departure_time", strconv.FormatInt(req.DepartureTime.Unix(), 10))
		if req.TrafficModel != "" {
			params.Set("traffic_model", string(req.TrafficModel))
		}
	}

	return params
}

// formatLocation prefers the place id, then coordinates, then the address.
func formatLocation(loc geocoding.Location) string {
	switch {
	case loc.PlaceID != "":
		return "place_id:" + loc.PlaceID
	case loc.Coordinate != (geocoding.Coordinate{}):
		return loc.Coordinate.String()
	case loc.FormattedAddress != "":
		return loc.FormattedAddress
	default:
		return loc.RawQuery
	}
}

func (c *Client) toDirectionsResponse(r *directionsRoute, waypointCount int) *routing.DirectionsResponse {
	legs := make([]routing.ProviderLeg, len(r.Legs))
	for i := range r.Legs {
		l := &r.Legs[i]
		leg := routing.ProviderLeg{
			DistanceMeters:  l.Distance.Value,
			DurationSeconds: l.Duration.Value,
			Start:           geocoding.Coordinate{Lat: l.StartLocation.Lat, Lng: l.StartLocation.Lng},
			End:             geocoding.Coordinate{Lat: l.EndLocation.Lat, Lng: l.EndLocation.Lng},
		}
		if l.DurationInTraffic != nil {
			v := l.DurationInTraffic.Value
			leg.DurationInTrafficSeconds = &v
		}

		segments := make([]string, 0, len(l.Steps))
		for _, s := range l.Steps {
			segments = append(segments, s.Polyline.Points)
		}
		for _, p := range polyline.DecodeJoined(segments...) {
			leg.Path = append(leg.Path, geocoding.Coordinate{Lat: p.Lat, Lng: p.Lng})
		}
		legs[i] = leg
	}

	order := r.WaypointOrder
	if len(order) == 0 && waypointCount > 0 {
		// without optimize:true the API echoes no order; the input order stands
		order = make([]int, waypointCount)
		for i := range order {
			order[i] = i
		}
	}

	return &routing.DirectionsResponse{
		Legs:             legs,
		WaypointOrder:    order,
		OverviewPolyline: r.OverviewPolyline.Points,
		Provider:         ProviderName,
		FetchedAt:        c.now(),
	}
}

// statusError maps a non-OK Directions status to a RouteCalculationError.
func statusError(status, message string) error {
	var sentinel error
	switch status {
	case statusZeroResults, statusNotFound:
		sentinel = routing.ErrNoRouteFound
	case statusMaxWaypointsExceeded:
		sentinel = routing.ErrTooManyStops
	case statusOverQueryLimit, statusOverDailyLimit:
		sentinel = routing.ErrRateLimitExceeded
	case statusInvalidRequest:
		sentinel = routing.ErrInvalidRequest
	default:
		sentinel = routing.ErrProviderUnavailable
	}
	return &routing.RouteCalculationError{
		Provider: ProviderName,
		Status:   status,
		Message:  message,
		Err:      sentinel,
	}
}

// handleHTTPError maps transport-level status codes to a RouteCalculationError.
func (c *Client) handleHTTPError(statusCode int) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &routing.RouteCalculationError{
			Provider: ProviderName,
			Status:   statusOverQueryLimit,
			Message:  "API rate limit exceeded",
			Err:      routing.ErrRateLimitExceeded,
		}
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return &routing.RouteCalculationError{
			Provider: ProviderName,
			Status:   statusRequestDenied,
			Message:  "API access denied, check the API key",
			Err:      routing.ErrProviderUnavailable,
		}
	default:
		return &routing.RouteCalculationError{
			Provider: ProviderName,
			Status:   fmt.Sprintf("HTTP_%d", statusCode),
			Message:  fmt.Sprintf("routing provider returned status %d", statusCode),
			Err:      routing.ErrProviderUnavailable,
		}
	}
}
