// Package google provides a client for the Google Geocoding API.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/internal/provider/resilience"
)

const (
	// ProviderName identifies this geocoding provider.
	ProviderName = "google-geocoding"

	// DefaultBaseURL is the Google Maps API base URL.
	DefaultBaseURL = "https://maps.googleapis.com"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second

	geocodePath = "/maps/api/geocode/json"
)

// HTTPDoer executes HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the geocoding client.
type ClientConfig struct {
	// APIKey is the Google Maps API key (required).
	APIKey string

	// BaseURL overrides the API host, mainly for tests.
	BaseURL string

	// Region biases results to a ccTLD, e.g. "us".
	Region string

	// Language of formatted addresses, e.g. "en".
	Language string

	// HTTPClient defaults to a resilient client registered with Registry.
	HTTPClient HTTPDoer

	Timeout time.Duration

	Registry *resilience.Registry

	Logger zerolog.Logger
}

// Client is a Google Geocoding API client.
type Client struct {
	apiKey     string
	baseURL    string
	region     string
	language   string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new geocoding client.
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

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		region:     cfg.Region,
		language:   cfg.Language,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// Geocode looks up an address. ZERO_RESULTS yields an empty slice.
func (c *Client) Geocode(ctx context.Context, query string) ([]geocoding.Result, error) {
	params := url.Values{}
	params.Set("address", query)
	params.Set("key", c.apiKey)
	if c.region != "" {
		params.Set("region", c.region)
	}
	if c.language != "" {
		params.Set("language", c.language)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+geocodePath+"?"+params.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("query", query).Msg("requesting geocode from Google")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, &geocoding.ProviderError{
			Provider: ProviderName,
			Status:   "REQUEST_FAILED",
			Message:  "failed to reach geocoding provider",
			Err:      fmt.Errorf("%w: %w", geocoding.ErrProviderUnavailable, err),
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

	var gr geocodeResponse
	if err := json.Unmarshal(body, &gr); err != nil {
		return nil, &geocoding.ProviderError{
			Provider: ProviderName,
			Status:   "INVALID_RESPONSE",
			Message:  "could not decode geocoding response",
			Err:      err,
		}
	}

	switch gr.Status {
	case statusOK:
	case statusZeroResults:
		return []geocoding.Result{}, nil
	default:
		return nil, c.statusError(gr.Status, gr.ErrorMessage)
	}

	results := make([]geocoding.Result, 0, len(gr.Results))
	for _, r := range gr.Results {
		results = append(results, geocoding.Result{
			FormattedAddress: r.FormattedAddress,
			Coordinate: geocoding.Coordinate{
				Lat: r.Geometry.Location.Lat,
				Lng: r.Geometry.Location.Lng,
			},
			PlaceID: r.PlaceID,
		})
	}

	c.logger.Debug().
		Str("query", query).
		Int("result_count", len(results)).
		Msg("received geocode from Google")

	return results, nil
}

// statusError maps a non-OK API status to a ProviderError.
func (c *Client) statusError(status, message string) error {
	var sentinel error
	switch status {
	case statusOverQueryLimit, statusOverDailyLimit:
		sentinel = geocoding.ErrRateLimitExceeded
	case statusRequestDenied, statusUnknownError:
		sentinel = geocoding.ErrProviderUnavailable
	}
	return &geocoding.ProviderError{
		Provider: ProviderName,
		Status:   status,
		Message:  message,
		Err:      sentinel,
	}
}

// handleHTTPError maps transport-level status codes to a ProviderError.
func (c *Client) handleHTTPError(statusCode int) error {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return &geocoding.ProviderError{
			Provider: ProviderName,
			Status:   statusOverQueryLimit,
			Message:  "API rate limit exceeded",
			Err:      geocoding.ErrRateLimitExceeded,
		}
	case statusCode == http.StatusForbidden || statusCode == http.StatusUnauthorized:
		return &geocoding.ProviderError{
			Provider: ProviderName,
			Status:   statusRequestDenied,
			Message:  "API access denied, check the API key",
			Err:      geocoding.ErrProviderUnavailable,
		}
	default:
		return &geocoding.ProviderError{
			Provider: ProviderName,
			Status:   fmt.Sprintf("HTTP_%d", statusCode),
			Message:  fmt.Sprintf("geocoding provider returned status %d", statusCode),
			Err:      geocoding.ErrProviderUnavailable,
		}
	}
}

const (
	statusOK             = "OK"
	statusZeroResults    = "ZERO_RESULTS"
	statusOverQueryLimit = "OVER_QUERY_LIMIT"
	statusOverDailyLimit = "OVER_DAILY_LIMIT"
	statusRequestDenied  = "REQUEST_DENIED"
	statusUnknownError   = "UNKNOWN_ERROR"
)

type geocodeResponse struct {
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	Results      []geocodeResult `json:"results"`
}

type geocodeResult struct {
	FormattedAddress string `json:"formatted_address"`
	PlaceID          string `json:"place_id"`
	Geometry         struct {
		Location latLng `json:"location"`
	} `json:"geometry"`
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}
