// Package geocoding resolves free-text addresses to coordinates through a
// provider, with a TTL cache in front of it.
package geocoding

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrProviderUnavailable indicates the geocoding provider is down or its circuit is open.
	ErrProviderUnavailable = errors.New("geocoding provider unavailable")
	// ErrRateLimitExceeded indicates the provider quota has been exceeded.
	ErrRateLimitExceeded = errors.New("geocoding rate limit exceeded")
	// ErrNoResults indicates the provider found nothing for the query.
	ErrNoResults = errors.New("no geocoding results")
	// ErrEmptyQuery indicates a query that is blank after normalisation.
	ErrEmptyQuery = errors.New("empty address")
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// String renders the coordinate the way the Google APIs accept it.
func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// Location is a resolved address. Locations returned by the Resolver are
// values and are not modified afterwards.
type Location struct {
	RawQuery         string     `json:"rawQuery"`
	FormattedAddress string     `json:"formattedAddress"`
	Coordinate       Coordinate `json:"coordinate"`
	PlaceID          string     `json:"placeId,omitempty"`
	DisplayName      string     `json:"displayName,omitempty"`
}

// Result is one candidate returned by a Provider.
type Result struct {
	FormattedAddress string
	Coordinate       Coordinate
	PlaceID          string
}

// Provider turns a query into candidate results. It returns an empty slice
// when there are no matches and a *ProviderError for any other non-OK outcome.
type Provider interface {
	Geocode(ctx context.Context, query string) ([]Result, error)
	Name() string
}

// ProviderError carries the status string reported by a geocoding provider.
type ProviderError struct {
	Provider string
	Status   string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	msg := e.Provider + ": " + e.Status
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// UnresolvedLocationError is returned when an address cannot be turned into a Location.
type UnresolvedLocationError struct {
	Query  string
	Status string
	Err    error
}

func (e *UnresolvedLocationError) Error() string {
	return fmt.Sprintf("could not resolve location %q (%s)", e.Query, e.Status)
}

func (e *UnresolvedLocationError) Unwrap() error {
	return e.Err
}

// CacheCorruptionError describes a cache entry that could not be decoded.
// The Resolver evicts such entries and never returns this error.
type CacheCorruptionError struct {
	Key    string
	Reason string
	Err    error
}

func (e *CacheCorruptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt cache entry %s: %s: %v", e.Key, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt cache entry %s: %s", e.Key, e.Reason)
}

func (e *CacheCorruptionError) Unwrap() error {
	return e.Err
}
