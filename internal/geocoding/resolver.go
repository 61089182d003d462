package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/driveless/driveless/internal/kvstore"
)

const (
	// DefaultCacheTTL is how long a resolved address is reused.
	DefaultCacheTTL = 7 * 24 * time.Hour

	// DefaultFetchTimeout bounds one shared provider call.
	DefaultFetchTimeout = 15 * time.Second

	cacheKeyPrefix = "geocode_"
	operationName  = "geocode"
)

// Metrics receives cache and provider call outcomes.
type Metrics interface {
	RecordRequest(provider, operation string, duration time.Duration, err error)
	RecordCacheHit(provider, operation string)
	RecordCacheMiss(provider, operation string)
}

// ResolverConfig holds configuration for the Resolver.
type ResolverConfig struct {
	// Provider performs the actual geocoding (required).
	Provider Provider

	// Store holds cache entries. Defaults to an in-memory store.
	Store kvstore.Store

	Logger zerolog.Logger

	// CacheTTL is the freshness window for cache entries (default: 7 days).
	CacheTTL time.Duration

	// Clock returns the current time (default: time.Now).
	Clock func() time.Time

	// Metrics is optional.
	Metrics Metrics

	// FetchTimeout bounds a provider call shared by coalesced callers
	// (default: 15s). It does not follow any single caller's context.
	FetchTimeout time.Duration
}

// Resolver turns addresses into Locations, reading the cache before calling
// the provider and writing the cache after a successful fetch.
type Resolver struct {
	provider Provider
	store    kvstore.Store
	logger   zerolog.Logger
	ttl      time.Duration
	now      func() time.Time
	metrics  Metrics
	timeout  time.Duration
	group    singleflight.Group
}

// cacheEntry is the persisted form of a resolved address.
type cacheEntry struct {
	Result    *Location `json:"result"`
	Timestamp int64     `json:"timestamp"`
}

// NewResolver creates a new Resolver.
func NewResolver(cfg ResolverConfig) *Resolver {
	store := cfg.Store
	if store == nil {
		store = kvstore.NewMemoryStore()
	}

	ttl := cfg.CacheTTL
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	metrics := cfg.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	return &Resolver{
		timeout:  timeout,
		provider: cfg.Provider,
		store:    store,
		logger:   cfg.Logger,
		ttl:      ttl,
		now:      clock,
		metrics:  metrics,
	}
}

// CacheKey returns the store key for a query.
func CacheKey(query string) string {
	return cacheKeyPrefix + Normalize(query)
}

// Resolve returns the Location for query. A fresh cache entry is returned
// without contacting the provider. Concurrent calls for the same normalised
// query share one provider call; each caller still returns as soon as its
// own ctx is done. Provider failures are reported as
// *UnresolvedLocationError. Cancellation and deadlines are returned as the
// context error.
func (r *Resolver) Resolve(ctx context.Context, query string) (*Location, error) {
	normalized := Normalize(query)
	if normalized == "" {
		return nil, &UnresolvedLocationError{Query: query, Status: "EMPTY_QUERY", Err: ErrEmptyQuery}
	}

	key := cacheKeyPrefix + normalized

	if loc, ok := r.lookup(ctx, key); ok {
		r.metrics.RecordCacheHit(r.provider.Name(), operationName)
		return forCaller(loc, query), nil
	}
	r.metrics.RecordCacheMiss(r.provider.Name(), operationName)

	// The flight outlives the caller that started it, so it must not run on
	// that caller's cancellation.
	flightCtx := context.WithoutCancel(ctx)
	ch := r.group.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(flightCtx, r.timeout)
		defer cancel()
		return r.fetch(fctx, key, query)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			r.logger.Debug().Str("cache_key", key).Msg("geocode request coalesced")
		}
		return forCaller(res.Val.(*Location), query), nil
	}
}

// forCaller copies a shared or cached location and fills in the fields that
// depend on the caller's own spelling of the query.
func forCaller(shared *Location, query string) *Location {
	loc := *shared
	loc.RawQuery = query
	loc.DisplayName = displayNameFor(query, loc.FormattedAddress)
	return &loc
}

func displayNameFor(query, formattedAddress string) string {
	if name := DisplayName(query); name != "" {
		return name
	}
	return DisplayName(formattedAddress)
}

// lookup reads a fresh entry from the store. Corrupt entries are evicted and
// reported as a miss; expired entries are left to be overwritten.
func (r *Resolver) lookup(ctx context.Context, key string) (*Location, bool) {
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			r.logger.Warn().Err(err).Str("cache_key", key).Msg("geocode cache read failed")
		}
		return nil, false
	}

	entry, err := decodeEntry(key, raw)
	if err != nil {
		r.logger.Warn().Err(err).Str("cache_key", key).Msg("evicting corrupt geocode cache entry")
		if delErr := r.store.Delete(ctx, key); delErr != nil {
			r.logger.Warn().Err(delErr).Str("cache_key", key).Msg("failed to evict geocode cache entry")
		}
		return nil, false
	}

	age := r.now().Sub(time.UnixMilli(entry.Timestamp))
	if age >= r.ttl {
		r.logger.Debug().Str("cache_key", key).Dur("age", age).Msg("geocode cache entry expired")
		return nil, false
	}

	loc := *entry.Result
	return &loc, true
}

func decodeEntry(key string, raw []byte) (*cacheEntry, error) {
	var entry cacheEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, &CacheCorruptionError{Key: key, Reason: "invalid json", Err: err}
	}
	if entry.Result == nil {
		return nil, &CacheCorruptionError{Key: key, Reason: "missing result"}
	}
	if entry.Timestamp <= 0 {
		return nil, &CacheCorruptionError{Key: key, Reason: "missing timestamp"}
	}
	return &entry, nil
}

func (r *Resolver) fetch(ctx context.Context, key, query string) (*Location, error) {
	start := r.now()
	results, err := r.provider.Geocode(ctx, query)
	r.metrics.RecordRequest(r.provider.Name(), operationName, r.now().Sub(start), err)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			r.logger.Warn().Err(err).Str("provider", r.provider.Name()).Msg("geocoding timed out")
			return nil, err
		}
		status := "PROVIDER_ERROR"
		var perr *ProviderError
		if errors.As(err, &perr) {
			status = perr.Status
		}
		r.logger.Error().Err(err).
			Str("provider", r.provider.Name()).
			Str("status", status).
			Msg("geocoding failed")
		return nil, &UnresolvedLocationError{Query: query, Status: status, Err: err}
	}

	if len(results) == 0 {
		return nil, &UnresolvedLocationError{Query: query, Status: "ZERO_RESULTS", Err: ErrNoResults}
	}

	best := results[0]
	loc := &Location{
		RawQuery:         query,
		FormattedAddress: best.FormattedAddress,
		Coordinate:       best.Coordinate,
		PlaceID:          best.PlaceID,
		DisplayName:      displayNameFor(query, best.FormattedAddress),
	}

	r.save(ctx, key, loc)
	return loc, nil
}

// save writes the cache entry. A failed write is logged and otherwise ignored.
func (r *Resolver) save(ctx context.Context, key string, loc *Location) {
	raw, err := json.Marshal(cacheEntry{Result: loc, Timestamp: r.now().UnixMilli()})
	if err != nil {
		r.logger.Warn().Err(err).Str("cache_key", key).Msg("failed to encode geocode cache entry")
		return
	}
	if err := r.store.Set(ctx, key, raw); err != nil {
		r.logger.Warn().Err(err).Str("cache_key", key).Msg("failed to write geocode cache entry")
	}
}

// ProviderName returns the name of the underlying provider.
func (r *Resolver) ProviderName() string {
	return r.provider.Name()
}

type noopMetrics struct{}

func (noopMetrics) RecordRequest(string, string, time.Duration, error) {}
func (noopMetrics) RecordCacheHit(string, string)                      {}
func (noopMetrics) RecordCacheMiss(string, string)                     {}
