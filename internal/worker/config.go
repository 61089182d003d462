// Package worker runs background jobs for DriveLess.
package worker

import (
	"strings"
	"time"

	"github.com/driveless/driveless/internal/geocoding"
)

// Job types carried in the job_type field of a Pub/Sub message.
const (
	JobTypeGeocodeWarm = "geocode_warm"
	JobTypeHealthCheck = "health_check"
)

// MaxWarmQueries bounds the queries accepted from a single message.
const MaxWarmQueries = 100

// HealthCheckQuery is resolved by health_check jobs.
const HealthCheckQuery = "1600 Amphitheatre Parkway, Mountain View, CA"

// WarmConfig holds configuration for the geocode warm-up job.
type WarmConfig struct {
	// Concurrency is the number of concurrent geocode lookups.
	// Default: 3
	Concurrency int

	// Timeout is the timeout for each lookup.
	// Default: 30 seconds
	Timeout time.Duration
}

// DefaultWarmConfig returns the default warm-up configuration.
func DefaultWarmConfig() WarmConfig {
	return WarmConfig{
		Concurrency: 3,
		Timeout:     30 * time.Second,
	}
}

func (c WarmConfig) withDefaults() WarmConfig {
	def := DefaultWarmConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	return c
}

// UniqueQueries drops blank queries and queries that share a cache key with
// an earlier one, keeping the first spelling. At most MaxWarmQueries are
// returned.
func UniqueQueries(queries []string) []string {
	seen := make(map[string]struct{}, len(queries))
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		key := geocoding.Normalize(q)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, q)
		if len(out) == MaxWarmQueries {
			break
		}
	}
	return out
}
