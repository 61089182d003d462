// Package usage enforces the daily optimization quota per caller.
package usage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultDailyLimit is the number of optimizations allowed per caller per UTC day.
const DefaultDailyLimit = 25

const keyPrefix = "usage_"

// ErrDailyLimitExceeded is returned when the caller used up today's quota.
var ErrDailyLimitExceeded = errors.New("daily usage limit exceeded")

// Usage is a caller's consumption for the current UTC day.
type Usage struct {
	CurrentUsage int       `json:"currentUsage"`
	Limit        int       `json:"limit"`
	Remaining    int       `json:"remaining"`
	ResetsAt     time.Time `json:"resetsAt"`
}

// LimitError carries the usage that caused the rejection.
type LimitError struct {
	Usage Usage
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("daily usage limit exceeded: %d of %d", e.Usage.CurrentUsage, e.Usage.Limit)
}

func (e *LimitError) Unwrap() error {
	return ErrDailyLimitExceeded
}

// Counter stores per-day counters.
type Counter interface {
	// Increment adds one to key and returns the new value. The key expires at expireAt.
	Increment(ctx context.Context, key string, expireAt time.Time) (int64, error)
	// Count returns the value at key, zero when absent.
	Count(ctx context.Context, key string) (int64, error)
}

// LimiterConfig holds configuration for the Limiter.
type LimiterConfig struct {
	Counter Counter

	// Limit defaults to DefaultDailyLimit.
	Limit int

	Logger zerolog.Logger

	Clock func() time.Time
}

// Limiter checks and records optimizations against the daily quota. Only
// successful optimizations are recorded.
type Limiter struct {
	counter Counter
	limit   int
	logger  zerolog.Logger
	now     func() time.Time
}

// NewLimiter creates a new Limiter.
func NewLimiter(cfg LimiterConfig) *Limiter {
	limit := cfg.Limit
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Limiter{
		counter: cfg.Counter,
		limit:   limit,
		logger:  cfg.Logger,
		now:     clock,
	}
}

// Limit returns the configured daily limit.
func (l *Limiter) Limit() int {
	return l.limit
}

// Get returns today's usage for id.
func (l *Limiter) Get(ctx context.Context, id string) (Usage, error) {
	day, reset := l.day()
	n, err := l.counter.Count(ctx, Key(id, day))
	if err != nil {
		return Usage{}, fmt.Errorf("reading usage: %w", err)
	}
	return l.usage(int(n), reset), nil
}

// Check returns a *LimitError when id has no optimizations left today.
func (l *Limiter) Check(ctx context.Context, id string) (Usage, error) {
	u, err := l.Get(ctx, id)
	if err != nil {
		return Usage{}, err
	}
	if u.Remaining <= 0 {
		return u, &LimitError{Usage: u}
	}
	return u, nil
}

// Record counts one optimization for id.
func (l *Limiter) Record(ctx context.Context, id string) (Usage, error) {
	day, reset := l.day()
	n, err := l.counter.Increment(ctx, Key(id, day), reset)
	if err != nil {
		return Usage{}, fmt.Errorf("recording usage: %w", err)
	}

	u := l.usage(int(n), reset)
	l.logger.Debug().
		Str("caller", id).
		Int("current_usage", u.CurrentUsage).
		Int("limit", u.Limit).
		Msg("usage recorded")
	return u, nil
}

func (l *Limiter) usage(n int, reset time.Time) Usage {
	remaining := l.limit - n
	if remaining < 0 {
		remaining = 0
	}
	return Usage{CurrentUsage: n, Limit: l.limit, Remaining: remaining, ResetsAt: reset}
}

// day returns today's UTC date and the next UTC midnight.
func (l *Limiter) day() (string, time.Time) {
	now := l.now().UTC()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Format(time.DateOnly), midnight.AddDate(0, 0, 1)
}

// Key returns the counter key for id on day (YYYY-MM-DD).
func Key(id, day string) string {
	return keyPrefix + id + "_" + day
}
