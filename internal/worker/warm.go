package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/driveless/driveless/internal/geocoding"
)

// Geocoder resolves an address through the geocode cache.
type Geocoder interface {
	Resolve(ctx context.Context, query string) (*geocoding.Location, error)
}

// WarmJob pre-resolves addresses so later optimizations hit the cache.
type WarmJob struct {
	config   WarmConfig
	geocoder Geocoder
	logger   zerolog.Logger
	now      func() time.Time

	metrics *WarmMetrics
}

// WarmMetrics tracks warm-up job statistics.
type WarmMetrics struct {
	mu sync.RWMutex

	TotalRuns       int64
	ResolvedQueries int64
	FailedQueries   int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// WarmJobConfig holds configuration for creating a WarmJob.
type WarmJobConfig struct {
	Config   WarmConfig
	Geocoder Geocoder
	Logger   zerolog.Logger
	Clock    func() time.Time
}

// NewWarmJob creates a new warm-up job processor.
func NewWarmJob(cfg WarmJobConfig) *WarmJob {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &WarmJob{
		config:   cfg.Config.withDefaults(),
		geocoder: cfg.Geocoder,
		logger:   cfg.Logger,
		now:      clock,
		metrics:  &WarmMetrics{},
	}
}

// WarmResult contains the result of a warm-up run.
type WarmResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
	Total     int
	Resolved  int
	Failed    int
	// Skipped counts queries never attempted because ctx was done.
	Skipped int
	Errors  []WarmError
}

// WarmError records a query that could not be resolved.
type WarmError struct {
	Query     string
	Error     string
	Retryable bool
}

// RetryableFailures counts failures that may succeed on a later attempt.
func (r *WarmResult) RetryableFailures() int {
	n := r.Skipped
	for _, e := range r.Errors {
		if e.Retryable {
			n++
		}
	}
	return n
}

// Run resolves every query through the geocoder with bounded concurrency.
// Queries still queued when ctx is cancelled are counted as failed.
func (j *WarmJob) Run(ctx context.Context, queries []string) *WarmResult {
	startTime := j.now()
	queries = UniqueQueries(queries)
	result := &WarmResult{
		StartTime: startTime,
		Total:     len(queries),
	}

	j.logger.Info().
		Int("queries", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting geocode warm-up job")

	queryChan := make(chan string, len(queries))
	resultsChan := make(chan queryResult, len(queries))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.warmWorker(ctx, queryChan, resultsChan)
		}()
	}

	for _, q := range queries {
		queryChan <- q
	}
	close(queryChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	processed := 0
	for qr := range resultsChan {
		processed++
		if qr.err == nil {
			result.Resolved++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, WarmError{
			Query:     qr.query,
			Error:     qr.err.Error(),
			Retryable: isRetryable(qr.err),
		})
	}
	result.Skipped = result.Total - processed
	result.Failed += result.Skipped

	result.EndTime = j.now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("resolved", result.Resolved).
		Int("failed", result.Failed).
		Msg("geocode warm-up job completed")

	return result
}

type queryResult struct {
	query string
	err   error
}

func (j *WarmJob) warmWorker(ctx context.Context, queries <-chan string, results chan<- queryResult) {
	for q := range queries {
		select {
		case <-ctx.Done():
			return
		default:
			results <- queryResult{query: q, err: j.warm(ctx, q)}
		}
	}
}

func (j *WarmJob) warm(ctx context.Context, query string) error {
	qctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	if _, err := j.geocoder.Resolve(qctx, query); err != nil {
		j.logger.Debug().Err(err).Str("query", query).Msg("warm-up lookup failed")
		return err
	}
	return nil
}

func isRetryable(err error) bool {
	return errors.Is(err, geocoding.ErrProviderUnavailable) ||
		errors.Is(err, geocoding.ErrRateLimitExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}

func (j *WarmJob) updateMetrics(result *WarmResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.ResolvedQueries += int64(result.Resolved)
	j.metrics.FailedQueries += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *WarmJob) GetMetrics() WarmMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return WarmMetrics{
		TotalRuns:       j.metrics.TotalRuns,
		ResolvedQueries: j.metrics.ResolvedQueries,
		FailedQueries:   j.metrics.FailedQueries,
		LastRunAt:       j.metrics.LastRunAt,
		LastRunDuration: j.metrics.LastRunDuration,
		TotalDuration:   j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *WarmJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":        m.TotalRuns,
		"resolved_queries":  m.ResolvedQueries,
		"failed_queries":    m.FailedQueries,
		"last_run_at":       m.LastRunAt,
		"last_run_duration": m.LastRunDuration.String(),
		"total_duration":    m.TotalDuration.String(),
	}
}
