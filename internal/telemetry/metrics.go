package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/driveless/driveless/internal/telemetry"

// ProviderMetrics holds metrics for external provider calls and the
// geocode cache in front of them.
type ProviderMetrics struct {
	requestDuration metric.Float64Histogram
	requestTotal    metric.Int64Counter
	cacheHits       metric.Int64Counter
	cacheMisses     metric.Int64Counter
}

// NewProviderMetrics creates provider instruments on meter. A nil meter
// uses the global provider.
func NewProviderMetrics(meter metric.Meter) (*ProviderMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	requestDuration, err := meter.Float64Histogram(
		"provider.request.duration",
		metric.WithDescription("Duration of provider requests in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	requestTotal, err := meter.Int64Counter(
		"provider.request.total",
		metric.WithDescription("Total number of provider requests"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, err
	}

	cacheHits, err := meter.Int64Counter(
		"provider.cache.hit",
		metric.WithDescription("Number of cache hits"),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		return nil, err
	}

	cacheMisses, err := meter.Int64Counter(
		"provider.cache.miss",
		metric.WithDescription("Number of cache misses"),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}, nil
}

func providerAttrs(provider, operation string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("provider.name", provider),
		attribute.String("provider.operation", operation),
	}
}

// RecordRequest records metrics for a provider request.
func (m *ProviderMetrics) RecordRequest(provider, operation string, duration time.Duration, err error) {
	attrs := providerAttrs(provider, operation)
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}

	// request contexts may already be cancelled
	ctx := context.Background()
	m.requestDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordCacheHit records a cache hit for a provider.
func (m *ProviderMetrics) RecordCacheHit(provider, operation string) {
	m.cacheHits.Add(context.Background(), 1, metric.WithAttributes(providerAttrs(provider, operation)...))
}

// RecordCacheMiss records a cache miss for a provider.
func (m *ProviderMetrics) RecordCacheMiss(provider, operation string) {
	m.cacheMisses.Add(context.Background(), 1, metric.WithAttributes(providerAttrs(provider, operation)...))
}

// Run outcomes reported by OptimizerMetrics.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// OptimizerMetrics counts optimizer runs and state transitions.
type OptimizerMetrics struct {
	runs        metric.Int64Counter
	runDuration metric.Float64Histogram
	transitions metric.Int64Counter
	stops       metric.Int64Histogram
}

// NewOptimizerMetrics creates optimizer instruments on meter. A nil meter
// uses the global provider.
func NewOptimizerMetrics(meter metric.Meter) (*OptimizerMetrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	runs, err := meter.Int64Counter(
		"optimizer.run.total",
		metric.WithDescription("Number of optimization runs by outcome"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	runDuration, err := meter.Float64Histogram(
		"optimizer.run.duration",
		metric.WithDescription("Duration of optimization runs in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter(
		"optimizer.transition.total",
		metric.WithDescription("Number of optimizer state transitions"),
		metric.WithUnit("{transition}"),
	)
	if err != nil {
		return nil, err
	}

	stops, err := meter.Int64Histogram(
		"optimizer.run.stops",
		metric.WithDescription("Number of stops per optimization request"),
		metric.WithUnit("{stop}"),
	)
	if err != nil {
		return nil, err
	}

	return &OptimizerMetrics{
		runs:        runs,
		runDuration: runDuration,
		transitions: transitions,
		stops:       stops,
	}, nil
}

// RecordTransition counts a state change.
func (m *OptimizerMetrics) RecordTransition(from, to string) {
	m.transitions.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordRun records the outcome of one optimization request.
func (m *OptimizerMetrics) RecordRun(outcome string, stops int, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.runs.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
	m.stops.Record(ctx, int64(stops))
}

// Outcome classifies an optimization error for RecordRun.
func Outcome(err error, rejected bool) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return OutcomeCanceled
	case rejected:
		return OutcomeRejected
	default:
		return OutcomeFailed
	}
}
