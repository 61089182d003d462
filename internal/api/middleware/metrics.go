package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/driveless/driveless/internal/api/middleware"

// Metrics records per-request HTTP instruments.
type Metrics struct {
	duration metric.Float64Histogram
	total    metric.Int64Counter
	inFlight metric.Int64UpDownCounter
	size     metric.Int64Histogram
}

// NewMetrics creates HTTP instruments on meter. A nil meter uses the global
// provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	var (
		m   Metrics
		err error
	)
	if m.duration, err = meter.Float64Histogram("http.server.request.duration",
		metric.WithDescription("Duration of HTTP server requests"),
		metric.WithUnit("s"),
		// optimize calls fan out to the provider and routinely take seconds
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30),
	); err != nil {
		return nil, err
	}
	if m.total, err = meter.Int64Counter("http.server.request.total",
		metric.WithDescription("HTTP server requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.inFlight, err = meter.Int64UpDownCounter("http.server.requests_in_flight",
		metric.WithDescription("HTTP requests currently being served"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}
	if m.size, err = meter.Int64Histogram("http.server.response.size",
		metric.WithDescription("HTTP response body size"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, err
	}
	return &m, nil
}

// Middleware records duration, count and response size per route pattern
// and status, plus in-flight requests per method.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := time.Now()
			method := attribute.String("http.method", r.Method)

			m.inFlight.Add(ctx, 1, metric.WithAttributes(method))
			defer m.inFlight.Add(ctx, -1, metric.WithAttributes(method))

			rw := newResponseWriter(w)
			next.ServeHTTP(rw, r)

			set := metric.WithAttributeSet(requestAttributes(method, r, rw.statusCode))
			m.duration.Record(ctx, time.Since(start).Seconds(), set)
			m.total.Add(ctx, 1, set)
			m.size.Record(ctx, rw.written, set)
		})
	}
}

func requestAttributes(method attribute.KeyValue, r *http.Request, status int) attribute.Set {
	attrs := []attribute.KeyValue{
		method,
		attribute.String("http.route", routePattern(r)),
		attribute.String("http.status_code", strconv.Itoa(status)),
		attribute.String("http.status_class", strconv.Itoa(status/100)+"xx"),
	}
	if status >= http.StatusBadRequest {
		attrs = append(attrs, attribute.Bool("error", true))
	}
	return attribute.NewSet(attrs...)
}

// routePattern returns the matched chi pattern so route ids stay out of
// attributes. It is only set once chi has routed the request.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}
