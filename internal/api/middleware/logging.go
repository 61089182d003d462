package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// responseWriter records the status and body size written by a handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newResponseWriter(w http.ResponseWriter) *responseWriter {
	return &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.written += int64(n)
	return n, err
}

// Logger stores a request-scoped logger carrying request_id, trace_id and
// span_id in the context, then writes one access line per request.
// Health probes log at debug; 4xx at warn; 5xx at error.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			fields := log.With().Str("request_id", GetRequestID(r.Context()))
			if sc := trace.SpanContextFromContext(r.Context()); sc.IsValid() {
				fields = fields.
					Str("trace_id", sc.TraceID().String()).
					Str("span_id", sc.SpanID().String())
			}
			reqLog := fields.Logger()

			wrapped := newResponseWriter(w)
			next.ServeHTTP(wrapped, r.WithContext(reqLog.WithContext(r.Context())))

			accessEvent(&reqLog, r.URL.Path, wrapped.statusCode).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", routePattern(r)).
				Int("status", wrapped.statusCode).
				Int64("bytes", wrapped.written).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("request completed")
		})
	}
}

func accessEvent(log *zerolog.Logger, path string, status int) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return log.Error()
	case status >= http.StatusBadRequest:
		return log.Warn()
	case path == "/v1/ops/health" || path == "/v1/ops/ready":
		return log.Debug()
	default:
		return log.Info()
	}
}

// RequestLogger returns the logger stored by Logger, or fallback when the
// request did not pass through it.
func RequestLogger(ctx context.Context, fallback zerolog.Logger) *zerolog.Logger {
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &fallback
}
