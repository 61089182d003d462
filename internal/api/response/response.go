// Package response writes DriveLess HTTP responses: JSON bodies, file
// downloads and RFC 7807 problems. Every response echoes X-Request-Id.
package response

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"

	"github.com/driveless/driveless/internal/api/middleware"
	"github.com/driveless/driveless/internal/api/models"
)

func echoRequestID(w http.ResponseWriter, r *http.Request) string {
	id := middleware.GetRequestID(r.Context())
	if id != "" {
		w.Header().Set("X-Request-Id", id)
	}
	return id
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	echoRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// JSON writes data with the given status.
func JSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	writeJSON(w, r, status, data)
}

// Created writes a 201 and sets Location when given.
func Created(w http.ResponseWriter, r *http.Request, location string, data any) {
	if location != "" {
		w.Header().Set("Location", location)
	}
	writeJSON(w, r, http.StatusCreated, data)
}

// NoContent writes a 204.
func NoContent(w http.ResponseWriter, r *http.Request) {
	echoRequestID(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// Attachment writes an already encoded JSON document as a file download.
func Attachment(w http.ResponseWriter, r *http.Request, filename string, data []byte) {
	echoRequestID(w, r)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Error writes problem with Instance set to the request path.
func Error(w http.ResponseWriter, r *http.Request, problem *models.Problem) {
	problem.Instance = r.URL.Path
	problem.Write(w)
}

// problemWith builds a problem carrying the request ID as its trace ID.
func problemWith(w http.ResponseWriter, r *http.Request, build func(traceID string) *models.Problem) {
	Error(w, r, build(echoRequestID(w, r)))
}

func BadRequest(w http.ResponseWriter, r *http.Request, detail string, fields []models.FieldError) {
	problemWith(w, r, func(id string) *models.Problem { return models.NewBadRequest(id, detail, fields) })
}

func Unauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	problemWith(w, r, func(id string) *models.Problem { return models.NewUnauthorized(id, detail) })
}

func NotFound(w http.ResponseWriter, r *http.Request, detail string) {
	problemWith(w, r, func(id string) *models.Problem { return models.NewNotFound(id, detail) })
}

func Conflict(w http.ResponseWriter, r *http.Request, detail string) {
	problemWith(w, r, func(id string) *models.Problem { return models.NewConflict(id, detail) })
}

func UnsupportedMediaType(w http.ResponseWriter, r *http.Request, detail string) {
	problemWith(w, r, func(id string) *models.Problem { return models.NewUnsupportedMediaType(id, detail) })
}

// Unprocessable is used for addresses and stop sets that parse but cannot
// be routed.
func Unprocessable(w http.ResponseWriter, r *http.Request, detail string) {
	problemWith(w, r, func(id string) *models.Problem { return models.NewUnprocessable(id, detail) })
}

func InternalError(w http.ResponseWriter, r *http.Request, detail string) {
	problemWith(w, r, func(id string) *models.Problem { return models.NewInternalError(id, detail) })
}

// BadGateway reports an upstream provider that answered with something
// unusable.
func BadGateway(w http.ResponseWriter, r *http.Request, detail string) {
	problemWith(w, r, func(id string) *models.Problem { return models.NewBadGateway(id, detail) })
}

func ServiceUnavailable(w http.ResponseWriter, r *http.Request, detail string) {
	problemWith(w, r, func(id string) *models.Problem { return models.NewServiceUnavailable(id, detail) })
}

// RateLimitInfo is rendered as X-RateLimit-* headers on a 429.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	// ResetAt is a Unix timestamp.
	ResetAt int64
	// RetryAfter is in seconds; zero omits the Retry-After header.
	RetryAfter int
}

func (i RateLimitInfo) apply(h http.Header) {
	h.Set("X-RateLimit-Limit", strconv.Itoa(i.Limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(i.Remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(i.ResetAt, 10))
	if i.RetryAfter > 0 {
		h.Set("Retry-After", strconv.Itoa(i.RetryAfter))
	}
}

func TooManyRequests(w http.ResponseWriter, r *http.Request, detail string) {
	TooManyRequestsWithInfo(w, r, detail, nil)
}

// TooManyRequestsWithInfo writes a 429, adding rate limit headers when info
// is non-nil.
func TooManyRequestsWithInfo(w http.ResponseWriter, r *http.Request, detail string, info *RateLimitInfo) {
	if info != nil {
		info.apply(w.Header())
	}
	problemWith(w, r, func(id string) *models.Problem { return models.NewTooManyRequests(id, detail) })
}

// DailyLimitExceeded writes the 429 for an exhausted daily optimization
// quota. The body carries currentUsage and limit.
func DailyLimitExceeded(w http.ResponseWriter, r *http.Request, currentUsage, limit int, resetAt int64) {
	RateLimitInfo{Limit: limit, Remaining: 0, ResetAt: resetAt}.apply(w.Header())
	problemWith(w, r, func(id string) *models.Problem { return models.NewDailyLimitExceeded(id, currentUsage, limit) })
}
