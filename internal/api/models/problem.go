package models

import (
	"encoding/json"
	"net/http"
)

// Problem is an RFC 7807 error body, served as application/problem+json.
type Problem struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	// TraceID is the request ID, echoed so callers can quote it.
	TraceID string `json:"traceId"`

	Errors []FieldError `json:"errors,omitempty"`

	// CurrentUsage and Limit are set on daily quota rejections.
	CurrentUsage *int `json:"currentUsage,omitempty"`
	Limit        *int `json:"limit,omitempty"`
}

// FieldError points at one invalid request field, e.g. "stops[2].address".
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const problemBase = "https://api.driveless.app/problems/"

const (
	ProblemTypeValidation           = problemBase + "validation-error"
	ProblemTypeUnauthorized         = problemBase + "unauthorized"
	ProblemTypeNotFound             = problemBase + "not-found"
	ProblemTypeConflict             = problemBase + "conflict"
	ProblemTypeUnsupportedMediaType = problemBase + "unsupported-media-type"
	ProblemTypeUnprocessable        = problemBase + "unprocessable"
	ProblemTypeTooManyRequests      = problemBase + "too-many-requests"
	ProblemTypeDailyLimit           = problemBase + "daily-limit-exceeded"
	ProblemTypeTLSRequired          = problemBase + "tls-required"
	ProblemTypeInternal             = problemBase + "internal-error"
	ProblemTypeBadGateway           = problemBase + "bad-gateway"
	ProblemTypeUnavailable          = problemBase + "service-unavailable"
)

type problemKind struct {
	title  string
	status int
}

var problemKinds = map[string]problemKind{
	ProblemTypeValidation:           {"Validation error", http.StatusBadRequest},
	ProblemTypeUnauthorized:         {"Unauthorized", http.StatusUnauthorized},
	ProblemTypeNotFound:             {"Not found", http.StatusNotFound},
	ProblemTypeConflict:             {"Conflict", http.StatusConflict},
	ProblemTypeUnsupportedMediaType: {"Unsupported media type", http.StatusUnsupportedMediaType},
	ProblemTypeUnprocessable:        {"Unprocessable request", http.StatusUnprocessableEntity},
	ProblemTypeTooManyRequests:      {"Too many requests", http.StatusTooManyRequests},
	ProblemTypeDailyLimit:           {"Daily limit exceeded", http.StatusTooManyRequests},
	ProblemTypeTLSRequired:          {"TLS required", http.StatusForbidden},
	ProblemTypeInternal:             {"Internal server error", http.StatusInternalServerError},
	ProblemTypeBadGateway:           {"Bad gateway", http.StatusBadGateway},
	ProblemTypeUnavailable:          {"Service unavailable", http.StatusServiceUnavailable},
}

// NewProblem creates a Problem with an explicit title and status.
func NewProblem(problemType, title string, status int, traceID string) *Problem {
	return &Problem{Type: problemType, Title: title, Status: status, TraceID: traceID}
}

func newKnown(problemType, traceID, detail string) *Problem {
	k := problemKinds[problemType]
	p := NewProblem(problemType, k.title, k.status, traceID)
	p.Detail = detail
	return p
}

func (p *Problem) WithDetail(detail string) *Problem {
	p.Detail = detail
	return p
}

func (p *Problem) WithInstance(instance string) *Problem {
	p.Instance = instance
	return p
}

func (p *Problem) WithErrors(errs []FieldError) *Problem {
	p.Errors = errs
	return p
}

// Write sends the problem with its status and echoes TraceID as
// X-Request-Id.
func (p *Problem) Write(w http.ResponseWriter) {
	h := w.Header()
	h.Set("Content-Type", "application/problem+json")
	h.Set("X-Request-Id", p.TraceID)
	w.WriteHeader(p.Status)
	_ = json.NewEncoder(w).Encode(p)
}

// NewBadRequest is a 400 carrying per-field errors.
func NewBadRequest(traceID, detail string, errs []FieldError) *Problem {
	return newKnown(ProblemTypeValidation, traceID, detail).WithErrors(errs)
}

func NewUnauthorized(traceID, detail string) *Problem {
	return newKnown(ProblemTypeUnauthorized, traceID, detail)
}

func NewNotFound(traceID, detail string) *Problem {
	return newKnown(ProblemTypeNotFound, traceID, detail)
}

func NewConflict(traceID, detail string) *Problem {
	return newKnown(ProblemTypeConflict, traceID, detail)
}

func NewUnsupportedMediaType(traceID, detail string) *Problem {
	return newKnown(ProblemTypeUnsupportedMediaType, traceID, detail)
}

// NewUnprocessable is a 422, used when an address cannot be resolved or no
// drivable route exists.
func NewUnprocessable(traceID, detail string) *Problem {
	return newKnown(ProblemTypeUnprocessable, traceID, detail)
}

func NewTooManyRequests(traceID, detail string) *Problem {
	return newKnown(ProblemTypeTooManyRequests, traceID, detail)
}

// NewDailyLimitExceeded is a 429 carrying the caller's usage against the
// daily optimization limit.
func NewDailyLimitExceeded(traceID string, currentUsage, limit int) *Problem {
	p := newKnown(ProblemTypeDailyLimit, traceID, "daily route optimization limit reached, try again tomorrow")
	p.CurrentUsage = &currentUsage
	p.Limit = &limit
	return p
}

// NewTLSRequired is a 403 for plain HTTP behind a TLS-terminating proxy.
func NewTLSRequired(traceID string) *Problem {
	return newKnown(ProblemTypeTLSRequired, traceID, "This endpoint requires HTTPS")
}

func NewInternalError(traceID, detail string) *Problem {
	return newKnown(ProblemTypeInternal, traceID, detail)
}

// NewBadGateway is a 502 for upstream provider failures.
func NewBadGateway(traceID, detail string) *Problem {
	return newKnown(ProblemTypeBadGateway, traceID, detail)
}

func NewServiceUnavailable(traceID, detail string) *Problem {
	return newKnown(ProblemTypeUnavailable, traceID, detail)
}
