package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driveless/driveless/internal/api/middleware"
	"github.com/driveless/driveless/internal/api/models"
	"github.com/driveless/driveless/internal/api/response"
)

// serve runs write behind the RequestID middleware with a fixed request ID.
func serve(method, path string, write func(http.ResponseWriter, *http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, http.NoBody)
	req.Header.Set("X-Request-Id", "req_test")
	rec := httptest.NewRecorder()
	middleware.RequestID(http.HandlerFunc(write)).ServeHTTP(rec, req)
	return rec
}

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) models.Problem {
	t.Helper()
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	var p models.Problem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestJSON(t *testing.T) {
	rec := serve(http.MethodGet, "/v1/usage", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]int{"count": 3})
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "req_test", rec.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{"count":3}`, rec.Body.String())
}

func TestJSON_NilDataWritesNoBody(t *testing.T) {
	rec := serve(http.MethodGet, "/v1/usage", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusAccepted, nil)
	})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestJSON_WithoutRequestID(t *testing.T) {
	rec := httptest.NewRecorder()
	response.JSON(rec, httptest.NewRequest(http.MethodGet, "/v1/usage", http.NoBody), http.StatusOK, nil)

	assert.Empty(t, rec.Header().Get("X-Request-Id"))
}

func TestCreated(t *testing.T) {
	rec := serve(http.MethodPost, "/v1/me/routes", func(w http.ResponseWriter, r *http.Request) {
		response.Created(w, r, "/v1/me/routes/rte_1", map[string]string{"id": "rte_1"})
	})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "/v1/me/routes/rte_1", rec.Header().Get("Location"))
	assert.Equal(t, "req_test", rec.Header().Get("X-Request-Id"))
}

func TestNoContent(t *testing.T) {
	rec := serve(http.MethodDelete, "/v1/me/routes/rte_1", response.NoContent)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "req_test", rec.Header().Get("X-Request-Id"))
	assert.Zero(t, rec.Body.Len())
}

func TestAttachment(t *testing.T) {
	rec := serve(http.MethodGet, "/v1/me/routes/rte_1/export", func(w http.ResponseWriter, r *http.Request) {
		response.Attachment(w, r, "monday-deliveries.json", []byte(`{"version":1}`))
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "attachment; filename=monday-deliveries.json", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, `{"version":1}`, rec.Body.String())
}

func TestProblemResponses(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request)
		status int
		typ    string
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) {
			response.BadRequest(w, r, "validation failed", []models.FieldError{{Field: "stops", Message: "is required"}})
		}, http.StatusBadRequest, models.ProblemTypeValidation},
		{"unauthorized", func(w http.ResponseWriter, r *http.Request) {
			response.Unauthorized(w, r, "invalid token")
		}, http.StatusUnauthorized, models.ProblemTypeUnauthorized},
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			response.NotFound(w, r, "saved route not found")
		}, http.StatusNotFound, models.ProblemTypeNotFound},
		{"conflict", func(w http.ResponseWriter, r *http.Request) {
			response.Conflict(w, r, "name already used")
		}, http.StatusConflict, models.ProblemTypeConflict},
		{"unsupported media type", func(w http.ResponseWriter, r *http.Request) {
			response.UnsupportedMediaType(w, r, "Content-Type must be application/json")
		}, http.StatusUnsupportedMediaType, models.ProblemTypeUnsupportedMediaType},
		{"unprocessable", func(w http.ResponseWriter, r *http.Request) {
			response.Unprocessable(w, r, "address could not be resolved")
		}, http.StatusUnprocessableEntity, models.ProblemTypeUnprocessable},
		{"internal", func(w http.ResponseWriter, r *http.Request) {
			response.InternalError(w, r, "unexpected")
		}, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"bad gateway", func(w http.ResponseWriter, r *http.Request) {
			response.BadGateway(w, r, "directions provider failed")
		}, http.StatusBadGateway, models.ProblemTypeBadGateway},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) {
			response.ServiceUnavailable(w, r, "geocoding unavailable")
		}, http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(http.MethodPost, "/v1/routes:optimize", tt.write)

			assert.Equal(t, tt.status, rec.Code)
			p := decodeProblem(t, rec)
			assert.Equal(t, tt.typ, p.Type)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, "req_test", p.TraceID)
			assert.Equal(t, "/v1/routes:optimize", p.Instance)
		})
	}
}

func TestTooManyRequestsWithInfo(t *testing.T) {
	rec := serve(http.MethodPost, "/v1/routes:optimize", func(w http.ResponseWriter, r *http.Request) {
		response.TooManyRequestsWithInfo(w, r, "slow down", &response.RateLimitInfo{
			Limit: 30, Remaining: 0, ResetAt: 1704067200, RetryAfter: 60,
		})
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1704067200", rec.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, models.ProblemTypeTooManyRequests, decodeProblem(t, rec).Type)
}

func TestTooManyRequests_NoHeaders(t *testing.T) {
	rec := serve(http.MethodPost, "/v1/routes:optimize", func(w http.ResponseWriter, r *http.Request) {
		response.TooManyRequests(w, r, "slow down")
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	assert.Empty(t, rec.Header().Get("Retry-After"))
}

func TestDailyLimitExceeded(t *testing.T) {
	rec := serve(http.MethodPost, "/v1/routes:optimize", func(w http.ResponseWriter, r *http.Request) {
		response.DailyLimitExceeded(w, r, 25, 25, 1704153600)
	})

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "25", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "1704153600", rec.Header().Get("X-RateLimit-Reset"))
	assert.Empty(t, rec.Header().Get("Retry-After"))

	p := decodeProblem(t, rec)
	assert.Equal(t, models.ProblemTypeDailyLimit, p.Type)
	require.NotNil(t, p.CurrentUsage)
	require.NotNil(t, p.Limit)
	assert.Equal(t, 25, *p.CurrentUsage)
	assert.Equal(t, 25, *p.Limit)
}
