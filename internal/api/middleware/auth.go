package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/driveless/driveless/internal/api/models"
	"github.com/driveless/driveless/internal/auth"
)

// userIDKey is the context key for the authenticated user ID.
type userIDKey struct{}

// TokenValidator resolves a bearer token to a user ID.
type TokenValidator interface {
	ValidateAccessToken(token string) (string, error)
}

var errNoCredentials = errors.New("missing authorization header")

// Auth rejects requests without a valid bearer token.
func Auth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, detail := authenticate(validator, r)
			if detail != "" {
				writeUnauthorized(w, r, detail)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// OptionalAuth attaches the user ID when a bearer token is sent. Requests
// without an Authorization header pass through anonymously; a header with a
// bad token is still rejected.
func OptionalAuth(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			userID, detail := authenticate(validator, r)
			if detail != "" {
				writeUnauthorized(w, r, detail)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// authenticate returns the user ID, or a client-facing reason the request
// was rejected.
func authenticate(validator TokenValidator, r *http.Request) (string, string) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return "", errNoCredentials.Error()
	}

	const bearerPrefix = "Bearer "
	if len(authHeader) < len(bearerPrefix) ||
		!strings.EqualFold(authHeader[:len(bearerPrefix)], bearerPrefix) {
		return "", "invalid authorization header format"
	}

	tokenString := strings.TrimSpace(authHeader[len(bearerPrefix):])
	if tokenString == "" {
		return "", "missing bearer token"
	}

	userID, err := validator.ValidateAccessToken(tokenString)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrAccessTokenExpired):
			return "", "access token has expired"
		case errors.Is(err, auth.ErrInvalidAccessToken):
			return "", "invalid access token"
		default:
			return "", "authentication failed"
		}
	}
	return userID, ""
}

// writeUnauthorized writes a 401 Unauthorized response.
// The response package imports middleware, so the problem is written here.
func writeUnauthorized(w http.ResponseWriter, r *http.Request, detail string) {
	traceID := GetRequestID(r.Context())
	problem := models.NewUnauthorized(traceID, detail)
	problem.Instance = r.URL.Path
	w.Header().Set("WWW-Authenticate", `Bearer realm="driveless"`)
	problem.Write(w)
}

// WithUserID returns a context carrying userID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey{}, userID)
}

// GetUserID retrieves the authenticated user ID from the context.
// Returns an empty string if not authenticated.
func GetUserID(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}
