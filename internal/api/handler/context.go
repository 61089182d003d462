package handler

import (
	"context"
	"net/http"

	"github.com/driveless/driveless/internal/api/middleware"
)

// maxBodyBytes bounds request bodies, including imported route documents.
const maxBodyBytes = 1 << 20

// GetUserID retrieves the authenticated user ID from the context.
// This is a convenience wrapper around middleware.GetUserID.
func GetUserID(ctx context.Context) string {
	return middleware.GetUserID(ctx)
}

// callerKey identifies the caller for daily quotas.
func callerKey(r *http.Request) string {
	key, err := middleware.ClientKey(r)
	if err != nil || key == "" {
		return "ip:" + r.RemoteAddr
	}
	return key
}
