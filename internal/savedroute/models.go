// Package savedroute stores optimized routes per user and handles their
// export and import.
package savedroute

import (
	"errors"
	"time"

	"github.com/driveless/driveless/internal/route"
)

// Repository errors.
var (
	ErrRouteNotFound = errors.New("saved route not found")
)

// SavedRoute is a route a user kept for later. The route itself is stored
// in its export form.
type SavedRoute struct {
	ID        string
	UserID    string
	Name      string
	Document  route.Document
	CreatedAt time.Time
	UpdatedAt time.Time
}

// StopCount returns the number of intermediate stops.
func (s *SavedRoute) StopCount() int {
	if n := len(s.Document.Waypoints); n > 2 {
		return n - 2
	}
	return 0
}
