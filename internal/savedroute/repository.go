package savedroute

import "context"

// DefaultListLimit is used when ListOptions.Limit is not set.
const DefaultListLimit = 50

// ListOptions contains options for listing saved routes.
type ListOptions struct {
	Limit int
	// Cursor is the id of the last route of the previous page.
	Cursor string
}

// ListResult contains the results of listing saved routes, newest first.
type ListResult struct {
	Items      []*SavedRoute
	NextCursor string
}

// Repository defines the interface for saved route persistence.
type Repository interface {
	// GetByUserAndID returns ErrRouteNotFound if the route doesn't exist or
	// doesn't belong to the user.
	GetByUserAndID(ctx context.Context, userID, routeID string) (*SavedRoute, error)

	List(ctx context.Context, userID string, opts ListOptions) (*ListResult, error)

	Create(ctx context.Context, r *SavedRoute) error

	// Delete returns ErrRouteNotFound if nothing was deleted.
	Delete(ctx context.Context, userID, routeID string) error
}
