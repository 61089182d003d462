package savedroute

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing and local runs. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu     sync.RWMutex
	routes map[string]*SavedRoute
}

// NewInMemoryRepository creates a new in-memory saved route repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		routes: make(map[string]*SavedRoute),
	}
}

// GetByUserAndID retrieves a saved route by user ID and route ID.
func (r *InMemoryRepository) GetByUserAndID(_ context.Context, userID, routeID string) (*SavedRoute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sr, ok := r.routes[routeID]
	if !ok || sr.UserID != userID {
		return nil, ErrRouteNotFound
	}

	cpy := *sr
	return &cpy, nil
}

// List retrieves a user's saved routes, newest first.
func (r *InMemoryRepository) List(_ context.Context, userID string, opts ListOptions) (*ListResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var routes []*SavedRoute
	for _, sr := range r.routes {
		if sr.UserID == userID {
			cpy := *sr
			routes = append(routes, &cpy)
		}
	}

	sort.Slice(routes, func(i, j int) bool {
		if !routes[i].CreatedAt.Equal(routes[j].CreatedAt) {
			return routes[i].CreatedAt.After(routes[j].CreatedAt)
		}
		return routes[i].ID > routes[j].ID
	})

	if opts.Cursor != "" {
		for i, sr := range routes {
			if sr.ID == opts.Cursor {
				routes = routes[i+1:]
				break
			}
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	result := &ListResult{Items: routes}
	if len(routes) > limit {
		result.Items = routes[:limit]
		result.NextCursor = routes[limit-1].ID
	}

	return result, nil
}

// Create stores a new saved route.
func (r *InMemoryRepository) Create(_ context.Context, sr *SavedRoute) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cpy := *sr
	r.routes[sr.ID] = &cpy
	return nil
}

// Delete removes a user's saved route.
func (r *InMemoryRepository) Delete(_ context.Context, userID, routeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	sr, ok := r.routes[routeID]
	if !ok || sr.UserID != userID {
		return ErrRouteNotFound
	}
	delete(r.routes, routeID)
	return nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
