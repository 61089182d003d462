package savedroute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository backed by
// the saved_routes table:
//
//	CREATE TABLE saved_routes (
//	    id         TEXT PRIMARY KEY,
//	    user_id    TEXT NOT NULL,
//	    name       TEXT NOT NULL,
//	    document   JSONB NOT NULL,
//	    created_at TIMESTAMPTZ NOT NULL,
//	    updated_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX saved_routes_user_created ON saved_routes (user_id, created_at DESC, id DESC);
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL saved route repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const selectColumns = `id, user_id, name, document, created_at, updated_at`

// GetByUserAndID retrieves a saved route by user ID and route ID.
func (r *PostgresRepository) GetByUserAndID(ctx context.Context, userID, routeID string) (*SavedRoute, error) {
	query := `SELECT ` + selectColumns + ` FROM saved_routes WHERE id = $1 AND user_id = $2`

	sr, err := scanSavedRoute(r.pool.QueryRow(ctx, query, routeID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrRouteNotFound
		}
		return nil, err
	}
	return sr, nil
}

// List retrieves a user's saved routes, newest first.
func (r *PostgresRepository) List(ctx context.Context, userID string, opts ListOptions) (*ListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	// Fetch one extra to determine if there are more results
	fetchLimit := limit + 1

	var (
		rows pgx.Rows
		err  error
	)
	if opts.Cursor == "" {
		query := `
			SELECT ` + selectColumns + `
			FROM saved_routes
			WHERE user_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		rows, err = r.pool.Query(ctx, query, userID, fetchLimit)
	} else {
		query := `
			SELECT ` + selectColumns + `
			FROM saved_routes
			WHERE user_id = $1
			  AND (created_at, id) < (SELECT created_at, id FROM saved_routes WHERE id = $3 AND user_id = $1)
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`
		rows, err = r.pool.Query(ctx, query, userID, fetchLimit, opts.Cursor)
	}
	if err != nil {
		return nil, fmt.Errorf("list saved routes: %w", err)
	}
	defer rows.Close()

	var routes []*SavedRoute
	for rows.Next() {
		sr, err := scanSavedRoute(rows)
		if err != nil {
			return nil, err
		}
		routes = append(routes, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &ListResult{Items: routes}
	if len(routes) > limit {
		result.Items = routes[:limit]
		result.NextCursor = routes[limit-1].ID
	}
	return result, nil
}

// Create inserts a new saved route.
func (r *PostgresRepository) Create(ctx context.Context, sr *SavedRoute) error {
	doc, err := json.Marshal(sr.Document)
	if err != nil {
		return fmt.Errorf("encode route document: %w", err)
	}

	query := `
		INSERT INTO saved_routes (id, user_id, name, document, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, $5, $6)
	`
	if _, err := r.pool.Exec(ctx, query, sr.ID, sr.UserID, sr.Name, string(doc), sr.CreatedAt, sr.UpdatedAt); err != nil {
		return fmt.Errorf("insert saved route: %w", err)
	}
	return nil
}

// Delete removes a user's saved route.
func (r *PostgresRepository) Delete(ctx context.Context, userID, routeID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM saved_routes WHERE id = $1 AND user_id = $2`, routeID, userID)
	if err != nil {
		return fmt.Errorf("delete saved route: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRouteNotFound
	}
	return nil
}

func scanSavedRoute(row pgx.Row) (*SavedRoute, error) {
	var (
		sr  SavedRoute
		doc []byte
	)
	if err := row.Scan(&sr.ID, &sr.UserID, &sr.Name, &doc, &sr.CreatedAt, &sr.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(doc, &sr.Document); err != nil {
		return nil, fmt.Errorf("decode route document %s: %w", sr.ID, err)
	}
	return &sr, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
