package savedroute

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/driveless/driveless/internal/geocoding"
	"github.com/driveless/driveless/internal/route"
	"github.com/driveless/driveless/internal/validation"
)

// Validation constants.
const (
	MaxNameLength = 80
	MaxListLimit  = 100
)

// WarmPublisher queues addresses for background geocoding.
type WarmPublisher interface {
	PublishGeocodeWarm(ctx context.Context, queries []string) error
}

// ServiceConfig holds configuration for the Service.
type ServiceConfig struct {
	Repo Repository

	// Publisher is optional; without it no warm-up jobs are queued.
	Publisher WarmPublisher

	Logger zerolog.Logger

	Clock func() time.Time
}

// Service provides saved route operations.
type Service struct {
	repo      Repository
	publisher WarmPublisher
	logger    zerolog.Logger
	now       func() time.Time
}

// NewService creates a new saved route service.
func NewService(cfg ServiceConfig) *Service {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		repo:      cfg.Repo,
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
		now:       clock,
	}
}

// Export is a downloadable route document.
type Export struct {
	Filename string
	Data     []byte
}

// Save stores r for userID. An empty name is replaced by one derived from
// the route.
func (s *Service) Save(ctx context.Context, userID, name string, r *route.Route) (*SavedRoute, error) {
	if r == nil {
		return nil, &validation.Error{Errors: []validation.FieldError{{Field: "route", Message: "is required"}}}
	}
	return s.save(ctx, userID, name, route.NewDocument(r))
}

// Import validates an exported document, rebuilds the route from it and
// saves the result.
func (s *Service) Import(ctx context.Context, userID, name string, data []byte) (*SavedRoute, error) {
	doc, err := route.ParseDocument(data)
	if err != nil {
		return nil, err
	}
	r, err := doc.Route()
	if err != nil {
		return nil, err
	}
	return s.save(ctx, userID, name, route.NewDocument(r))
}

func (s *Service) save(ctx context.Context, userID, name string, doc route.Document) (*SavedRoute, error) {
	name = geocoding.Sanitize(name)
	if name == "" {
		name = defaultName(doc)
	}
	if len([]rune(name)) > MaxNameLength {
		return nil, &validation.Error{Errors: []validation.FieldError{
			{Field: "name", Message: fmt.Sprintf("must be at most %d characters", MaxNameLength)},
		}}
	}

	now := s.now().UTC()
	sr := &SavedRoute{
		ID:        "rte_" + uuid.New().String()[:22],
		UserID:    userID,
		Name:      name,
		Document:  doc,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, sr); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("route_id", sr.ID).
		Str("user_id", userID).
		Int("stops", sr.StopCount()).
		Msg("route saved")

	s.warm(ctx, doc)
	return sr, nil
}

// warm queues the route's addresses so later optimizations hit the cache.
// Publishing failures are logged only.
func (s *Service) warm(ctx context.Context, doc route.Document) {
	if s.publisher == nil {
		return
	}

	seen := make(map[string]bool, len(doc.Waypoints))
	queries := make([]string, 0, len(doc.Waypoints))
	for _, wp := range doc.Waypoints {
		if wp.Address == "" || seen[wp.Address] {
			continue
		}
		seen[wp.Address] = true
		queries = append(queries, wp.Address)
	}
	if len(queries) == 0 {
		return
	}

	if err := s.publisher.PublishGeocodeWarm(ctx, queries); err != nil {
		s.logger.Warn().Err(err).Int("queries", len(queries)).Msg("failed to queue geocode warm-up")
	}
}

// List returns a page of userID's saved routes, newest first.
func (s *Service) List(ctx context.Context, userID string, limit int, cursor string) (*ListResult, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return s.repo.List(ctx, userID, ListOptions{Limit: limit, Cursor: cursor})
}

// Get returns one saved route.
func (s *Service) Get(ctx context.Context, userID, routeID string) (*SavedRoute, error) {
	return s.repo.GetByUserAndID(ctx, userID, routeID)
}

// Delete removes one saved route.
func (s *Service) Delete(ctx context.Context, userID, routeID string) error {
	if err := s.repo.Delete(ctx, userID, routeID); err != nil {
		return err
	}
	s.logger.Info().Str("route_id", routeID).Str("user_id", userID).Msg("route deleted")
	return nil
}

// Export returns the saved route's document as indented JSON.
func (s *Service) Export(ctx context.Context, userID, routeID string) (*Export, error) {
	sr, err := s.repo.GetByUserAndID(ctx, userID, routeID)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(sr.Document, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode route document: %w", err)
	}

	return &Export{
		Filename: exportFilename(sr.Name),
		Data:     data,
	}, nil
}

// Route rebuilds the saved route.
func (s *Service) Route(ctx context.Context, userID, routeID string) (*route.Route, error) {
	sr, err := s.repo.GetByUserAndID(ctx, userID, routeID)
	if err != nil {
		return nil, err
	}
	r, err := sr.Document.Route()
	if err != nil {
		return nil, errors.Join(fmt.Errorf("saved route %s is unreadable", routeID), err)
	}
	return r, nil
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

// exportFilename turns a route name into a download filename.
func exportFilename(name string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if slug == "" {
		slug = "route-export"
	}
	return slug + ".json"
}

func defaultName(doc route.Document) string {
	if len(doc.Waypoints) == 0 {
		return "Route"
	}
	last := doc.Waypoints[len(doc.Waypoints)-1]
	label := last.DisplayName
	if label == "" || label == route.DefaultLabel(last.Type) {
		label = last.Address
	}
	name := "Route to " + label
	if r := []rune(name); len(r) > MaxNameLength {
		name = string(r[:MaxNameLength])
	}
	return name
}
