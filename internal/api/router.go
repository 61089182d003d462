// Package api provides the HTTP API for DriveLess.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/driveless/driveless/internal/api/handler"
	"github.com/driveless/driveless/internal/api/middleware"
	"github.com/driveless/driveless/internal/provider/resilience"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// TokenValidator checks bearer tokens for /v1/me and optional auth.
	TokenValidator middleware.TokenValidator

	Optimizer   handler.Optimizer
	Geocoder    handler.Geocoder
	Usage       handler.UsageLimiter
	RunMetrics  handler.RunRecorder
	SavedRoutes handler.SavedRouteService

	// Checks are pinged by /v1/ops/ready and /v1/ops/status.
	Checks   []handler.DependencyCheck
	Registry *resilience.Registry
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "driveless-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type
	r.Use(middleware.RequireJSON)                // JSON request bodies

	// Initialize handlers
	opsHandler := handler.NewOpsHandler(handler.OpsHandlerConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Checks:    cfg.Checks,
		Registry:  cfg.Registry,
	})
	routeHandler := handler.NewRouteHandler(handler.RouteHandlerConfig{
		Optimizer: cfg.Optimizer,
		Usage:     cfg.Usage,
		Metrics:   cfg.RunMetrics,
		Logger:    cfg.Logger,
	})
	geocodeHandler := handler.NewGeocodeHandler(cfg.Geocoder, cfg.Logger)
	usageHandler := handler.NewUsageHandler(cfg.Usage, cfg.Logger)
	savedRouteHandler := handler.NewSavedRouteHandler(cfg.SavedRoutes, cfg.Logger)

	authMiddleware := middleware.Auth(cfg.TokenValidator)
	optionalAuth := middleware.OptionalAuth(cfg.TokenValidator)

	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min per IP
	standardRateLimit := middleware.RateLimitByUser(middleware.StandardRateLimit) // 100 req/min, user or IP

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.Get("/status", opsHandler.SystemStatus)
		})

		// Public endpoints, personalised when a token is sent
		r.Group(func(r chi.Router) {
			r.Use(optionalAuth)

			r.With(expensiveRateLimit).Post("/routes:optimize", routeHandler.Optimize)

			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/geocode", geocodeHandler.Geocode)
				r.Get("/stop-categories", routeHandler.ListStopCategories)
				r.Get("/usage", usageHandler.GetUsage)
			})
		})

		// Me endpoints (authenticated) - user-based rate limiting
		r.Route("/me", func(r chi.Router) {
			r.Use(authMiddleware)
			r.Use(middleware.RateLimitByUser(middleware.StandardRateLimit)) // 100 req/min per user

			r.Get("/routes", savedRouteHandler.ListRoutes)
			r.Post("/routes", savedRouteHandler.CreateRoute)
			r.Post("/routes:import", savedRouteHandler.ImportRoute)
			r.Route("/routes/{routeId}", func(r chi.Router) {
				r.Get("/", savedRouteHandler.GetRoute)
				r.Delete("/", savedRouteHandler.DeleteRoute)
				r.Get("/export", savedRouteHandler.ExportRoute)
			})
		})
	})

	return r
}
