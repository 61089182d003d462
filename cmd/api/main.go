// Package main provides the entrypoint for the DriveLess API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/driveless/driveless/internal/api"
	"github.com/driveless/driveless/internal/api/handler"
	"github.com/driveless/driveless/internal/api/middleware"
	"github.com/driveless/driveless/internal/auth"
	"github.com/driveless/driveless/internal/config"
	"github.com/driveless/driveless/internal/database"
	"github.com/driveless/driveless/internal/geocoding"
	geogoogle "github.com/driveless/driveless/internal/geocoding/google"
	"github.com/driveless/driveless/internal/kvstore"
	"github.com/driveless/driveless/internal/optimizer"
	"github.com/driveless/driveless/internal/provider/resilience"
	"github.com/driveless/driveless/internal/routing"
	routegoogle "github.com/driveless/driveless/internal/routing/google"
	"github.com/driveless/driveless/internal/routing/haversine"
	"github.com/driveless/driveless/internal/savedroute"
	"github.com/driveless/driveless/internal/telemetry"
	"github.com/driveless/driveless/internal/usage"
	"github.com/driveless/driveless/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "driveless-api"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting DriveLess API")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx := context.Background()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		OTLPEndpoint:   cfg.OTLPEndpoint,
		Enabled:        cfg.OTelEnabled,
		SampleRatio:    cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.OTelEnabled {
		log.Info().
			Str("otlp_endpoint", cfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	httpMetrics, err := middleware.NewMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	providerMetrics, err := telemetry.NewProviderMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}
	optimizerMetrics, err := telemetry.NewOptimizerMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize optimizer metrics")
	}

	var checks []handler.DependencyCheck

	var pool *pgxpool.Pool
	if cfg.Database.Enabled() {
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer pool.Close()
		if err := database.EnsureSchema(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to apply database schema")
		}
		checks = append(checks, handler.DependencyCheck{Name: "postgres", Ping: pool.Ping})
		log.Info().
			Str("host", cfg.Database.Host).
			Int("port", cfg.Database.Port).
			Str("database", cfg.Database.Database).
			Msg("database connected")
	}

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = kvstore.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer func() { _ = redisClient.Close() }()
		checks = append(checks, handler.DependencyCheck{
			Name: "redis",
			Ping: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
		log.Info().Msg("redis connected")
	}

	// Geocode cache
	var geocodeStore kvstore.Store
	switch cfg.CacheBackend {
	case config.BackendRedis:
		geocodeStore = kvstore.NewRedisStore(kvstore.RedisConfig{
			Client:     redisClient,
			Prefix:     "driveless:",
			Expiration: cfg.GeocodeCacheTTL,
		})
	case config.BackendPostgres:
		geocodeStore = kvstore.NewPostgresStore(pool)
	default:
		geocodeStore = kvstore.NewMemoryStore()
	}
	log.Info().Str("backend", cfg.CacheBackend).Msg("geocode cache initialized")

	// Providers
	registry := resilience.NewRegistry()

	if cfg.GoogleMapsAPIKey == "" {
		log.Warn().Msg("GOOGLE_MAPS_API_KEY not set - geocoding requests will fail")
	}
	geocoder := geogoogle.NewClient(geogoogle.ClientConfig{
		APIKey:   cfg.GoogleMapsAPIKey,
		Region:   cfg.GeocodeRegion,
		Registry: registry,
		Logger:   log,
	})

	var directions routing.Provider
	switch cfg.RoutingProvider {
	case config.ProviderHaversine:
		directions = haversine.New(haversine.Config{Logger: log})
	default:
		directions = routegoogle.NewClient(routegoogle.ClientConfig{
			APIKey:   cfg.GoogleMapsAPIKey,
			Registry: registry,
			Logger:   log,
		})
	}
	log.Info().Str("provider", directions.Name()).Msg("routing provider initialized")

	resolver := geocoding.NewResolver(geocoding.ResolverConfig{
		Provider: geocoder,
		Store:    geocodeStore,
		Logger:   log,
		CacheTTL: cfg.GeocodeCacheTTL,
		Metrics:  providerMetrics,
	})

	engine := routing.NewEngine(routing.EngineConfig{
		Provider:      directions,
		Logger:        log,
		MaxStops:      cfg.MaxStops,
		TrafficPolicy: routing.TrafficPolicy(cfg.TrafficPolicy),
		TrafficModel:  routing.TrafficModel(cfg.TrafficModel),
	})

	optimizerService := optimizer.NewService(optimizer.Config{
		Geocoder: resolver,
		Router:   engine,
		Logger:   log,
		OnTransition: func(_ string, from, to optimizer.State) {
			optimizerMetrics.RecordTransition(string(from), string(to))
		},
	})

	// Daily usage
	var counter usage.Counter
	if redisClient != nil {
		counter = usage.NewRedisCounter(redisClient, "driveless:")
	} else {
		counter = usage.NewMemoryCounter(nil)
	}
	limiter := usage.NewLimiter(usage.LimiterConfig{
		Counter: counter,
		Limit:   cfg.DailyAPILimit,
		Logger:  log,
	})

	// Saved routes
	var savedRouteRepo savedroute.Repository
	if cfg.StorageBackend == config.BackendPostgres {
		savedRouteRepo = savedroute.NewPostgresRepository(pool)
	} else {
		savedRouteRepo = savedroute.NewInMemoryRepository()
	}

	var warmPublisher savedroute.WarmPublisher
	if cfg.PubSubEnabled() {
		publisher, pubErr := worker.NewPublisher(ctx, worker.PublisherConfig{
			ProjectID: cfg.PubSubProjectID,
			Topic:     cfg.PubSubTopic,
			Logger:    log,
		})
		if pubErr != nil {
			log.Fatal().Err(pubErr).Msg("failed to create pubsub publisher")
		}
		defer func() { _ = publisher.Close() }()
		warmPublisher = publisher
		log.Info().Str("topic", cfg.PubSubTopic).Msg("geocode warm-up publisher initialized")
	}

	savedRouteService := savedroute.NewService(savedroute.ServiceConfig{
		Repo:      savedRouteRepo,
		Publisher: warmPublisher,
		Logger:    log,
	})
	log.Info().Str("backend", cfg.StorageBackend).Msg("saved route service initialized")

	signingKey := cfg.JWTSigningKey
	if signingKey == "" {
		signingKey = "local-dev-signing-key-change-in-production"
		log.Warn().Msg("using default JWT signing key - not secure for production")
	}
	jwtService := auth.NewJWTService(auth.JWTConfig{
		SigningKey: signingKey,
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
	})

	router := api.NewRouter(api.RouterConfig{
		Version:        Version,
		BuildTime:      BuildTime,
		Logger:         log,
		ServiceName:    serviceName,
		Metrics:        httpMetrics,
		RequireTLS:     cfg.RequireTLS,
		TokenValidator: jwtService,
		Optimizer:      optimizerService,
		Geocoder:       resolver,
		Usage:          limiter,
		RunMetrics:     optimizerMetrics,
		SavedRoutes:    savedRouteService,
		Checks:         checks,
		Registry:       registry,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
