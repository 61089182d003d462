// Package main provides the entrypoint for the DriveLess geocode warm-up worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/driveless/driveless/internal/config"
	"github.com/driveless/driveless/internal/database"
	"github.com/driveless/driveless/internal/geocoding"
	geogoogle "github.com/driveless/driveless/internal/geocoding/google"
	"github.com/driveless/driveless/internal/kvstore"
	"github.com/driveless/driveless/internal/provider/resilience"
	"github.com/driveless/driveless/internal/telemetry"
	"github.com/driveless/driveless/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "driveless-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting DriveLess worker")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if !cfg.PubSubEnabled() {
		log.Fatal().Msg("PUBSUB_PROJECT_ID is required for the worker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	providerMetrics, err := telemetry.NewProviderMetrics(tp.Meter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	// The worker only helps when it writes to the cache the API reads.
	var store kvstore.Store
	switch cfg.CacheBackend {
	case config.BackendRedis:
		client, redisErr := kvstore.NewRedisClient(ctx, cfg.RedisURL)
		if redisErr != nil {
			log.Fatal().Err(redisErr).Msg("failed to connect to redis")
		}
		defer func() { _ = client.Close() }()
		store = kvstore.NewRedisStore(kvstore.RedisConfig{
			Client:     client,
			Prefix:     "driveless:",
			Expiration: cfg.GeocodeCacheTTL,
		})
	case config.BackendPostgres:
		pool, dbErr := database.Connect(ctx, cfg.Database)
		if dbErr != nil {
			log.Fatal().Err(dbErr).Msg("failed to connect to database")
		}
		defer pool.Close()
		store = kvstore.NewPostgresStore(pool)
	default:
		log.Warn().Msg("memory cache backend - warmed entries are not shared with the API")
		store = kvstore.NewMemoryStore()
	}

	registry := resilience.NewRegistry()
	resolver := geocoding.NewResolver(geocoding.ResolverConfig{
		Provider: geogoogle.NewClient(geogoogle.ClientConfig{
			APIKey:   cfg.GoogleMapsAPIKey,
			Region:   cfg.GeocodeRegion,
			Registry: registry,
			Logger:   log,
		}),
		Store:    store,
		Logger:   log,
		CacheTTL: cfg.GeocodeCacheTTL,
		Metrics:  providerMetrics,
	})

	warmJob := worker.NewWarmJob(worker.WarmJobConfig{
		Config:   worker.DefaultWarmConfig(),
		Geocoder: resolver,
		Logger:   log,
	})

	handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
		ProjectID:        cfg.PubSubProjectID,
		SubscriptionName: cfg.PubSubSubscription,
		WarmJob:          warmJob,
		Logger:           log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create pubsub handler")
	}
	defer func() { _ = handler.Close() }()

	// Worker also exposes a health endpoint for Cloud Run
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":    "healthy",
			"version":   Version,
			"providers": registry.OverallStatus(),
			"warm":      warmJob.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health check server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	go func() {
		if err := handler.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("pubsub receive stopped")
			cancel()
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
