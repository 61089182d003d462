// Package config loads DriveLess configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/driveless/driveless/internal/database"
)

// Backends and providers accepted in the environment.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"

	ProviderGoogle    = "google"
	ProviderHaversine = "haversine"
)

// Config is the process configuration shared by cmd/api and cmd/worker.
type Config struct {
	Port string `env:"APP_PORT" validate:"required,numeric"`
	Env  string `env:"APP_ENV" validate:"oneof=development test staging production"`

	RequireTLS bool `env:"REQUIRE_TLS"`

	OTelEnabled  bool   `env:"OTEL_ENABLED"`
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" validate:"required_if=OTelEnabled true"`
	// OTelSampleRatio is the fraction of new traces recorded; 0 records all.
	OTelSampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG" validate:"gte=0,lte=1"`

	GoogleMapsAPIKey string `env:"GOOGLE_MAPS_API_KEY" validate:"required_if=Env production"`
	GeocodeRegion    string `env:"GEOCODE_REGION"`
	RoutingProvider  string `env:"ROUTING_PROVIDER" validate:"oneof=google haversine"`

	GeocodeCacheTTL time.Duration `env:"GEOCODE_CACHE_TTL" validate:"gt=0"`
	CacheBackend    string        `env:"CACHE_BACKEND" validate:"oneof=memory redis postgres"`
	StorageBackend  string        `env:"STORAGE_BACKEND" validate:"oneof=memory postgres"`
	RedisURL        string        `env:"REDIS_URL" validate:"required_if=CacheBackend redis"`

	MaxStops      int    `env:"MAX_STOPS" validate:"min=1,max=25"`
	TrafficPolicy string `env:"TRAFFIC_REFINEMENT_POLICY" validate:"oneof=lenient strict"`
	TrafficModel  string `env:"TRAFFIC_MODEL" validate:"oneof=best_guess pessimistic optimistic"`
	DailyAPILimit int    `env:"DAILY_API_LIMIT" validate:"min=1"`

	JWTSigningKey string `env:"JWT_SIGNING_KEY" validate:"required_if=Env production"`
	JWTIssuer     string `env:"JWT_ISSUER"`
	JWTAudience   string `env:"JWT_AUDIENCE"`

	PubSubProjectID    string `env:"PUBSUB_PROJECT_ID"`
	PubSubTopic        string `env:"PUBSUB_TOPIC" validate:"required_with=PubSubProjectID"`
	PubSubSubscription string `env:"PUBSUB_SUBSCRIPTION"`

	Database database.Config `validate:"-"`
}

// Load reads a .env file when one exists, then the environment, and
// validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getEnv("APP_PORT", "8080"),
		Env:          getEnv("APP_ENV", "development"),
		RequireTLS:   getEnvAsBool("REQUIRE_TLS", false),
		OTelEnabled:  getEnvAsBool("OTEL_ENABLED", false),
		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),

		GoogleMapsAPIKey: os.Getenv("GOOGLE_MAPS_API_KEY"),
		GeocodeRegion:    os.Getenv("GEOCODE_REGION"),
		RoutingProvider:  getEnv("ROUTING_PROVIDER", ProviderGoogle),

		CacheBackend:   getEnv("CACHE_BACKEND", BackendMemory),
		StorageBackend: getEnv("STORAGE_BACKEND", BackendMemory),
		RedisURL:       os.Getenv("REDIS_URL"),

		TrafficPolicy: getEnv("TRAFFIC_REFINEMENT_POLICY", "lenient"),
		TrafficModel:  getEnv("TRAFFIC_MODEL", "best_guess"),

		JWTSigningKey: os.Getenv("JWT_SIGNING_KEY"),
		JWTIssuer:     getEnv("JWT_ISSUER", "driveless"),
		JWTAudience:   getEnv("JWT_AUDIENCE", "driveless-api"),

		PubSubProjectID:    os.Getenv("PUBSUB_PROJECT_ID"),
		PubSubTopic:        getEnv("PUBSUB_TOPIC", "driveless-jobs"),
		PubSubSubscription: getEnv("PUBSUB_SUBSCRIPTION", "driveless-worker"),

		Database: database.ConfigFromEnv(),
	}

	var err error
	if cfg.GeocodeCacheTTL, err = getEnvAsDuration("GEOCODE_CACHE_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.OTelSampleRatio, err = getEnvAsFloat("OTEL_TRACES_SAMPLER_ARG", 0); err != nil {
		return nil, err
	}
	if cfg.MaxStops, err = getEnvAsInt("MAX_STOPS", 25); err != nil {
		return nil, err
	}
	if cfg.DailyAPILimit, err = getEnvAsInt("DAILY_API_LIMIT", 25); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate checks field constraints and backend combinations.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			problems = append(problems, fmt.Sprintf("%s failed %q (value %q)", fe.Field(), fe.Tag(), fmt.Sprint(fe.Value())))
		}
	}

	if (c.CacheBackend == BackendPostgres || c.StorageBackend == BackendPostgres) && !c.Database.Enabled() {
		problems = append(problems, "DB_HOST is required for the postgres backend")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction reports whether the process runs in production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// PubSubEnabled reports whether warm-up jobs go through Pub/Sub.
func (c *Config) PubSubEnabled() bool {
	return c.PubSubProjectID != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvAsInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvAsFloat(key string, fallback float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return f, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return d, nil
}
