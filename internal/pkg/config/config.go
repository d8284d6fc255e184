package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type PostgresConfig struct {
	Host     string
	Port     string
	DB       string
	Username string
	Password string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

type RepositoriesConfig struct {
	Postgres PostgresConfig
}

// RecommenderConfig tunes the ranking engine. Weights default to 1 so every
// signal contributes equally unless a deployment says otherwise.
type RecommenderConfig struct {
	ProximityWeight    float64
	FriendsWeight      float64
	ParticipantsWeight float64
	ViewsWeight        float64
	SearchesWeight     float64
	CacheTTL           time.Duration
	PopularityLookback int // days; 0 means all-time
}

type ObservabilityConfig struct {
	OTLPEndpoint string
	MetricsAddr  string
}

type Config struct {
	Repositories    RepositoriesConfig
	Recommender     RecommenderConfig
	Observability   ObservabilityConfig
	SnapshotCadence time.Duration
}

func Load() (*Config, error) {
	cfg := &Config{
		Repositories: RepositoriesConfig{
			Postgres: PostgresConfig{
				Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
				Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
				DB:       getEnvOrDefault("POSTGRES_DB", "trailmates"),
				Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
				Password: getEnvOrDefault("POSTGRES_PASSWORD", ""),
				SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
				MaxConns: 30,
				MinConns: 5,
			},
		},
		Recommender: RecommenderConfig{
			ProximityWeight:    getFloatOrDefault("RECOMMENDER_PROXIMITY_WEIGHT", 1),
			FriendsWeight:      getFloatOrDefault("RECOMMENDER_FRIENDS_WEIGHT", 1),
			ParticipantsWeight: getFloatOrDefault("RECOMMENDER_PARTICIPANTS_WEIGHT", 1),
			ViewsWeight:        getFloatOrDefault("RECOMMENDER_VIEWS_WEIGHT", 1),
			SearchesWeight:     getFloatOrDefault("RECOMMENDER_SEARCHES_WEIGHT", 1),
			CacheTTL:           getDurationOrDefault("RECOMMENDER_CACHE_TTL", 2*time.Minute),
			PopularityLookback: getIntOrDefault("RECOMMENDER_POPULARITY_LOOKBACK_DAYS", 0),
		},
		Observability: ObservabilityConfig{
			OTLPEndpoint: getEnvOrDefault("OTLP_ENDPOINT", "localhost:4318"),
			MetricsAddr:  getEnvOrDefault("METRICS_ADDR", ":9464"),
		},
		SnapshotCadence: getDurationOrDefault("SNAPSHOT_CADENCE", time.Hour),
	}

	if cfg.Repositories.Postgres.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD environment variable is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
