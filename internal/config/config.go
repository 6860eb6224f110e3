// Package config reads service settings from the environment. A .env file
// in the working directory, when present, is loaded first and never
// overrides variables that are already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/joao-fontenele/primeuro-storefront/internal/collection"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
)

type Config struct {
	Port           string
	ServiceVersion string

	StoreBackend  string
	PostgresURL   string
	StoreReady    collection.RetryPolicy
	StatusSchema  domain.SchemaVersion
	CatalogPath   string
	CounterWrites bool
	Location      *time.Location

	KafkaBrokers []string
	KafkaTopic   string

	RedisAddr     string
	StatsCacheTTL time.Duration

	StorefrontServiceURL string
	AdminServiceURL      string
	EmailServiceURL      string

	MigrationsPath string
}

// Load reads every setting, applying defaultPort when PORT is unset.
func Load(defaultPort string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	schema, err := domain.ParseSchemaVersion(getEnv("STATUS_SCHEMA", "v3"))
	if err != nil {
		return nil, err
	}

	location, err := time.LoadLocation(getEnv("DASHBOARD_TIMEZONE", "UTC"))
	if err != nil {
		return nil, fmt.Errorf("DASHBOARD_TIMEZONE: %w", err)
	}

	maxAttempts, err := getEnvAsInt("STORE_READY_MAX_ATTEMPTS", 10)
	if err != nil {
		return nil, err
	}
	if maxAttempts < 1 {
		return nil, fmt.Errorf("STORE_READY_MAX_ATTEMPTS must be at least 1, got %d", maxAttempts)
	}
	readyDelay, err := getEnvAsDuration("STORE_READY_DELAY", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	counterWrites, err := getEnvAsBool("POSTS_COUNTER_WRITES", false)
	if err != nil {
		return nil, err
	}
	statsTTL, err := getEnvAsDuration("STATS_CACHE_TTL", 30*time.Second)
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:           getEnv("PORT", defaultPort),
		ServiceVersion: getEnv("SERVICE_VERSION", "0.1.0"),

		StoreBackend:  getEnv("STORE_BACKEND", "postgres"),
		PostgresURL:   os.Getenv("POSTGRES_URL"),
		StoreReady:    collection.RetryPolicy{MaxAttempts: uint(maxAttempts), Delay: readyDelay},
		StatusSchema:  schema,
		CatalogPath:   os.Getenv("CATALOG_PATH"),
		CounterWrites: counterWrites,
		Location:      location,

		KafkaBrokers: getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "orders.events"),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		StatsCacheTTL: statsTTL,

		StorefrontServiceURL: os.Getenv("STOREFRONT_SERVICE_URL"),
		AdminServiceURL:      os.Getenv("ADMIN_SERVICE_URL"),
		EmailServiceURL:      os.Getenv("EMAIL_SERVICE_URL"),

		MigrationsPath: getEnv("MIGRATIONS_PATH", "file://migrations"),
	}, nil
}

// Vocabulary returns the status vocabulary selected by STATUS_SCHEMA.
func (c *Config) Vocabulary() *domain.Vocabulary {
	vocab, err := domain.VocabularyFor(c.StatusSchema)
	if err != nil {
		panic(err)
	}
	return vocab
}

// Require fails with the names of every empty value.
func Require(values map[string]string) error {
	var missing []string
	for name, v := range values {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	slices.Sort(missing)
	return fmt.Errorf("required environment variables missing: %s", strings.Join(missing, ", "))
}

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) (int, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvAsDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvAsBool(key string, fallback bool) (bool, error) {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
