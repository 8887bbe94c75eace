package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/lockhaven/fedgate/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Storage       StorageConfig
	Federation    FederationConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// StorageConfig holds backing-store configuration
type StorageConfig struct {
	// Type selects the store backend: "postgres" or "memory"
	Type        string
	PostgresURL string
	MaxConns    int
}

// FederationConfig holds identity-federation settings
type FederationConfig struct {
	// BaseURL is the externally reachable URL of this service; SAML
	// service-provider endpoints are derived from it
	BaseURL string

	// SeedFile optionally points at a YAML file of org auth configs
	// loaded at startup and hot-reloaded on change
	SeedFile string
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel
	MetricsEnabled bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Storage:       loadStorageConfig(),
		Federation:    loadFederationConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadServerConfig loads server configuration from environment
func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("FEDGATE_HOST", "0.0.0.0"),
		Port:            getEnv("FEDGATE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("FEDGATE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("FEDGATE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("FEDGATE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("FEDGATE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("FEDGATE_HEALTH_PORT", "9090"),
	}
}

// loadStorageConfig loads backing-store configuration from environment
func loadStorageConfig() StorageConfig {
	return StorageConfig{
		Type:        getEnv("FEDGATE_STORAGE_TYPE", "memory"),
		PostgresURL: getEnv("FEDGATE_POSTGRES_URL", ""),
		MaxConns:    getEnvInt("FEDGATE_POSTGRES_MAX_CONNS", 10),
	}
}

// loadFederationConfig loads federation settings from environment
func loadFederationConfig() FederationConfig {
	return FederationConfig{
		BaseURL:  strings.TrimRight(getEnv("FEDGATE_BASE_URL", "http://localhost:8080"), "/"),
		SeedFile: getEnv("FEDGATE_SEED_FILE", ""),
	}
}

// loadObservabilityConfig loads observability configuration from environment
func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:       observability.ParseLogLevel(getEnv("FEDGATE_LOG_LEVEL", "info")),
		MetricsEnabled: getEnvBool("FEDGATE_METRICS_ENABLED", true),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Storage.Type {
	case "memory":
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be memory or postgres)", c.Storage.Type)
	}

	if c.Federation.BaseURL == "" {
		return fmt.Errorf("federation base URL is required")
	}
	if !strings.HasPrefix(c.Federation.BaseURL, "http://") && !strings.HasPrefix(c.Federation.BaseURL, "https://") {
		return fmt.Errorf("federation base URL must be http or https")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
