// Package config provides application configuration management from environment variables.
//
// # Overview
//
// This package loads and validates configuration from environment variables with
// sensible defaults for all settings.
//
// # Configuration Structure
//
// Server settings:
//
//	FEDGATE_HOST="0.0.0.0"
//	FEDGATE_PORT="8080"
//	FEDGATE_HEALTH_PORT="9090"
//	FEDGATE_READ_TIMEOUT="15s"
//	FEDGATE_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	FEDGATE_STORAGE_TYPE="postgres"  # memory, postgres
//	FEDGATE_POSTGRES_URL="postgres://localhost/fedgate"
//	FEDGATE_POSTGRES_MAX_CONNS="10"
//
// Federation settings:
//
//	FEDGATE_BASE_URL="https://sso.example.com"
//	FEDGATE_SEED_FILE="/etc/fedgate/orgs.yaml"
//
// Observability settings:
//
//	FEDGATE_LOG_LEVEL="info"  # debug, info, warn, error
//	FEDGATE_METRICS_ENABLED="true"
//
// # Usage Example
//
// Load configuration:
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Storage: %s\n", cfg.Storage.Type)
//	fmt.Printf("Log level: %v\n", cfg.Observability.LogLevel)
//
// # Related Packages
//
//   - pkg/sso: Uses the federation base URL for SAML endpoints
//   - pkg/observability: Uses observability configuration
package config
