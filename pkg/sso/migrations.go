package sso

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all federation migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create enterprise_auth_configs table",
			SQL: `
				CREATE TABLE IF NOT EXISTS enterprise_auth_configs (
					organization_id VARCHAR(255) PRIMARY KEY,
					domain VARCHAR(255) NOT NULL,
					sso_provider VARCHAR(32) NOT NULL,
					saml_config JSONB,
					oidc_config JSONB,
					oauth2_config JSONB,
					ldap_config JSONB,
					scim_config JSONB,
					jit_provisioning BOOLEAN NOT NULL DEFAULT FALSE,
					enforce_sso BOOLEAN NOT NULL DEFAULT FALSE,
					allowed_domains TEXT[] NOT NULL DEFAULT '{}',
					session_timeout_minutes INT NOT NULL DEFAULT 0,
					mfa_required BOOLEAN NOT NULL DEFAULT FALSE,
					role_mapping JSONB,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_enterprise_auth_configs_domain ON enterprise_auth_configs(domain);
				CREATE INDEX idx_enterprise_auth_configs_allowed_domains ON enterprise_auth_configs USING GIN(allowed_domains);
			`,
		},
		{
			Version:     2,
			Description: "Create enterprise_users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS enterprise_users (
					id VARCHAR(64) PRIMARY KEY,
					organization_id VARCHAR(255) NOT NULL,
					email VARCHAR(320) NOT NULL,
					first_name VARCHAR(255) NOT NULL DEFAULT '',
					last_name VARCHAR(255) NOT NULL DEFAULT '',
					groups TEXT[] NOT NULL DEFAULT '{}',
					roles TEXT[] NOT NULL DEFAULT '{}',
					is_active BOOLEAN NOT NULL DEFAULT TRUE,
					sso_provider VARCHAR(32) NOT NULL DEFAULT '',
					external_id VARCHAR(255) NOT NULL DEFAULT '',
					last_login TIMESTAMPTZ,
					metadata JSONB,
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
					UNIQUE(organization_id, email)
				);

				CREATE INDEX idx_enterprise_users_external_id
					ON enterprise_users(organization_id, sso_provider, external_id);
				CREATE INDEX idx_enterprise_users_active ON enterprise_users(organization_id, is_active);
			`,
		},
		{
			Version:     3,
			Description: "Create enterprise_sessions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS enterprise_sessions (
					id VARCHAR(64) PRIMARY KEY,
					user_id VARCHAR(64) NOT NULL,
					organization_id VARCHAR(255) NOT NULL,
					expires_at TIMESTAMPTZ NOT NULL,
					last_activity TIMESTAMPTZ NOT NULL,
					idle_timeout_seconds BIGINT NOT NULL,
					sso_provider VARCHAR(32) NOT NULL DEFAULT '',
					ip_address VARCHAR(64) NOT NULL DEFAULT '',
					user_agent TEXT NOT NULL DEFAULT '',
					created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_enterprise_sessions_user_id ON enterprise_sessions(user_id);
				CREATE INDEX idx_enterprise_sessions_expires_at ON enterprise_sessions(expires_at);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS federation_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM federation_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	for _, migration := range GetMigrations() {
		if appliedVersions[migration.Version] {
			continue
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO federation_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}
	}

	return nil
}
