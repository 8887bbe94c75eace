package sso

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// PostgresStore implements Store on top of PostgreSQL. Protocol sub-configs,
// role mappings, and user attributes are stored as JSON columns.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a store over an existing connection pool
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const configColumns = `organization_id, domain, sso_provider, saml_config, oidc_config,
	oauth2_config, ldap_config, scim_config, jit_provisioning, enforce_sso,
	allowed_domains, session_timeout_minutes, mfa_required, role_mapping,
	created_at, updated_at`

// ReadConfig returns the auth config for an organization
func (s *PostgresStore) ReadConfig(ctx context.Context, orgID string) (*AuthConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+configColumns+`
		FROM enterprise_auth_configs
		WHERE organization_id = $1
	`, orgID)
	return scanConfig(row)
}

// ReadConfigByDomain resolves a config by authoritative or allowed email domain
func (s *PostgresStore) ReadConfigByDomain(ctx context.Context, domain string) (*AuthConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+configColumns+`
		FROM enterprise_auth_configs
		WHERE domain = $1 OR $1 = ANY(allowed_domains)
		LIMIT 1
	`, domain)
	return scanConfig(row)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanConfig(row rowScanner) (*AuthConfig, error) {
	var (
		cfg            AuthConfig
		samlJSON       []byte
		oidcJSON       []byte
		oauth2JSON     []byte
		ldapJSON       []byte
		scimJSON       []byte
		roleMapJSON    []byte
		allowedDomains pq.StringArray
	)

	err := row.Scan(
		&cfg.OrganizationID, &cfg.Domain, &cfg.Provider,
		&samlJSON, &oidcJSON, &oauth2JSON, &ldapJSON, &scimJSON,
		&cfg.JITProvisioning, &cfg.EnforceSSO, &allowedDomains,
		&cfg.SessionTimeoutMinutes, &cfg.MFARequired, &roleMapJSON,
		&cfg.CreatedAt, &cfg.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read auth config: %w", err)
	}

	cfg.AllowedDomains = allowedDomains

	if len(samlJSON) > 0 {
		cfg.SAMLConfig = &SAMLConfig{}
		if err := json.Unmarshal(samlJSON, cfg.SAMLConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal SAML config: %w", err)
		}
	}
	if len(oidcJSON) > 0 {
		cfg.OIDCConfig = &OIDCConfig{}
		if err := json.Unmarshal(oidcJSON, cfg.OIDCConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OIDC config: %w", err)
		}
	}
	if len(oauth2JSON) > 0 {
		cfg.OAuth2Config = &OAuth2Config{}
		if err := json.Unmarshal(oauth2JSON, cfg.OAuth2Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal OAuth2 config: %w", err)
		}
	}
	if len(ldapJSON) > 0 {
		cfg.LDAPConfig = &LDAPConfig{}
		if err := json.Unmarshal(ldapJSON, cfg.LDAPConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal LDAP config: %w", err)
		}
	}
	if len(scimJSON) > 0 {
		cfg.SCIMConfig = &SCIMConfig{}
		if err := json.Unmarshal(scimJSON, cfg.SCIMConfig); err != nil {
			return nil, fmt.Errorf("failed to unmarshal SCIM config: %w", err)
		}
	}
	if len(roleMapJSON) > 0 {
		if err := json.Unmarshal(roleMapJSON, &cfg.RoleMapping); err != nil {
			return nil, fmt.Errorf("failed to unmarshal role mapping: %w", err)
		}
	}

	return &cfg, nil
}

// WriteConfig persists a full auth config
func (s *PostgresStore) WriteConfig(ctx context.Context, cfg *AuthConfig) error {
	marshalOpt := func(v interface{}, what string) ([]byte, error) {
		if v == nil {
			return nil, nil
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s: %w", what, err)
		}
		return data, nil
	}

	var samlJSON, oidcJSON, oauth2JSON, ldapJSON, scimJSON, roleMapJSON []byte
	var err error
	if cfg.SAMLConfig != nil {
		if samlJSON, err = marshalOpt(cfg.SAMLConfig, "SAML config"); err != nil {
			return err
		}
	}
	if cfg.OIDCConfig != nil {
		if oidcJSON, err = marshalOpt(cfg.OIDCConfig, "OIDC config"); err != nil {
			return err
		}
	}
	if cfg.OAuth2Config != nil {
		if oauth2JSON, err = marshalOpt(cfg.OAuth2Config, "OAuth2 config"); err != nil {
			return err
		}
	}
	if cfg.LDAPConfig != nil {
		if ldapJSON, err = marshalOpt(cfg.LDAPConfig, "LDAP config"); err != nil {
			return err
		}
	}
	if cfg.SCIMConfig != nil {
		if scimJSON, err = marshalOpt(cfg.SCIMConfig, "SCIM config"); err != nil {
			return err
		}
	}
	if len(cfg.RoleMapping) > 0 {
		if roleMapJSON, err = marshalOpt(cfg.RoleMapping, "role mapping"); err != nil {
			return err
		}
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO enterprise_auth_configs (
			organization_id, domain, sso_provider, saml_config, oidc_config,
			oauth2_config, ldap_config, scim_config, jit_provisioning, enforce_sso,
			allowed_domains, session_timeout_minutes, mfa_required, role_mapping,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		ON CONFLICT (organization_id) DO UPDATE SET
			domain = $2, sso_provider = $3, saml_config = $4, oidc_config = $5,
			oauth2_config = $6, ldap_config = $7, scim_config = $8,
			jit_provisioning = $9, enforce_sso = $10, allowed_domains = $11,
			session_timeout_minutes = $12, mfa_required = $13, role_mapping = $14,
			updated_at = NOW()
	`, cfg.OrganizationID, cfg.Domain, cfg.Provider, samlJSON, oidcJSON,
		oauth2JSON, ldapJSON, scimJSON, cfg.JITProvisioning, cfg.EnforceSSO,
		pq.StringArray(cfg.AllowedDomains), cfg.SessionTimeoutMinutes,
		cfg.MFARequired, roleMapJSON)
	if err != nil {
		return fmt.Errorf("failed to write auth config: %w", err)
	}
	return nil
}

const userColumns = `id, organization_id, email, first_name, last_name, groups, roles,
	is_active, sso_provider, external_id, last_login, metadata, created_at, updated_at`

// UpsertUser creates or replaces a user record
func (s *PostgresStore) UpsertUser(ctx context.Context, user *User) error {
	var metadataJSON []byte
	if len(user.Metadata) > 0 {
		var err error
		metadataJSON, err = json.Marshal(user.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal user metadata: %w", err)
		}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enterprise_users (
			id, organization_id, email, first_name, last_name, groups, roles,
			is_active, sso_provider, external_id, last_login, metadata,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			email = $3, first_name = $4, last_name = $5, groups = $6, roles = $7,
			is_active = $8, sso_provider = $9, external_id = $10, last_login = $11,
			metadata = $12, updated_at = NOW()
	`, user.ID, user.OrganizationID, user.Email, user.FirstName, user.LastName,
		pq.StringArray(user.Groups), pq.StringArray(user.Roles), user.IsActive,
		user.Provider, user.ExternalID, user.LastLogin, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}
	return nil
}

// UserByEmail returns the user with the given email within an org
func (s *PostgresStore) UserByEmail(ctx context.Context, orgID, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM enterprise_users
		WHERE organization_id = $1 AND email = $2
	`, orgID, email)
	return scanUser(row)
}

// UserByExternalID returns the user matching the provider subject identifier
func (s *PostgresStore) UserByExternalID(ctx context.Context, orgID string, provider ProviderType, externalID string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM enterprise_users
		WHERE organization_id = $1 AND sso_provider = $2 AND external_id = $3
	`, orgID, provider, externalID)
	return scanUser(row)
}

func scanUser(row rowScanner) (*User, error) {
	var (
		user         User
		groups       pq.StringArray
		roles        pq.StringArray
		metadataJSON []byte
		lastLogin    sql.NullTime
	)

	err := row.Scan(
		&user.ID, &user.OrganizationID, &user.Email, &user.FirstName,
		&user.LastName, &groups, &roles, &user.IsActive, &user.Provider,
		&user.ExternalID, &lastLogin, &metadataJSON,
		&user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read user: %w", err)
	}

	user.Groups = groups
	user.Roles = roles
	if lastLogin.Valid {
		t := lastLogin.Time
		user.LastLogin = &t
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &user.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal user metadata: %w", err)
		}
	}

	return &user, nil
}

// ListActiveUsers returns all active users of an org
func (s *PostgresStore) ListActiveUsers(ctx context.Context, orgID string) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+`
		FROM enterprise_users
		WHERE organization_id = $1 AND is_active = true
		ORDER BY email
	`, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpsertSession mirrors a session into durable storage
func (s *PostgresStore) UpsertSession(ctx context.Context, session *Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO enterprise_sessions (
			id, user_id, organization_id, expires_at, last_activity,
			idle_timeout_seconds, sso_provider, ip_address, user_agent, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			expires_at = $4, last_activity = $5
	`, session.ID, session.UserID, session.OrganizationID, session.ExpiresAt,
		session.LastActivity, int64(session.IdleTimeout/time.Second),
		session.Provider, session.IPAddress, session.UserAgent, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert session: %w", err)
	}
	return nil
}

// DeleteSession removes a session mirror
func (s *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM enterprise_sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListSessions returns all mirrored sessions
func (s *PostgresStore) ListSessions(ctx context.Context) ([]*Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, organization_id, expires_at, last_activity,
			idle_timeout_seconds, sso_provider, ip_address, user_agent, created_at
		FROM enterprise_sessions
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var (
			session     Session
			idleSeconds int64
		)
		err := rows.Scan(&session.ID, &session.UserID, &session.OrganizationID,
			&session.ExpiresAt, &session.LastActivity, &idleSeconds,
			&session.Provider, &session.IPAddress, &session.UserAgent,
			&session.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		session.IdleTimeout = time.Duration(idleSeconds) * time.Second
		sessions = append(sessions, &session)
	}
	return sessions, rows.Err()
}
