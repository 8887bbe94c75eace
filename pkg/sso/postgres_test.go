package sso

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

func configRowColumns() []string {
	return []string{
		"organization_id", "domain", "sso_provider", "saml_config", "oidc_config",
		"oauth2_config", "ldap_config", "scim_config", "jit_provisioning", "enforce_sso",
		"allowed_domains", "session_timeout_minutes", "mfa_required", "role_mapping",
		"created_at", "updated_at",
	}
}

func TestPostgresReadConfig(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows(configRowColumns()).AddRow(
		"org-1", "acme.example", "oidc",
		nil, []byte(`{"client_id":"client-1","issuer_url":"https://idp.example"}`),
		nil, nil, []byte(`{"enabled":true}`),
		true, true, []byte(`{subsidiary.example}`), 120, false,
		[]byte(`{"engineering":["developer"]}`), now, now,
	)
	mock.ExpectQuery("SELECT (.+) FROM enterprise_auth_configs").
		WithArgs("org-1").
		WillReturnRows(rows)

	cfg, err := store.ReadConfig(context.Background(), "org-1")
	require.NoError(t, err)

	assert.Equal(t, ProviderOIDC, cfg.Provider)
	require.NotNil(t, cfg.OIDCConfig)
	assert.Equal(t, "client-1", cfg.OIDCConfig.ClientID)
	require.NotNil(t, cfg.SCIMConfig)
	assert.True(t, cfg.SCIMConfig.Enabled)
	assert.Nil(t, cfg.SAMLConfig)
	assert.Equal(t, []string{"subsidiary.example"}, cfg.AllowedDomains)
	assert.Equal(t, map[string][]string{"engineering": {"developer"}}, cfg.RoleMapping)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresReadConfigNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM enterprise_auth_configs").
		WithArgs("ghost-org").
		WillReturnRows(sqlmock.NewRows(configRowColumns()))

	_, err := store.ReadConfig(context.Background(), "ghost-org")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresWriteConfig(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO enterprise_auth_configs").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, store.WriteConfig(context.Background(), testConfig()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUserByEmailNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM enterprise_users").
		WithArgs("org-1", "ghost@acme.example").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.UserByEmail(context.Background(), "org-1", "ghost@acme.example")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertUser(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO enterprise_users").
		WillReturnResult(sqlmock.NewResult(0, 1))

	now := time.Now()
	require.NoError(t, store.UpsertUser(context.Background(), &User{
		ID:             "user-1",
		OrganizationID: "org-1",
		Email:          "dev@acme.example",
		Groups:         []string{"engineering"},
		Roles:          []string{"developer"},
		IsActive:       true,
		Provider:       ProviderOIDC,
		ExternalID:     "idp-subject-1",
		LastLogin:      &now,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSessionRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	session := &Session{
		ID:           "fgs_1",
		UserID:       "user-1",
		ExpiresAt:    now.Add(8 * time.Hour),
		LastActivity: now,
		IdleTimeout:  8 * time.Hour,
		Provider:     ProviderOIDC,
		CreatedAt:    now,
	}

	mock.ExpectExec("INSERT INTO enterprise_sessions").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.UpsertSession(context.Background(), session))

	rows := sqlmock.NewRows([]string{
		"id", "user_id", "organization_id", "expires_at", "last_activity",
		"idle_timeout_seconds", "sso_provider", "ip_address", "user_agent", "created_at",
	}).AddRow("fgs_1", "user-1", "", session.ExpiresAt, session.LastActivity,
		int64(8*60*60), "oidc", "", "", session.CreatedAt)
	mock.ExpectQuery("SELECT (.+) FROM enterprise_sessions").WillReturnRows(rows)

	listed, err := store.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, 8*time.Hour, listed[0].IdleTimeout)

	mock.ExpectExec("DELETE FROM enterprise_sessions").
		WithArgs("fgs_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, store.DeleteSession(context.Background(), "fgs_1"))

	assert.NoError(t, mock.ExpectationsWereMet())
}
