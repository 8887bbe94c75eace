package sso

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestConfigStore(t *testing.T) (*ConfigStore, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	factory := NewValidatorFactory("https://fedgate.example", nil)
	return NewConfigStore(store, factory, testLogger()), store
}

func TestConfigStoreGet(t *testing.T) {
	configs, store := newTestConfigStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteConfig(ctx, testConfig()))

	cfg, err := configs.Get(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, "acme.example", cfg.Domain)

	_, err = configs.Get(ctx, "ghost-org")
	assert.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestConfigStoreGetByDomain(t *testing.T) {
	configs, store := newTestConfigStore(t)
	ctx := context.Background()

	cfg := testConfig()
	cfg.AllowedDomains = []string{"subsidiary.example"}
	require.NoError(t, store.WriteConfig(ctx, cfg))

	byPrimary, err := configs.GetByDomain(ctx, "acme.example")
	require.NoError(t, err)
	assert.Equal(t, "org-1", byPrimary.OrganizationID)

	byAllowed, err := configs.GetByDomain(ctx, "subsidiary.example")
	require.NoError(t, err)
	assert.Equal(t, "org-1", byAllowed.OrganizationID)

	_, err = configs.GetByDomain(ctx, "unmanaged.example")
	assert.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestConfigStoreUpdateAppliesPatch(t *testing.T) {
	configs, store := newTestConfigStore(t)
	ctx := context.Background()

	require.NoError(t, store.WriteConfig(ctx, testConfig()))

	enforce := false
	timeout := 60
	updated, err := configs.Update(ctx, "org-1", &ConfigPatch{
		EnforceSSO:            &enforce,
		SessionTimeoutMinutes: &timeout,
	})
	require.NoError(t, err)

	assert.False(t, updated.EnforceSSO)
	assert.Equal(t, 60, updated.SessionTimeoutMinutes)
	// Untouched fields survive
	assert.Equal(t, "acme.example", updated.Domain)
	assert.True(t, updated.JITProvisioning)

	// The patch was persisted, not only cached
	stored, err := store.ReadConfig(ctx, "org-1")
	require.NoError(t, err)
	assert.Equal(t, 60, stored.SessionTimeoutMinutes)
}

func TestConfigStoreUpdateUnknownOrg(t *testing.T) {
	configs, _ := newTestConfigStore(t)

	_, err := configs.Update(context.Background(), "ghost-org", &ConfigPatch{})
	assert.ErrorIs(t, err, ErrConfigurationMissing)
}

func TestConfigStoreValidatorCachesInitFailure(t *testing.T) {
	configs, _ := newTestConfigStore(t)
	ctx := context.Background()

	broken := testConfig()
	broken.Provider = ProviderOAuth2
	broken.OAuth2Config = &OAuth2Config{ClientID: "c"} // endpoints missing
	require.NoError(t, configs.Install(ctx, broken))

	_, err := configs.Validator(ctx, broken)
	require.ErrorIs(t, err, ErrProtocolInit)

	// The failure stays cached until the config is reloaded
	_, err = configs.Validator(ctx, broken)
	require.ErrorIs(t, err, ErrProtocolInit)

	fixed := oauth2TestConfig()
	require.NoError(t, configs.Install(ctx, fixed))

	v, err := configs.Validator(ctx, fixed)
	require.NoError(t, err)
	assert.Equal(t, ProviderOAuth2, v.Provider())
}

func TestConfigStoreInstallRefreshesDomainIndex(t *testing.T) {
	configs, _ := newTestConfigStore(t)
	ctx := context.Background()

	require.NoError(t, configs.Install(ctx, testConfig()))

	cfg, err := configs.GetByDomain(ctx, "acme.example")
	require.NoError(t, err)
	assert.Equal(t, "org-1", cfg.OrganizationID)
	assert.False(t, cfg.CreatedAt.IsZero())
}
