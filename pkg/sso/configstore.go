package sso

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/lockhaven/fedgate/pkg/observability"
)

const configCacheSize = 1024

// ConfigStore loads and persists per-organization auth configs. Reads go
// through an LRU cache; updates write through and re-initialize the active
// protocol validator.
type ConfigStore struct {
	store   Store
	factory *ValidatorFactory
	logger  *observability.Logger

	cache   *lru.Cache[string, *AuthConfig] // org ID -> config
	domains *lru.Cache[string, string]      // email domain -> org ID

	mu         sync.Mutex
	validators map[string]*validatorEntry // org ID -> active validator
}

// validatorEntry caches either a working validator or the initialization
// failure, which persists until the next config reload.
type validatorEntry struct {
	validator TokenValidator
	err       error
}

// NewConfigStore creates a config store over the given backing store
func NewConfigStore(store Store, factory *ValidatorFactory, logger *observability.Logger) *ConfigStore {
	cache, _ := lru.New[string, *AuthConfig](configCacheSize)
	domains, _ := lru.New[string, string](configCacheSize)
	return &ConfigStore{
		store:      store,
		factory:    factory,
		logger:     logger.WithField("component", "config_store"),
		cache:      cache,
		domains:    domains,
		validators: make(map[string]*validatorEntry),
	}
}

// Get returns the auth config for an organization.
// Returns ErrConfigurationMissing when none exists.
func (cs *ConfigStore) Get(ctx context.Context, orgID string) (*AuthConfig, error) {
	if cfg, ok := cs.cache.Get(orgID); ok {
		return cfg, nil
	}

	cfg, err := cs.store.ReadConfig(ctx, orgID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConfigurationMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load auth config: %w", err)
	}

	cs.cache.Add(orgID, cfg)
	cs.domains.Add(cfg.Domain, orgID)
	return cfg, nil
}

// GetByDomain resolves the config covering an email domain.
// Returns ErrConfigurationMissing when no org claims the domain.
func (cs *ConfigStore) GetByDomain(ctx context.Context, domain string) (*AuthConfig, error) {
	if orgID, ok := cs.domains.Get(domain); ok {
		if cfg, ok := cs.cache.Get(orgID); ok && cfg.DomainAllowed(domain) {
			return cfg, nil
		}
	}

	cfg, err := cs.store.ReadConfigByDomain(ctx, domain)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrConfigurationMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load auth config: %w", err)
	}

	cs.cache.Add(cfg.OrganizationID, cfg)
	cs.domains.Add(domain, cfg.OrganizationID)
	return cfg, nil
}

// ConfigPatch is a partial update to an org's auth config. Nil fields keep
// the stored value.
type ConfigPatch struct {
	Domain                *string              `json:"domain,omitempty"`
	Provider              *ProviderType        `json:"sso_provider,omitempty"`
	SAMLConfig            *SAMLConfig          `json:"saml_config,omitempty"`
	OIDCConfig            *OIDCConfig          `json:"oidc_config,omitempty"`
	OAuth2Config          *OAuth2Config        `json:"oauth2_config,omitempty"`
	LDAPConfig            *LDAPConfig          `json:"ldap_config,omitempty"`
	SCIMConfig            *SCIMConfig          `json:"scim_config,omitempty"`
	JITProvisioning       *bool                `json:"jit_provisioning,omitempty"`
	EnforceSSO            *bool                `json:"enforce_sso,omitempty"`
	AllowedDomains        []string             `json:"allowed_domains,omitempty"`
	SessionTimeoutMinutes *int                 `json:"session_timeout_minutes,omitempty"`
	MFARequired           *bool                `json:"mfa_required,omitempty"`
	RoleMapping           map[string][]string  `json:"role_mapping,omitempty"`
}

// Update applies a partial update, persists it, and re-initializes the active
// protocol when the provider or its sub-config changed.
func (cs *ConfigStore) Update(ctx context.Context, orgID string, patch *ConfigPatch) (*AuthConfig, error) {
	cfg, err := cs.Get(ctx, orgID)
	if err != nil {
		return nil, err
	}

	updated := *cfg
	if patch.Domain != nil {
		updated.Domain = *patch.Domain
	}
	if patch.Provider != nil {
		updated.Provider = *patch.Provider
	}
	if patch.SAMLConfig != nil {
		updated.SAMLConfig = patch.SAMLConfig
	}
	if patch.OIDCConfig != nil {
		updated.OIDCConfig = patch.OIDCConfig
	}
	if patch.OAuth2Config != nil {
		updated.OAuth2Config = patch.OAuth2Config
	}
	if patch.LDAPConfig != nil {
		updated.LDAPConfig = patch.LDAPConfig
	}
	if patch.SCIMConfig != nil {
		updated.SCIMConfig = patch.SCIMConfig
	}
	if patch.JITProvisioning != nil {
		updated.JITProvisioning = *patch.JITProvisioning
	}
	if patch.EnforceSSO != nil {
		updated.EnforceSSO = *patch.EnforceSSO
	}
	if patch.AllowedDomains != nil {
		updated.AllowedDomains = patch.AllowedDomains
	}
	if patch.SessionTimeoutMinutes != nil {
		updated.SessionTimeoutMinutes = *patch.SessionTimeoutMinutes
	}
	if patch.MFARequired != nil {
		updated.MFARequired = *patch.MFARequired
	}
	if patch.RoleMapping != nil {
		updated.RoleMapping = patch.RoleMapping
	}
	updated.UpdatedAt = time.Now()

	if err := cs.store.WriteConfig(ctx, &updated); err != nil {
		return nil, fmt.Errorf("failed to persist auth config: %w", err)
	}

	cs.Replace(&updated)
	return &updated, nil
}

// Install persists a full config and makes it active
func (cs *ConfigStore) Install(ctx context.Context, cfg *AuthConfig) error {
	now := time.Now()
	if cfg.CreatedAt.IsZero() {
		cfg.CreatedAt = now
	}
	cfg.UpdatedAt = now

	if err := cs.store.WriteConfig(ctx, cfg); err != nil {
		return fmt.Errorf("failed to persist auth config: %w", err)
	}
	cs.Replace(cfg)
	return nil
}

// Replace installs a full config (seed-file load, hot reload) and drops the
// cached validator so the protocol re-initializes on next use.
func (cs *ConfigStore) Replace(cfg *AuthConfig) {
	cs.cache.Add(cfg.OrganizationID, cfg)
	cs.domains.Add(cfg.Domain, cfg.OrganizationID)

	cs.mu.Lock()
	delete(cs.validators, cfg.OrganizationID)
	cs.mu.Unlock()
}

// Validator returns the active protocol validator for an org, building it on
// first use. A failed initialization is cached and returned until the next
// config reload, so a broken or unreachable IdP degrades to "federation
// unavailable" instead of hammering discovery on every login.
func (cs *ConfigStore) Validator(ctx context.Context, cfg *AuthConfig) (TokenValidator, error) {
	cs.mu.Lock()
	entry, ok := cs.validators[cfg.OrganizationID]
	cs.mu.Unlock()
	if ok {
		return entry.validator, entry.err
	}

	validator, err := cs.factory.New(ctx, cfg)
	if err != nil {
		cs.logger.WithError(err).
			WithField("organization_id", cfg.OrganizationID).
			Error("protocol initialization failed; federation disabled until config reload")
	}

	cs.mu.Lock()
	cs.validators[cfg.OrganizationID] = &validatorEntry{validator: validator, err: err}
	cs.mu.Unlock()
	return validator, err
}
