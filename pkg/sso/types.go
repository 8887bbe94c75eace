package sso

import "time"

// ProviderType identifies which federation protocol an organization uses
type ProviderType string

const (
	ProviderSAML   ProviderType = "saml"
	ProviderOIDC   ProviderType = "oidc"
	ProviderOAuth2 ProviderType = "oauth2"
	ProviderLDAP   ProviderType = "ldap"
)

// DefaultSessionTimeoutMinutes applies when an org config leaves the timeout unset
const DefaultSessionTimeoutMinutes = 480

// AuthConfig holds the enterprise authentication configuration for one organization
type AuthConfig struct {
	OrganizationID string       `json:"organization_id" yaml:"organization_id"`
	Domain         string       `json:"domain" yaml:"domain"` // authoritative email domain
	Provider       ProviderType `json:"sso_provider" yaml:"sso_provider"`

	SAMLConfig   *SAMLConfig   `json:"saml_config,omitempty" yaml:"saml_config,omitempty"`
	OIDCConfig   *OIDCConfig   `json:"oidc_config,omitempty" yaml:"oidc_config,omitempty"`
	OAuth2Config *OAuth2Config `json:"oauth2_config,omitempty" yaml:"oauth2_config,omitempty"`
	LDAPConfig   *LDAPConfig   `json:"ldap_config,omitempty" yaml:"ldap_config,omitempty"`
	SCIMConfig   *SCIMConfig   `json:"scim_config,omitempty" yaml:"scim_config,omitempty"`

	JITProvisioning bool     `json:"jit_provisioning" yaml:"jit_provisioning"`
	EnforceSSO      bool     `json:"enforce_sso" yaml:"enforce_sso"`
	AllowedDomains  []string `json:"allowed_domains,omitempty" yaml:"allowed_domains,omitempty"`

	SessionTimeoutMinutes int  `json:"session_timeout_minutes,omitempty" yaml:"session_timeout_minutes,omitempty"`
	MFARequired           bool `json:"mfa_required" yaml:"mfa_required"`

	// RoleMapping maps an external group name to the internal roles it grants
	RoleMapping map[string][]string `json:"role_mapping,omitempty" yaml:"role_mapping,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"-"`
	UpdatedAt time.Time `json:"updated_at" yaml:"-"`
}

// SessionTimeout returns the configured session timeout, applying the default
func (c *AuthConfig) SessionTimeout() time.Duration {
	if c.SessionTimeoutMinutes <= 0 {
		return DefaultSessionTimeoutMinutes * time.Minute
	}
	return time.Duration(c.SessionTimeoutMinutes) * time.Minute
}

// DomainAllowed reports whether the given email domain is covered by this config.
// The authoritative domain always counts, even when allowed_domains is empty.
func (c *AuthConfig) DomainAllowed(domain string) bool {
	if domain == c.Domain {
		return true
	}
	for _, d := range c.AllowedDomains {
		if d == domain {
			return true
		}
	}
	return false
}

// SAMLConfig holds SAML 2.0 configuration
type SAMLConfig struct {
	EntityID            string   `json:"entity_id" yaml:"entity_id"`
	SSOURL              string   `json:"sso_url" yaml:"sso_url"`
	Certificate         string   `json:"certificate" yaml:"certificate"` // PEM encoded IdP certificate
	AudienceRestriction []string `json:"audience_restriction,omitempty" yaml:"audience_restriction,omitempty"`
	NameIDFormat        string   `json:"name_id_format,omitempty" yaml:"name_id_format,omitempty"`
	SignRequests        bool     `json:"sign_requests" yaml:"sign_requests"`
}

// OIDCConfig holds OpenID Connect configuration
type OIDCConfig struct {
	ClientID        string   `json:"client_id" yaml:"client_id"`
	ClientSecret    string   `json:"-" yaml:"client_secret"` // Never expose secret in JSON
	IssuerURL       string   `json:"issuer_url" yaml:"issuer_url"` // Discovery endpoint
	RedirectURL     string   `json:"redirect_url" yaml:"redirect_url"`
	Scopes          []string `json:"scopes" yaml:"scopes"`
	SkipIssuerCheck bool     `json:"skip_issuer_check,omitempty" yaml:"skip_issuer_check,omitempty"`
}

// OAuth2Config holds plain OAuth2 configuration
type OAuth2Config struct {
	ClientID     string   `json:"client_id" yaml:"client_id"`
	ClientSecret string   `json:"-" yaml:"client_secret"` // Never expose secret in JSON
	AuthURL      string   `json:"auth_url" yaml:"auth_url"`
	TokenURL     string   `json:"token_url" yaml:"token_url"`
	Issuer       string   `json:"issuer" yaml:"issuer"` // expected iss claim on bearer tokens
	RedirectURL  string   `json:"redirect_url" yaml:"redirect_url"`
	Scopes       []string `json:"scopes" yaml:"scopes"`
}

// LDAPConfig holds directory bind configuration. Credential verification itself
// is delegated to a Binder collaborator; this only carries what claim
// normalization needs.
type LDAPConfig struct {
	Host       string `json:"host" yaml:"host"`
	Port       int    `json:"port" yaml:"port"`
	BaseDN     string `json:"base_dn" yaml:"base_dn"`
	UserFilter string `json:"user_filter,omitempty" yaml:"user_filter,omitempty"`
	GroupAttr  string `json:"group_attr,omitempty" yaml:"group_attr,omitempty"`
}

// SCIMConfig enables the directory synchronization surface for an organization
type SCIMConfig struct {
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	BearerToken string `json:"-" yaml:"bearer_token"` // Never expose in JSON
}

// Claims is the normalized attribute set produced by every token validator.
// A validator either returns a complete Claims value or none at all.
type Claims struct {
	Subject     string    `json:"subject"`
	Email       string    `json:"email"`
	GivenName   string    `json:"given_name,omitempty"`
	FamilyName  string    `json:"family_name,omitempty"`
	Groups      []string  `json:"groups,omitempty"`
	Issuer      string    `json:"issuer,omitempty"`
	Expiry      time.Time `json:"expiry,omitempty"`
	MFAAsserted bool      `json:"mfa_asserted,omitempty"`

	// Attributes carries the raw string-valued claims for auditing
	Attributes map[string]string `json:"attributes,omitempty"`
}

// User is an enterprise user record owned by the provisioning engine
type User struct {
	ID             string            `json:"id"`
	OrganizationID string            `json:"organization_id"`
	Email          string            `json:"email"`
	FirstName      string            `json:"first_name,omitempty"`
	LastName       string            `json:"last_name,omitempty"`
	Groups         []string          `json:"groups,omitempty"`
	Roles          []string          `json:"roles"` // derived from groups, never hand-edited
	IsActive       bool              `json:"is_active"`
	Provider       ProviderType      `json:"sso_provider,omitempty"`
	ExternalID     string            `json:"external_id,omitempty"` // provider subject identifier
	LastLogin      *time.Time        `json:"last_login,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// Session is one authenticated session. The in-memory index inside
// SessionManager is authoritative; the backing store is a durable mirror.
type Session struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	OrganizationID string        `json:"organization_id"`
	ExpiresAt      time.Time     `json:"expires_at"`
	LastActivity   time.Time     `json:"last_activity"`
	IdleTimeout    time.Duration `json:"idle_timeout"`
	Provider       ProviderType  `json:"sso_provider,omitempty"`
	IPAddress      string        `json:"ip_address,omitempty"`
	UserAgent      string        `json:"user_agent,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

// ValidAt reports whether the session satisfies both the absolute TTL and the
// sliding inactivity window at the given instant. Boundary instants count as
// expired.
func (s *Session) ValidAt(now time.Time) bool {
	if !now.Before(s.ExpiresAt) {
		return false
	}
	if now.Sub(s.LastActivity) >= s.IdleTimeout {
		return false
	}
	return true
}
