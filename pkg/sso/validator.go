package sso

import (
	"context"
	"fmt"
)

// TokenValidator verifies a federated token or assertion and normalizes it
// into Claims. A failed check returns ErrInvalidToken and no claims, never a
// partial claim set.
type TokenValidator interface {
	// Provider returns the protocol this validator handles
	Provider() ProviderType

	// Validate checks the raw token against the org configuration
	Validate(ctx context.Context, rawToken string) (*Claims, error)
}

// RedirectBuilder is implemented by validators whose protocol uses a
// browser redirect to the identity provider. The state value is the
// anti-forgery token bound to the requesting email.
type RedirectBuilder interface {
	AuthURL(state string) (string, error)
}

// ValidatorFactory builds protocol validators from org configuration.
// Construction may perform network I/O (OIDC discovery) and is bounded by the
// caller's context.
type ValidatorFactory struct {
	baseURL string
	binder  Binder // optional LDAP collaborator
}

// NewValidatorFactory creates a factory. baseURL is this service's external
// URL, used for SAML service-provider endpoints. binder may be nil when LDAP
// federation is not deployed.
func NewValidatorFactory(baseURL string, binder Binder) *ValidatorFactory {
	return &ValidatorFactory{baseURL: baseURL, binder: binder}
}

// New creates the validator for the org's active protocol. Errors wrap
// ErrProtocolInit so callers can degrade to "federation unavailable".
func (f *ValidatorFactory) New(ctx context.Context, cfg *AuthConfig) (TokenValidator, error) {
	switch cfg.Provider {
	case ProviderOIDC:
		if cfg.OIDCConfig == nil {
			return nil, fmt.Errorf("%w: OIDC config is required", ErrProtocolInit)
		}
		return NewOIDCValidator(ctx, cfg)

	case ProviderOAuth2:
		if cfg.OAuth2Config == nil {
			return nil, fmt.Errorf("%w: OAuth2 config is required", ErrProtocolInit)
		}
		return NewOAuth2Validator(cfg)

	case ProviderSAML:
		if cfg.SAMLConfig == nil {
			return nil, fmt.Errorf("%w: SAML config is required", ErrProtocolInit)
		}
		return NewSAMLValidator(cfg, f.baseURL)

	case ProviderLDAP:
		if cfg.LDAPConfig == nil {
			return nil, fmt.Errorf("%w: LDAP config is required", ErrProtocolInit)
		}
		if f.binder == nil {
			return nil, fmt.Errorf("%w: no LDAP binder configured", ErrProtocolInit)
		}
		return NewLDAPValidator(cfg, f.binder), nil

	default:
		return nil, fmt.Errorf("%w: unsupported provider type %q", ErrProtocolInit, cfg.Provider)
	}
}
