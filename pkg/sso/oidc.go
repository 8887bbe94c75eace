package sso

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

// OIDCValidator validates OpenID Connect ID tokens. Discovery runs once at
// construction; a failed or timed-out fetch surfaces as ErrProtocolInit and
// leaves federation unavailable for the org until the next config reload.
type OIDCValidator struct {
	cfg          *AuthConfig
	provider     *oidc.Provider
	verifier     *oidc.IDTokenVerifier
	oauth2Config *oauth2.Config
}

// NewOIDCValidator discovers the issuer and builds the token verifier
func NewOIDCValidator(ctx context.Context, cfg *AuthConfig) (*OIDCValidator, error) {
	oc := cfg.OIDCConfig

	provider, err := oidc.NewProvider(ctx, oc.IssuerURL)
	if err != nil {
		return nil, fmt.Errorf("%w: discovery failed for %s: %v", ErrProtocolInit, oc.IssuerURL, err)
	}

	verifier := provider.Verifier(&oidc.Config{
		ClientID:        oc.ClientID,
		SkipIssuerCheck: oc.SkipIssuerCheck,
	})

	return &OIDCValidator{
		cfg:      cfg,
		provider: provider,
		verifier: verifier,
		oauth2Config: &oauth2.Config{
			ClientID:     oc.ClientID,
			ClientSecret: oc.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  oc.RedirectURL,
			Scopes:       oc.Scopes,
		},
	}, nil
}

// Provider returns the protocol this validator handles
func (v *OIDCValidator) Provider() ProviderType {
	return ProviderOIDC
}

// AuthURL builds the authorization redirect for token-less login attempts
func (v *OIDCValidator) AuthURL(state string) (string, error) {
	return v.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Validate verifies a raw ID token and normalizes its claims
func (v *OIDCValidator) Validate(ctx context.Context, rawToken string) (*Claims, error) {
	idToken, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	// The verifier treats exp == now as still valid; the session contract does not
	if !idToken.Expiry.After(time.Now()) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}

	var raw map[string]interface{}
	if err := idToken.Claims(&raw); err != nil {
		return nil, fmt.Errorf("%w: failed to parse claims: %v", ErrInvalidToken, err)
	}

	claims := claimsFromMap(raw)
	claims.Issuer = idToken.Issuer
	claims.Expiry = idToken.Expiry
	if claims.Subject == "" {
		claims.Subject = idToken.Subject
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrInvalidToken)
	}
	return claims, nil
}
