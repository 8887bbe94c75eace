package sso

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// OAuth2Validator validates OAuth2 bearer tokens in JWT form. It checks
// structural well-formedness, expiry, and issuer; signature verification is
// performed only when a Keyfunc is supplied, matching the pluggable-validator
// contract.
type OAuth2Validator struct {
	cfg          *AuthConfig
	oauth2Config *oauth2.Config
	parser       *jwt.Parser

	// Keyfunc, when set, enables cryptographic signature verification
	Keyfunc jwt.Keyfunc
}

// NewOAuth2Validator creates a validator from the org's OAuth2 configuration
func NewOAuth2Validator(cfg *AuthConfig) (*OAuth2Validator, error) {
	oc := cfg.OAuth2Config
	if oc.AuthURL == "" || oc.TokenURL == "" {
		return nil, fmt.Errorf("%w: auth_url and token_url are required", ErrProtocolInit)
	}

	return &OAuth2Validator{
		cfg: cfg,
		oauth2Config: &oauth2.Config{
			ClientID:     oc.ClientID,
			ClientSecret: oc.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  oc.AuthURL,
				TokenURL: oc.TokenURL,
			},
			RedirectURL: oc.RedirectURL,
			Scopes:      oc.Scopes,
		},
		parser: jwt.NewParser(jwt.WithoutClaimsValidation()),
	}, nil
}

// Provider returns the protocol this validator handles
func (v *OAuth2Validator) Provider() ProviderType {
	return ProviderOAuth2
}

// AuthURL builds the authorization redirect for token-less login attempts
func (v *OAuth2Validator) AuthURL(state string) (string, error) {
	return v.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOffline), nil
}

// Validate checks a bearer token and normalizes its claims
func (v *OAuth2Validator) Validate(_ context.Context, rawToken string) (*Claims, error) {
	mapClaims := jwt.MapClaims{}

	var err error
	if v.Keyfunc != nil {
		_, err = v.parser.ParseWithClaims(rawToken, mapClaims, v.Keyfunc)
	} else {
		_, _, err = v.parser.ParseUnverified(rawToken, mapClaims)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	exp, err := mapClaims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing exp claim", ErrInvalidToken)
	}
	// exp must be strictly in the future; exp == now is already expired
	if !exp.Time.After(time.Now()) {
		return nil, fmt.Errorf("%w: token expired", ErrInvalidToken)
	}

	issuer, err := mapClaims.GetIssuer()
	if err != nil {
		return nil, fmt.Errorf("%w: missing iss claim", ErrInvalidToken)
	}
	if expected := v.cfg.OAuth2Config.Issuer; expected != "" && issuer != expected {
		return nil, fmt.Errorf("%w: issuer mismatch", ErrInvalidToken)
	}

	claims := claimsFromMap(map[string]interface{}(mapClaims))
	claims.Issuer = issuer
	claims.Expiry = exp.Time
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: missing email claim", ErrInvalidToken)
	}
	return claims, nil
}

// claimsFromMap normalizes a raw claim map into the Claims structure. Every
// protocol variant funnels through this so downstream code sees one shape.
func claimsFromMap(raw map[string]interface{}) *Claims {
	claims := &Claims{
		Subject:    stringClaim(raw, "sub"),
		Email:      stringClaim(raw, "email"),
		GivenName:  stringClaim(raw, "given_name"),
		FamilyName: stringClaim(raw, "family_name"),
		Groups:     arrayClaim(raw, "groups"),
		Attributes: make(map[string]string),
	}

	for k, v := range raw {
		if str, ok := v.(string); ok {
			claims.Attributes[k] = str
		}
	}

	// MFA completion is asserted via the amr claim or an explicit flag
	for _, method := range arrayClaim(raw, "amr") {
		if method == "mfa" || method == "otp" || method == "hwk" {
			claims.MFAAsserted = true
		}
	}
	if asserted, ok := raw["mfa_verified"].(bool); ok && asserted {
		claims.MFAAsserted = true
	}

	return claims
}

func stringClaim(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

func arrayClaim(data map[string]interface{}, key string) []string {
	val, ok := data[key]
	if !ok {
		return nil
	}
	arr, ok := val.([]interface{})
	if !ok {
		return nil
	}
	result := make([]string, 0, len(arr))
	for _, item := range arr {
		if str, ok := item.(string); ok {
			result = append(result, str)
		}
	}
	return result
}
