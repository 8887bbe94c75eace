package sso

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"

	saml2 "github.com/russellhaering/gosaml2"
	dsig "github.com/russellhaering/goxmldsig"
)

// SAMLValidator validates SAML 2.0 assertions. XML-signature verification and
// audience restriction are handled by the underlying service provider; this
// layer enforces the contract (boolean result plus normalized claims) and the
// time/audience warnings.
type SAMLValidator struct {
	cfg     *AuthConfig
	sp      *saml2.SAMLServiceProvider
	baseURL string
}

// NewSAMLValidator builds the service provider from the org's SAML config
func NewSAMLValidator(cfg *AuthConfig, baseURL string) (*SAMLValidator, error) {
	sc := cfg.SAMLConfig
	if sc.EntityID == "" || sc.SSOURL == "" {
		return nil, fmt.Errorf("%w: entity_id and sso_url are required", ErrProtocolInit)
	}

	certBlock, _ := pem.Decode([]byte(sc.Certificate))
	if certBlock == nil {
		return nil, fmt.Errorf("%w: failed to decode certificate PEM", ErrProtocolInit)
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse certificate: %v", ErrProtocolInit, err)
	}

	audience := baseURL
	if len(sc.AudienceRestriction) > 0 {
		audience = sc.AudienceRestriction[0]
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      sc.SSOURL,
		IdentityProviderIssuer:      sc.EntityID,
		ServiceProviderIssuer:       baseURL + "/sso/metadata/" + cfg.OrganizationID,
		AssertionConsumerServiceURL: baseURL + "/auth/sso/" + cfg.OrganizationID + "/callback",
		SignAuthnRequests:           sc.SignRequests,
		AudienceURI:                 audience,
		IDPCertificateStore: &dsig.MemoryX509CertificateStore{
			Roots: []*x509.Certificate{cert},
		},
	}
	if sc.NameIDFormat != "" {
		sp.NameIdFormat = sc.NameIDFormat
	}

	return &SAMLValidator{cfg: cfg, sp: sp, baseURL: baseURL}, nil
}

// Provider returns the protocol this validator handles
func (v *SAMLValidator) Provider() ProviderType {
	return ProviderSAML
}

// AuthURL builds the IdP redirect for token-less login attempts
func (v *SAMLValidator) AuthURL(state string) (string, error) {
	authURL, err := v.sp.BuildAuthURL(state)
	if err != nil {
		return "", fmt.Errorf("failed to build auth URL: %w", err)
	}
	return authURL, nil
}

// Validate verifies a base64-encoded SAML response and normalizes its claims
func (v *SAMLValidator) Validate(_ context.Context, rawToken string) (*Claims, error) {
	assertionInfo, err := v.sp.RetrieveAssertionInfo(rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if wi := assertionInfo.WarningInfo; wi != nil {
		if wi.InvalidTime {
			return nil, fmt.Errorf("%w: assertion has invalid time", ErrInvalidToken)
		}
		if wi.NotInAudience {
			return nil, fmt.Errorf("%w: assertion not in expected audience", ErrInvalidToken)
		}
	}

	claims := &Claims{
		Issuer:     v.cfg.SAMLConfig.EntityID,
		Attributes: make(map[string]string),
	}

	for _, attr := range assertionInfo.Values {
		if len(attr.Values) == 0 {
			continue
		}
		claims.Attributes[attr.Name] = attr.Values[0].Value

		switch attr.Name {
		case "email", "mail", "emailAddress":
			claims.Email = attr.Values[0].Value
		case "givenName", "firstName":
			claims.GivenName = attr.Values[0].Value
		case "sn", "surname", "lastName":
			claims.FamilyName = attr.Values[0].Value
		case "groups", "memberOf":
			for _, val := range attr.Values {
				claims.Groups = append(claims.Groups, val.Value)
			}
		case "authnMethod":
			if attr.Values[0].Value == "mfa" {
				claims.MFAAsserted = true
			}
		}
	}

	// NameID is the stable subject identifier
	claims.Subject = assertionInfo.NameID
	if claims.Email == "" {
		// Many IdPs use an email-format NameID
		claims.Email = assertionInfo.NameID
	}

	if claims.Subject == "" || claims.Email == "" {
		return nil, fmt.Errorf("%w: missing subject in SAML assertion", ErrInvalidToken)
	}
	return claims, nil
}

// Metadata renders the service-provider metadata document
func (v *SAMLValidator) Metadata() ([]byte, error) {
	metadataXML := fmt.Sprintf(`<?xml version="1.0"?>
<md:EntityDescriptor xmlns:md="urn:oasis:names:tc:SAML:2.0:metadata"
                     entityID="%s">
  <md:SPSSODescriptor protocolSupportEnumeration="urn:oasis:names:tc:SAML:2.0:protocol">
    <md:AssertionConsumerService Binding="urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
                                 Location="%s"
                                 index="1"/>
  </md:SPSSODescriptor>
</md:EntityDescriptor>`,
		v.sp.ServiceProviderIssuer,
		v.sp.AssertionConsumerServiceURL)
	return []byte(metadataXML), nil
}
