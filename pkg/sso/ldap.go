package sso

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// Binder verifies directory credentials against an LDAP server and returns
// the directory entry's attributes. The bind itself is an external
// collaborator so deployments can swap directory client libraries.
type Binder interface {
	Bind(ctx context.Context, cfg *LDAPConfig, username, password string) (*DirectoryEntry, error)
}

// DirectoryEntry is the resolved directory record after a successful bind
type DirectoryEntry struct {
	UID        string
	Email      string
	GivenName  string
	FamilyName string
	Groups     []string
	Disabled   bool
}

// LDAPValidator adapts directory-bind authentication to the TokenValidator
// contract. The raw token is base64("username:password"), the same shape as
// an HTTP basic credential.
type LDAPValidator struct {
	cfg    *AuthConfig
	binder Binder
}

// NewLDAPValidator creates a validator delegating to the given binder
func NewLDAPValidator(cfg *AuthConfig, binder Binder) *LDAPValidator {
	return &LDAPValidator{cfg: cfg, binder: binder}
}

// Provider returns the protocol this validator handles
func (v *LDAPValidator) Provider() ProviderType {
	return ProviderLDAP
}

// EncodeCredentials packs directory credentials into the raw-token shape
func EncodeCredentials(username, password string) string {
	return base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
}

// Validate binds the packed credentials and normalizes the directory entry
func (v *LDAPValidator) Validate(ctx context.Context, rawToken string) (*Claims, error) {
	decoded, err := base64.StdEncoding.DecodeString(rawToken)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed credential token", ErrInvalidToken)
	}
	username, password, ok := strings.Cut(string(decoded), ":")
	if !ok || username == "" || password == "" {
		return nil, fmt.Errorf("%w: malformed credential token", ErrInvalidToken)
	}

	entry, err := v.binder.Bind(ctx, v.cfg.LDAPConfig, username, password)
	if err != nil {
		return nil, fmt.Errorf("%w: directory bind failed: %v", ErrInvalidToken, err)
	}
	if entry.Disabled {
		return nil, fmt.Errorf("%w: directory account disabled", ErrInvalidToken)
	}

	subject := entry.UID
	if subject == "" {
		subject = entry.Email
	}
	claims := &Claims{
		Subject:    subject,
		Email:      entry.Email,
		GivenName:  entry.GivenName,
		FamilyName: entry.FamilyName,
		Groups:     entry.Groups,
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: directory entry has no email", ErrInvalidToken)
	}
	return claims, nil
}
