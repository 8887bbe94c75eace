package sso

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ldapTestConfig() *AuthConfig {
	cfg := testConfig()
	cfg.Provider = ProviderLDAP
	cfg.LDAPConfig = &LDAPConfig{
		Host:   "ldap.acme.example",
		Port:   389,
		BaseDN: "dc=acme,dc=example",
	}
	return cfg
}

func TestLDAPValidatorBindSuccess(t *testing.T) {
	binder := &fakeBinder{entry: &DirectoryEntry{
		UID:        "dev",
		Email:      "dev@acme.example",
		GivenName:  "Dev",
		FamilyName: "Eloper",
		Groups:     []string{"engineering"},
	}}
	v := NewLDAPValidator(ldapTestConfig(), binder)

	claims, err := v.Validate(context.Background(), EncodeCredentials("dev", "hunter2"))
	require.NoError(t, err)

	assert.Equal(t, "dev", claims.Subject)
	assert.Equal(t, "dev@acme.example", claims.Email)
	assert.Equal(t, []string{"engineering"}, claims.Groups)
}

func TestLDAPValidatorRejectsMalformedToken(t *testing.T) {
	v := NewLDAPValidator(ldapTestConfig(), &fakeBinder{})

	tests := []struct {
		name  string
		token string
	}{
		{name: "not base64", token: "%%%"},
		{name: "no separator", token: EncodeCredentials("devhunter2", "")[:8]},
		{name: "empty username", token: EncodeCredentials("", "hunter2")},
		{name: "empty password", token: EncodeCredentials("dev", "")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tt.token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestLDAPValidatorBindFailure(t *testing.T) {
	binder := &fakeBinder{err: errors.New("invalid credentials")}
	v := NewLDAPValidator(ldapTestConfig(), binder)

	_, err := v.Validate(context.Background(), EncodeCredentials("dev", "wrong"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestLDAPValidatorRejectsDisabledAccount(t *testing.T) {
	binder := &fakeBinder{entry: &DirectoryEntry{
		UID:      "dev",
		Email:    "dev@acme.example",
		Disabled: true,
	}}
	v := NewLDAPValidator(ldapTestConfig(), binder)

	_, err := v.Validate(context.Background(), EncodeCredentials("dev", "hunter2"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGroupNameFromDN(t *testing.T) {
	assert.Equal(t, "engineering", groupNameFromDN("cn=engineering,ou=groups,dc=acme,dc=example"))
	assert.Equal(t, "plain-group", groupNameFromDN("plain-group"))
}
