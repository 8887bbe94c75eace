package sso

import (
	"context"
	"fmt"
	"strings"

	ldap "github.com/go-ldap/ldap/v3"
)

const (
	defaultUserFilter = "(|(uid=%s)(mail=%s))"
	defaultGroupAttr  = "memberOf"
)

// DirectoryBinder is the production Binder. It searches the directory for the
// user entry, then re-binds with the entry DN and the presented password.
type DirectoryBinder struct{}

// NewDirectoryBinder creates a directory binder
func NewDirectoryBinder() *DirectoryBinder {
	return &DirectoryBinder{}
}

// Bind authenticates against the configured directory server
func (b *DirectoryBinder) Bind(ctx context.Context, cfg *LDAPConfig, username, password string) (*DirectoryEntry, error) {
	if cfg == nil || cfg.Host == "" {
		return nil, fmt.Errorf("directory is not configured")
	}
	port := cfg.Port
	if port == 0 {
		port = 389
	}

	conn, err := ldap.DialURL(fmt.Sprintf("ldap://%s:%d", cfg.Host, port))
	if err != nil {
		return nil, fmt.Errorf("failed to dial directory: %w", err)
	}
	defer conn.Close()

	filter := cfg.UserFilter
	if filter == "" {
		filter = defaultUserFilter
	}
	filter = strings.ReplaceAll(filter, "%s", ldap.EscapeFilter(username))

	groupAttr := cfg.GroupAttr
	if groupAttr == "" {
		groupAttr = defaultGroupAttr
	}

	searchReq := ldap.NewSearchRequest(
		cfg.BaseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 2, 0, false,
		filter,
		[]string{"uid", "mail", "givenName", "sn", groupAttr},
		nil,
	)

	result, err := conn.Search(searchReq)
	if err != nil {
		return nil, fmt.Errorf("directory search failed: %w", err)
	}
	if len(result.Entries) != 1 {
		return nil, fmt.Errorf("user not found in directory")
	}
	entry := result.Entries[0]

	if err := conn.Bind(entry.DN, password); err != nil {
		return nil, fmt.Errorf("directory bind rejected: %w", err)
	}

	groups := make([]string, 0)
	for _, dn := range entry.GetAttributeValues(groupAttr) {
		groups = append(groups, groupNameFromDN(dn))
	}

	return &DirectoryEntry{
		UID:        entry.GetAttributeValue("uid"),
		Email:      entry.GetAttributeValue("mail"),
		GivenName:  entry.GetAttributeValue("givenName"),
		FamilyName: entry.GetAttributeValue("sn"),
		Groups:     groups,
	}, nil
}

// groupNameFromDN extracts the leading RDN value of a group DN, falling back
// to the raw value for plain group names
func groupNameFromDN(dn string) string {
	first, _, _ := strings.Cut(dn, ",")
	if _, value, ok := strings.Cut(first, "="); ok {
		return value
	}
	return dn
}
