// Package scim implements the inbound SCIM 2.0 provisioning gateway. Identity
// providers push user resources here; the gateway translates them into
// enterprise users. Only user creation and reads are supported.
package scim

import "time"

// SCIM 2.0 schema URNs
const (
	UserSchema         = "urn:ietf:params:scim:schemas:core:2.0:User"
	ListResponseSchema = "urn:ietf:params:scim:api:messages:2.0:ListResponse"
	ErrorSchema        = "urn:ietf:params:scim:api:messages:2.0:Error"
)

// Name carries the structured name attributes of a user resource
type Name struct {
	GivenName  string `json:"givenName,omitempty"`
	FamilyName string `json:"familyName,omitempty"`
}

// Email is one entry of a user's multi-valued emails attribute
type Email struct {
	Value   string `json:"value"`
	Primary bool   `json:"primary,omitempty"`
}

// GroupRef references a group a user belongs to
type GroupRef struct {
	Value   string `json:"value"`
	Display string `json:"display,omitempty"`
}

// Meta describes resource metadata
type Meta struct {
	ResourceType string     `json:"resourceType"`
	Created      *time.Time `json:"created,omitempty"`
	LastModified *time.Time `json:"lastModified,omitempty"`
	Location     string     `json:"location,omitempty"`
}

// UserResource is a SCIM 2.0 user as exchanged with the identity provider
type UserResource struct {
	Schemas    []string   `json:"schemas"`
	ID         string     `json:"id,omitempty"`
	ExternalID string     `json:"externalId,omitempty"`
	UserName   string     `json:"userName"`
	Name       *Name      `json:"name,omitempty"`
	Emails     []Email    `json:"emails,omitempty"`
	Active     *bool      `json:"active,omitempty"`
	Groups     []GroupRef `json:"groups,omitempty"`
	Meta       *Meta      `json:"meta,omitempty"`
}

// PrimaryEmail returns the best email for the resource: the primary entry,
// the first entry, or the userName when it looks like an address
func (u *UserResource) PrimaryEmail() string {
	for _, e := range u.Emails {
		if e.Primary && e.Value != "" {
			return e.Value
		}
	}
	if len(u.Emails) > 0 && u.Emails[0].Value != "" {
		return u.Emails[0].Value
	}
	return u.UserName
}

// ListResponse is a SCIM 2.0 list response envelope
type ListResponse struct {
	Schemas      []string        `json:"schemas"`
	TotalResults int             `json:"totalResults"`
	ItemsPerPage int             `json:"itemsPerPage"`
	StartIndex   int             `json:"startIndex"`
	Resources    []*UserResource `json:"Resources"`
}

// Error is a SCIM 2.0 error response
type Error struct {
	Schemas  []string `json:"schemas"`
	ScimType string   `json:"scimType,omitempty"`
	Detail   string   `json:"detail,omitempty"`
	Status   string   `json:"status"`
}
