package sso

import "context"

// Store is the backing relational store consumed by the federation subsystem.
// Implementations persist org configs, user records, and the durable session
// mirror. The in-memory session index inside SessionManager remains the source
// of truth for active-session checks.
type Store interface {
	// ReadConfig returns the auth config for an organization, or ErrNotFound
	ReadConfig(ctx context.Context, orgID string) (*AuthConfig, error)

	// ReadConfigByDomain resolves a config by authoritative or allowed email
	// domain, or ErrNotFound
	ReadConfigByDomain(ctx context.Context, domain string) (*AuthConfig, error)

	// WriteConfig persists a full auth config
	WriteConfig(ctx context.Context, cfg *AuthConfig) error

	// UpsertUser creates or replaces a user record
	UpsertUser(ctx context.Context, user *User) error

	// UserByEmail returns the user with the given email within an org, or ErrNotFound
	UserByEmail(ctx context.Context, orgID, email string) (*User, error)

	// UserByExternalID returns the user matching the provider subject
	// identifier within an org, or ErrNotFound
	UserByExternalID(ctx context.Context, orgID string, provider ProviderType, externalID string) (*User, error)

	// ListActiveUsers returns all active users of an org
	ListActiveUsers(ctx context.Context, orgID string) ([]*User, error)

	// UpsertSession mirrors a session into durable storage
	UpsertSession(ctx context.Context, session *Session) error

	// DeleteSession removes a session mirror; deleting a missing session is not an error
	DeleteSession(ctx context.Context, sessionID string) error

	// ListSessions returns all mirrored sessions, used to rehydrate the
	// in-memory index on restart
	ListSessions(ctx context.Context) ([]*Session, error)
}
