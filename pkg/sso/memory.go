package sso

import (
	"context"
	"sync"
)

// MemoryStore is a Store backed by process memory. It serves single-node
// deployments without a database and the package tests.
type MemoryStore struct {
	mu       sync.RWMutex
	configs  map[string]*AuthConfig // keyed by org ID
	users    map[string]*User       // keyed by user ID
	sessions map[string]*Session    // keyed by session ID
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		configs:  make(map[string]*AuthConfig),
		users:    make(map[string]*User),
		sessions: make(map[string]*Session),
	}
}

// ReadConfig returns the auth config for an organization
func (s *MemoryStore) ReadConfig(_ context.Context, orgID string) (*AuthConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.configs[orgID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *cfg
	return &cp, nil
}

// ReadConfigByDomain resolves a config by email domain
func (s *MemoryStore) ReadConfigByDomain(_ context.Context, domain string) (*AuthConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cfg := range s.configs {
		if cfg.DomainAllowed(domain) {
			cp := *cfg
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// WriteConfig persists an auth config
func (s *MemoryStore) WriteConfig(_ context.Context, cfg *AuthConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *cfg
	s.configs[cfg.OrganizationID] = &cp
	return nil
}

// UpsertUser creates or replaces a user record
func (s *MemoryStore) UpsertUser(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// UserByEmail returns the user with the given email within an org
func (s *MemoryStore) UserByEmail(_ context.Context, orgID, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.OrganizationID == orgID && u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// UserByExternalID returns the user matching the provider subject identifier
func (s *MemoryStore) UserByExternalID(_ context.Context, orgID string, provider ProviderType, externalID string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.OrganizationID == orgID && u.Provider == provider && u.ExternalID == externalID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

// ListActiveUsers returns all active users of an org
func (s *MemoryStore) ListActiveUsers(_ context.Context, orgID string) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var users []*User
	for _, u := range s.users {
		if u.OrganizationID == orgID && u.IsActive {
			cp := *u
			users = append(users, &cp)
		}
	}
	return users, nil
}

// UpsertSession mirrors a session
func (s *MemoryStore) UpsertSession(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *session
	s.sessions[session.ID] = &cp
	return nil
}

// DeleteSession removes a session mirror
func (s *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// ListSessions returns all mirrored sessions
func (s *MemoryStore) ListSessions(_ context.Context) ([]*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sessions := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		cp := *sess
		sessions = append(sessions, &cp)
	}
	return sessions, nil
}
