package sso

import (
	"context"
	"io"

	"github.com/lockhaven/fedgate/pkg/observability"
)

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func testMetrics() *observability.Metrics {
	return observability.NewMetrics(nil)
}

func testConfig() *AuthConfig {
	return &AuthConfig{
		OrganizationID:  "org-1",
		Domain:          "acme.example",
		Provider:        ProviderOIDC,
		JITProvisioning: true,
		EnforceSSO:      true,
		RoleMapping: map[string][]string{
			"engineering": {"developer"},
			"admins":      {"admin", "developer"},
		},
	}
}

type fakeBinder struct {
	entry *DirectoryEntry
	err   error
}

func (b *fakeBinder) Bind(_ context.Context, _ *LDAPConfig, _, _ string) (*DirectoryEntry, error) {
	return b.entry, b.err
}

// flakyStore wraps a MemoryStore and fails selected operations on demand
type flakyStore struct {
	*MemoryStore
	failDeletes  bool
	failUpserts  bool
	deleteCalls  int
	deletedIDs   []string
}

func (s *flakyStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.deleteCalls++
	if s.failDeletes {
		return context.DeadlineExceeded
	}
	s.deletedIDs = append(s.deletedIDs, sessionID)
	return s.MemoryStore.DeleteSession(ctx, sessionID)
}

func (s *flakyStore) UpsertSession(ctx context.Context, session *Session) error {
	if s.failUpserts {
		return context.DeadlineExceeded
	}
	return s.MemoryStore.UpsertSession(ctx, session)
}
