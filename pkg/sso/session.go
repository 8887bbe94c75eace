package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lockhaven/fedgate/pkg/observability"
)

const (
	// sessionIDPrefix identifies fedgate session identifiers
	sessionIDPrefix = "fgs_"
	// sessionIDBytes is the entropy of a session identifier (256 bits)
	sessionIDBytes = 32
	// sweepSchedule fires the periodic expiry sweep
	sweepSchedule = "@every 5m"
)

// SessionManager issues, validates, and expires sessions. The in-memory
// index is authoritative for active-session checks; the backing store is a
// durable mirror consulted only to rehydrate the index on restart.
type SessionManager struct {
	store   Store
	logger  *observability.Logger
	metrics *observability.Metrics

	mu       sync.RWMutex
	sessions map[string]*Session

	// pendingDeletes holds session ids whose store delete failed; retried
	// on the next sweep cycle
	pendingMu      sync.Mutex
	pendingDeletes map[string]struct{}

	cron *cron.Cron
}

// NewSessionManager creates a session manager over the given store
func NewSessionManager(store Store, logger *observability.Logger, metrics *observability.Metrics) *SessionManager {
	return &SessionManager{
		store:          store,
		logger:         logger.WithField("component", "session_manager"),
		metrics:        metrics,
		sessions:       make(map[string]*Session),
		pendingDeletes: make(map[string]struct{}),
	}
}

// Start rehydrates the index from the backing store and schedules the
// periodic sweep. Call Stop to cancel the sweep.
func (sm *SessionManager) Start(ctx context.Context) error {
	stored, err := sm.store.ListSessions(ctx)
	if err != nil {
		return fmt.Errorf("failed to rehydrate sessions: %w", err)
	}

	now := time.Now()
	sm.mu.Lock()
	for _, session := range stored {
		if session.ValidAt(now) {
			sm.sessions[session.ID] = session
		}
	}
	count := len(sm.sessions)
	sm.mu.Unlock()
	sm.metrics.SessionsActive.Set(float64(count))
	sm.logger.Infof("rehydrated %d active sessions", count)

	sm.cron = cron.New()
	if _, err := sm.cron.AddFunc(sweepSchedule, func() {
		sm.Sweep(context.Background())
	}); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	sm.cron.Start()
	return nil
}

// Stop cancels the periodic sweep
func (sm *SessionManager) Stop() {
	if sm.cron != nil {
		sm.cron.Stop()
	}
}

// deleteMirror issues a backing-store delete, queueing the id for retry on
// the next sweep when it fails. Failures never abort the caller.
func (sm *SessionManager) deleteMirror(ctx context.Context, sessionID string) {
	if err := sm.store.DeleteSession(ctx, sessionID); err != nil {
		sm.logger.WithError(err).
			WithField("session_id", sessionID).
			Warn("failed to delete session mirror; will retry next sweep")
		sm.pendingMu.Lock()
		sm.pendingDeletes[sessionID] = struct{}{}
		sm.pendingMu.Unlock()
		return
	}
	sm.pendingMu.Lock()
	delete(sm.pendingDeletes, sessionID)
	sm.pendingMu.Unlock()
}

// generateSessionID returns an unguessable session identifier
func generateSessionID() (string, error) {
	randomBytes := make([]byte, sessionIDBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return sessionIDPrefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// Create issues a new session for an authenticated user. The session is
// indexed in memory and mirrored to the backing store; a store failure fails
// the whole call and leaves no index entry behind.
func (sm *SessionManager) Create(ctx context.Context, user *User, cfg *AuthConfig, ipAddress, userAgent string) (*Session, error) {
	id, err := generateSessionID()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	session := &Session{
		ID:             id,
		UserID:         user.ID,
		OrganizationID: user.OrganizationID,
		ExpiresAt:      now.Add(cfg.SessionTimeout()),
		LastActivity:   now,
		IdleTimeout:    cfg.SessionTimeout(),
		Provider:       cfg.Provider,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		CreatedAt:      now,
	}

	sm.mu.Lock()
	sm.sessions[id] = session
	sm.mu.Unlock()

	if err := sm.store.UpsertSession(ctx, session); err != nil {
		sm.mu.Lock()
		delete(sm.sessions, id)
		sm.mu.Unlock()
		return nil, fmt.Errorf("failed to persist session: %w", err)
	}

	sm.metrics.SessionsCreatedTotal.Inc()
	sm.metrics.SessionsActive.Inc()

	cp := *session
	return &cp, nil
}

// Validate returns the session when both the absolute TTL and the sliding
// inactivity window hold, refreshing the activity stamp. Missing or expired
// sessions return nil, not an error; an expired session found here is
// evicted immediately rather than waiting for the sweep.
func (sm *SessionManager) Validate(ctx context.Context, sessionID string) *Session {
	now := time.Now()

	sm.mu.Lock()
	session, ok := sm.sessions[sessionID]
	if !ok {
		sm.mu.Unlock()
		return nil
	}
	if !session.ValidAt(now) {
		delete(sm.sessions, sessionID)
		sm.mu.Unlock()
		sm.metrics.SessionsActive.Dec()
		sm.metrics.SessionEvictionsTotal.WithLabelValues("lazy").Inc()
		sm.deleteMirror(ctx, sessionID)
		return nil
	}
	session.LastActivity = now
	cp := *session
	sm.mu.Unlock()

	// The mirror is best-effort; the index already holds the fresh stamp
	if err := sm.store.UpsertSession(ctx, &cp); err != nil {
		sm.logger.WithError(err).Warn("failed to refresh session mirror")
	}
	return &cp
}

// Invalidate removes a session. Removing a missing session is a no-op.
func (sm *SessionManager) Invalidate(ctx context.Context, sessionID string) {
	sm.mu.Lock()
	_, ok := sm.sessions[sessionID]
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	if ok {
		sm.metrics.SessionsActive.Dec()
		sm.metrics.SessionEvictionsTotal.WithLabelValues("logout").Inc()
	}
	sm.deleteMirror(ctx, sessionID)
}

// InvalidateAll removes every session belonging to a user (admin revoke)
func (sm *SessionManager) InvalidateAll(ctx context.Context, userID string) int {
	sm.mu.Lock()
	var evicted []string
	for id, session := range sm.sessions {
		if session.UserID == userID {
			evicted = append(evicted, id)
			delete(sm.sessions, id)
		}
	}
	sm.mu.Unlock()

	for _, id := range evicted {
		sm.metrics.SessionsActive.Dec()
		sm.metrics.SessionEvictionsTotal.WithLabelValues("revoke").Inc()
		sm.deleteMirror(ctx, id)
	}
	return len(evicted)
}

// Sweep evicts every session violating the TTL or inactivity invariant. It
// snapshots the index first so concurrent logins never wait on a full-table
// scan. Store delete failures are logged and retried on the next cycle; a
// single failure never aborts the sweep for other sessions.
func (sm *SessionManager) Sweep(ctx context.Context) int {
	start := time.Now()

	// Retry mirror deletes that failed on earlier cycles
	sm.pendingMu.Lock()
	retries := make([]string, 0, len(sm.pendingDeletes))
	for id := range sm.pendingDeletes {
		retries = append(retries, id)
	}
	sm.pendingMu.Unlock()
	for _, id := range retries {
		sm.deleteMirror(ctx, id)
	}

	sm.mu.RLock()
	candidates := make([]string, 0)
	for id, session := range sm.sessions {
		if !session.ValidAt(start) {
			candidates = append(candidates, id)
		}
	}
	sm.mu.RUnlock()

	evicted := 0
	for _, id := range candidates {
		sm.mu.Lock()
		session, ok := sm.sessions[id]
		// Recheck under the write lock; a validate call may have refreshed it
		if ok && !session.ValidAt(time.Now()) {
			delete(sm.sessions, id)
		} else {
			ok = false
		}
		sm.mu.Unlock()

		if !ok {
			continue
		}
		evicted++
		sm.metrics.SessionsActive.Dec()
		sm.metrics.SessionEvictionsTotal.WithLabelValues("sweep").Inc()
		sm.deleteMirror(ctx, id)
	}

	sm.metrics.SweepDurationSeconds.Observe(time.Since(start).Seconds())
	if evicted > 0 {
		sm.logger.Infof("sweep evicted %d expired sessions", evicted)
	}
	return evicted
}

// Count returns the number of sessions in the index
func (sm *SessionManager) Count() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
