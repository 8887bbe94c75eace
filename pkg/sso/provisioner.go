package sso

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lockhaven/fedgate/pkg/observability"
)

// UserProvisioner creates and updates enterprise user records from federated
// claims. It is the only writer of user records; persistence failures
// propagate to the caller, which may retry the whole authentication attempt.
type UserProvisioner struct {
	store   Store
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewUserProvisioner creates a provisioner over the given store
func NewUserProvisioner(store Store, logger *observability.Logger, metrics *observability.Metrics) *UserProvisioner {
	return &UserProvisioner{
		store:   store,
		logger:  logger.WithField("component", "provisioner"),
		metrics: metrics,
	}
}

// Resolve finds or creates the user matching validated claims. Called only
// after token validation succeeded.
func (p *UserProvisioner) Resolve(ctx context.Context, claims *Claims, cfg *AuthConfig) (*User, error) {
	user, err := p.store.UserByEmail(ctx, cfg.OrganizationID, claims.Email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if errors.Is(err, ErrNotFound) && claims.Subject != "" {
		// The email may have changed at the provider; the subject identifier
		// is the stable natural key for federation.
		user, err = p.store.UserByExternalID(ctx, cfg.OrganizationID, cfg.Provider, claims.Subject)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
	}

	if errors.Is(err, ErrNotFound) {
		if !cfg.JITProvisioning {
			return nil, ErrUserNotProvisioned
		}
		return p.create(ctx, claims, cfg)
	}

	return p.update(ctx, user, claims, cfg)
}

// create provisions a new user from claims (JIT path)
func (p *UserProvisioner) create(ctx context.Context, claims *Claims, cfg *AuthConfig) (*User, error) {
	externalID := claims.Subject
	if externalID == "" {
		// Protocols without a stable subject fall back to the email
		externalID = claims.Email
	}

	now := time.Now()
	user := &User{
		ID:             uuid.NewString(),
		OrganizationID: cfg.OrganizationID,
		Email:          claims.Email,
		FirstName:      claims.GivenName,
		LastName:       claims.FamilyName,
		Groups:         claims.Groups,
		Roles:          MapRoles(claims.Groups, cfg.RoleMapping),
		IsActive:       true,
		Provider:       cfg.Provider,
		ExternalID:     externalID,
		LastLogin:      &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := p.store.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	p.metrics.UsersProvisionedTotal.WithLabelValues("jit", "create").Inc()
	p.logger.WithFields(map[string]interface{}{
		"organization_id": cfg.OrganizationID,
		"email":           user.Email,
	}).Info("provisioned new user")
	return user, nil
}

// update refreshes an existing user from the latest claims. Present claim
// fields win over stored values; empty or absent claim fields never clear
// previously stored data.
func (p *UserProvisioner) update(ctx context.Context, user *User, claims *Claims, cfg *AuthConfig) (*User, error) {
	if claims.GivenName != "" {
		user.FirstName = claims.GivenName
	}
	if claims.FamilyName != "" {
		user.LastName = claims.FamilyName
	}
	if len(claims.Groups) > 0 {
		user.Groups = claims.Groups
	}
	if claims.Email != "" {
		user.Email = claims.Email
	}
	if user.ExternalID == "" && claims.Subject != "" {
		// Pre-provisioned users gain their subject binding on first login
		user.ExternalID = claims.Subject
	}

	user.Roles = MapRoles(user.Groups, cfg.RoleMapping)
	user.Provider = cfg.Provider
	now := time.Now()
	user.LastLogin = &now
	user.UpdatedAt = now

	if err := p.store.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return user, nil
}

// CreateFromDirectory provisions a user pushed by the identity provider over
// the directory-sync surface. JIT gating does not apply: when SCIM is
// enabled the provider is the authority.
func (p *UserProvisioner) CreateFromDirectory(ctx context.Context, cfg *AuthConfig, externalID, email, givenName, familyName string, groups []string, active bool) (*User, error) {
	if _, err := p.store.UserByEmail(ctx, cfg.OrganizationID, email); err == nil {
		return nil, ErrUserExists
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if externalID != "" {
		if _, err := p.store.UserByExternalID(ctx, cfg.OrganizationID, cfg.Provider, externalID); err == nil {
			return nil, ErrUserExists
		} else if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("failed to look up user: %w", err)
		}
	}

	if externalID == "" {
		externalID = email
	}

	now := time.Now()
	user := &User{
		ID:             uuid.NewString(),
		OrganizationID: cfg.OrganizationID,
		Email:          email,
		FirstName:      givenName,
		LastName:       familyName,
		Groups:         groups,
		Roles:          MapRoles(groups, cfg.RoleMapping),
		IsActive:       active,
		Provider:       cfg.Provider,
		ExternalID:     externalID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := p.store.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	p.metrics.UsersProvisionedTotal.WithLabelValues("scim", "create").Inc()
	p.logger.WithFields(map[string]interface{}{
		"organization_id": cfg.OrganizationID,
		"email":           email,
	}).Info("provisioned user via directory sync")
	return user, nil
}
