package sso

import "errors"

// Sentinel errors for the authentication and provisioning paths. Callers use
// errors.Is; none of these cross the authentication boundary as panics.
var (
	// ErrNotFound is returned by Store lookups when no record matches
	ErrNotFound = errors.New("not found")

	// ErrConfigurationMissing means the org has no enterprise auth config.
	// Callers treat this as "federation disabled", not as a hard failure.
	ErrConfigurationMissing = errors.New("enterprise auth configuration missing")

	// ErrProtocolInit means discovery or protocol config setup failed.
	// Federation for the org stays unavailable until the next config reload.
	ErrProtocolInit = errors.New("protocol initialization failed")

	// ErrInvalidToken covers structural, expiry, and issuer failures
	ErrInvalidToken = errors.New("invalid token")

	// ErrUserNotProvisioned is returned when JIT provisioning is disabled and
	// no existing user matches the validated claims
	ErrUserNotProvisioned = errors.New("user not provisioned")

	// ErrUserExists is returned when directory-sync creation collides with an
	// existing user record
	ErrUserExists = errors.New("user already exists")
)

// Status is the terminal state of one authentication attempt
type Status string

const (
	StatusAuthenticated    Status = "authenticated"
	StatusRedirectRequired Status = "redirect_required"
	StatusMFARequired      Status = "mfa_required"
	StatusFailed           Status = "failed"
)

// Reason is the machine-readable outcome code carried by every terminal state
type Reason string

const (
	ReasonSSORedirect        Reason = "SSO_REDIRECT"
	ReasonInvalidToken       Reason = "INVALID_TOKEN"
	ReasonUserNotProvisioned Reason = "USER_NOT_PROVISIONED"
	ReasonMFARequired        Reason = "MFA_REQUIRED"
	ReasonCredentialsInvalid Reason = "CREDENTIALS_INVALID"
)
