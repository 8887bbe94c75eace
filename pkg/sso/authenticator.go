package sso

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/lockhaven/fedgate/pkg/observability"
)

const (
	// challengeTTL bounds how long an MFA challenge stays redeemable
	challengeTTL = 5 * time.Minute
	// stateTTL bounds how long a login redirect state stays valid
	stateTTL = 10 * time.Minute
)

// StandardAuth verifies local password credentials. It is an external
// collaborator used only when federation is not mandatory for the domain.
type StandardAuth interface {
	// VerifyPassword returns the identity for valid credentials, or nil
	// plus a nil error for invalid ones
	VerifyPassword(ctx context.Context, email, password string) (*Identity, error)
}

// Identity is the result of local credential verification
type Identity struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
}

// Request is one authentication attempt
type Request struct {
	Email     string `json:"email"`
	Password  string `json:"password,omitempty"`
	Token     string `json:"token,omitempty"`
	IPAddress string `json:"-"`
	UserAgent string `json:"-"`

	// boundEmail is the email the redirect state was minted for. Set only on
	// the callback leg; when present the validated claims must carry it.
	boundEmail string
}

// Result is the terminal state of an authentication attempt. Redirect- and
// MFA-required are successful-so-far outcomes the caller routes to follow-up
// steps, not errors.
type Result struct {
	Status         Status   `json:"status"`
	Reason         Reason   `json:"reason,omitempty"`
	RedirectURL    string   `json:"redirect_url,omitempty"`
	ChallengeToken string   `json:"challenge_token,omitempty"`
	User           *User    `json:"user,omitempty"`
	Session        *Session `json:"session,omitempty"`
}

// Authenticator orchestrates the authenticate-by-domain decision: it resolves
// the email domain against the config store, routes between federated and
// standard auth, and gates session issuance on MFA.
type Authenticator struct {
	configs     *ConfigStore
	provisioner *UserProvisioner
	sessions    *SessionManager
	standard    StandardAuth
	logger      *observability.Logger
	metrics     *observability.Metrics

	// challenges holds pending MFA gates; states holds anti-forgery
	// redirect state bound to the requesting email. redeemMu serializes
	// get-and-delete so each value redeems exactly once.
	redeemMu   sync.Mutex
	challenges *gocache.Cache
	states     *gocache.Cache
}

type pendingMFA struct {
	user *User
	cfg  *AuthConfig
}

// NewAuthenticator wires the authentication entry point. standard may be nil
// when local password login is not deployed.
func NewAuthenticator(configs *ConfigStore, provisioner *UserProvisioner, sessions *SessionManager, standard StandardAuth, logger *observability.Logger, metrics *observability.Metrics) *Authenticator {
	return &Authenticator{
		configs:     configs,
		provisioner: provisioner,
		sessions:    sessions,
		standard:    standard,
		logger:      logger.WithField("component", "authenticator"),
		metrics:     metrics,
		challenges:  gocache.New(challengeTTL, 2*challengeTTL),
		states:      gocache.New(stateTTL, 2*stateTTL),
	}
}

// Authenticate runs one attempt through domain check, federated or standard
// auth, and the MFA gate. Typed outcomes cover every expected failure; a
// non-nil error means the attempt itself could not be processed (store
// outage, protocol unavailable) and may be retried wholesale.
func (a *Authenticator) Authenticate(ctx context.Context, req *Request) (*Result, error) {
	_, domain, ok := strings.Cut(req.Email, "@")
	if !ok || domain == "" {
		return a.outcome(StatusFailed, ReasonCredentialsInvalid), nil
	}

	cfg, err := a.configs.GetByDomain(ctx, domain)
	if err != nil && !errors.Is(err, ErrConfigurationMissing) {
		// A store read failure means federation is off for this attempt,
		// not that every login fails closed
		a.logger.WithError(err).Warn("config lookup failed; treating federation as disabled")
		cfg = nil
	}

	federationMandatory := cfg != nil && cfg.EnforceSSO && cfg.DomainAllowed(domain)
	if federationMandatory || (cfg != nil && req.Token != "") {
		return a.federated(ctx, req, cfg)
	}
	return a.standardAuth(ctx, req, cfg)
}

// AuthenticateCallback handles the IdP return leg, where the organization is
// known from the callback route rather than the email domain. boundEmail is
// the email the consumed redirect state was minted for; empty skips the
// binding check (SAML, where the signed assertion carries its own audience).
func (a *Authenticator) AuthenticateCallback(ctx context.Context, orgID, token, boundEmail, ipAddress, userAgent string) (*Result, error) {
	cfg, err := a.configs.Get(ctx, orgID)
	if errors.Is(err, ErrConfigurationMissing) {
		return a.outcome(StatusFailed, ReasonInvalidToken), nil
	}
	if err != nil {
		return nil, err
	}
	return a.federated(ctx, &Request{
		Token:      token,
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		boundEmail: boundEmail,
	}, cfg)
}

// federated validates the token (or builds the IdP redirect) and provisions
// the user
func (a *Authenticator) federated(ctx context.Context, req *Request, cfg *AuthConfig) (*Result, error) {
	validator, err := a.configs.Validator(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("federation unavailable for %s: %w", cfg.OrganizationID, err)
	}

	token := req.Token
	if token == "" && cfg.Provider == ProviderLDAP && req.Password != "" {
		// Directory auth carries the password itself; there is no redirect
		token = EncodeCredentials(req.Email, req.Password)
	}

	if token == "" {
		return a.redirect(req.Email, cfg, validator)
	}

	claims, err := validator.Validate(ctx, token)
	if err != nil {
		a.metrics.TokenValidations.WithLabelValues(string(cfg.Provider), "invalid").Inc()
		if errors.Is(err, ErrInvalidToken) {
			a.logger.WithError(err).WithField("organization_id", cfg.OrganizationID).Debug("token rejected")
			return a.outcome(StatusFailed, ReasonInvalidToken), nil
		}
		return nil, err
	}
	a.metrics.TokenValidations.WithLabelValues(string(cfg.Provider), "valid").Inc()

	if req.boundEmail != "" && !strings.EqualFold(claims.Email, req.boundEmail) {
		a.logger.WithField("organization_id", cfg.OrganizationID).
			Warn("callback claims do not match the email the redirect state was minted for")
		return a.outcome(StatusFailed, ReasonInvalidToken), nil
	}

	user, err := a.provisioner.Resolve(ctx, claims, cfg)
	if errors.Is(err, ErrUserNotProvisioned) {
		return a.outcome(StatusFailed, ReasonUserNotProvisioned), nil
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return a.outcome(StatusFailed, ReasonCredentialsInvalid), nil
	}

	if cfg.MFARequired && !claims.MFAAsserted {
		challenge, err := randomToken("fgc_")
		if err != nil {
			return nil, err
		}
		a.challenges.Set(challenge, &pendingMFA{user: user, cfg: cfg}, gocache.DefaultExpiration)
		result := a.outcome(StatusMFARequired, ReasonMFARequired)
		result.ChallengeToken = challenge
		return result, nil
	}

	return a.issueSession(ctx, user, cfg, req)
}

// redirect builds the provider authorization URL with a fresh anti-forgery
// state bound to the requesting email
func (a *Authenticator) redirect(email string, cfg *AuthConfig, validator TokenValidator) (*Result, error) {
	rb, ok := validator.(RedirectBuilder)
	if !ok {
		return a.outcome(StatusFailed, ReasonCredentialsInvalid), nil
	}

	state, err := randomToken("")
	if err != nil {
		return nil, err
	}
	a.states.Set(state, email, gocache.DefaultExpiration)

	url, err := rb.AuthURL(state)
	if err != nil {
		return nil, fmt.Errorf("failed to build authorization URL: %w", err)
	}

	result := a.outcome(StatusRedirectRequired, ReasonSSORedirect)
	result.RedirectURL = url
	return result, nil
}

// standardAuth delegates to the local credential collaborator and wraps the
// identity into an enterprise user view with the default role
func (a *Authenticator) standardAuth(ctx context.Context, req *Request, cfg *AuthConfig) (*Result, error) {
	if a.standard == nil || req.Password == "" {
		return a.outcome(StatusFailed, ReasonCredentialsInvalid), nil
	}

	identity, err := a.standard.VerifyPassword(ctx, req.Email, req.Password)
	if err != nil {
		return nil, fmt.Errorf("credential verification failed: %w", err)
	}
	if identity == nil {
		return a.outcome(StatusFailed, ReasonCredentialsInvalid), nil
	}

	user := &User{
		ID:        identity.ID,
		Email:     identity.Email,
		FirstName: identity.FirstName,
		LastName:  identity.LastName,
		Roles:     []string{DefaultRole},
		IsActive:  true,
	}
	sessionCfg := cfg
	if sessionCfg == nil {
		sessionCfg = &AuthConfig{}
	} else {
		user.OrganizationID = cfg.OrganizationID
	}
	return a.issueSession(ctx, user, sessionCfg, req)
}

// CompleteMFA redeems a challenge token after the second factor succeeded and
// issues the deferred session. The challenge is single-use.
func (a *Authenticator) CompleteMFA(ctx context.Context, challengeToken string, ipAddress, userAgent string) (*Result, error) {
	a.redeemMu.Lock()
	val, ok := a.challenges.Get(challengeToken)
	if ok {
		a.challenges.Delete(challengeToken)
	}
	a.redeemMu.Unlock()
	if !ok {
		return a.outcome(StatusFailed, ReasonInvalidToken), nil
	}

	pending := val.(*pendingMFA)
	return a.issueSession(ctx, pending.user, pending.cfg, &Request{
		IPAddress: ipAddress,
		UserAgent: userAgent,
	})
}

// ConsumeState redeems a redirect state value, returning the email it was
// bound to. States are single-use.
func (a *Authenticator) ConsumeState(state string) (string, bool) {
	a.redeemMu.Lock()
	defer a.redeemMu.Unlock()

	val, ok := a.states.Get(state)
	if !ok {
		return "", false
	}
	a.states.Delete(state)
	return val.(string), true
}

func (a *Authenticator) issueSession(ctx context.Context, user *User, cfg *AuthConfig, req *Request) (*Result, error) {
	session, err := a.sessions.Create(ctx, user, cfg, req.IPAddress, req.UserAgent)
	if err != nil {
		return nil, err
	}
	result := a.outcome(StatusAuthenticated, "")
	result.User = user
	result.Session = session
	return result, nil
}

func (a *Authenticator) outcome(status Status, reason Reason) *Result {
	a.metrics.AuthAttemptsTotal.WithLabelValues(string(status), string(reason)).Inc()
	return &Result{Status: status, Reason: reason}
}

// randomToken returns an unguessable opaque value with the given prefix
func randomToken(prefix string) (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return prefix + base64.RawURLEncoding.EncodeToString(b), nil
}
