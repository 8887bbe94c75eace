// Package sso implements enterprise identity federation: per-organization
// auth configuration, protocol token validation, just-in-time user
// provisioning, and session lifecycle management.
//
// # Overview
//
// An organization claims an email domain and configures one federation
// protocol (SAML, OIDC, OAuth2, or LDAP). Logins route by domain: enforced
// domains go through the configured identity provider, everything else falls
// back to standard credential auth.
//
// # Authentication
//
// The Authenticator is the single entry point:
//
//	result, err := authenticator.Authenticate(ctx, &sso.Request{
//		Email: "dev@acme.example",
//		Token: rawIDToken,
//	})
//
// Results are typed outcomes: authenticated (with a session), redirect
// required (with the IdP URL), MFA required (with a challenge token), or
// failed (with a stable reason code).
//
// # Token Validation
//
// Each protocol implements TokenValidator. Validators are built per org by
// the ValidatorFactory and cached by the ConfigStore; a failed protocol
// initialization (for example an unreachable OIDC discovery endpoint)
// disables federation for that org until its config is next reloaded.
//
// # Provisioning
//
// UserProvisioner resolves validated claims to enterprise users. Unknown
// users are created just-in-time when the org allows it; known users have
// profile, groups, and derived roles refreshed on every login. Empty claim
// fields never overwrite stored values.
//
// # Sessions
//
// SessionManager keeps the authoritative session index in memory and mirrors
// it to the Store. A session is valid while it is before its absolute expiry
// and its idle gap stays under the org timeout. Expired sessions are evicted
// lazily on validation and by a periodic sweep.
//
// # Related Packages
//
//   - pkg/scim: inbound SCIM 2.0 provisioning gateway
//   - pkg/config: environment configuration
package sso
