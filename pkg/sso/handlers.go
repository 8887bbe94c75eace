package sso

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lockhaven/fedgate/pkg/httputil"
	"github.com/lockhaven/fedgate/pkg/observability"
)

// Handlers exposes the authentication surface over HTTP
type Handlers struct {
	auth     *Authenticator
	sessions *SessionManager
	configs  *ConfigStore
	logger   *observability.Logger
}

// NewHandlers creates the authentication HTTP handlers
func NewHandlers(auth *Authenticator, sessions *SessionManager, configs *ConfigStore, logger *observability.Logger) *Handlers {
	return &Handlers{
		auth:     auth,
		sessions: sessions,
		configs:  configs,
		logger:   logger.WithField("component", "auth_handlers"),
	}
}

// RegisterRoutes registers authentication routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/auth/login", h.login).Methods("POST")
	router.HandleFunc("/auth/mfa/complete", h.completeMFA).Methods("POST")
	router.HandleFunc("/auth/logout", h.logout).Methods("POST")
	router.HandleFunc("/auth/sessions/revoke", h.revokeSessions).Methods("POST")
	router.HandleFunc("/auth/sessions/{id}", h.getSession).Methods("GET")
	router.HandleFunc("/auth/sso/{org}/callback", h.callback).Methods("POST")

	router.HandleFunc("/sso/metadata/{org}", h.metadata).Methods("GET")

	router.HandleFunc("/orgs/{org}/auth-config", h.getConfig).Methods("GET")
	router.HandleFunc("/orgs/{org}/auth-config", h.updateConfig).Methods("PUT")
}

// login handles POST /auth/login
func (h *Handlers) login(w http.ResponseWriter, r *http.Request) {
	var req Request
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Email == "" {
		httputil.WriteBadRequest(w, "email is required")
		return
	}
	req.IPAddress = clientAddr(r)
	req.UserAgent = r.UserAgent()

	result, err := h.auth.Authenticate(r.Context(), &req)
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.writeResult(w, result)
}

// completeMFA handles POST /auth/mfa/complete
func (h *Handlers) completeMFA(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ChallengeToken string `json:"challenge_token"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ChallengeToken == "" {
		httputil.WriteBadRequest(w, "challenge_token is required")
		return
	}

	result, err := h.auth.CompleteMFA(r.Context(), req.ChallengeToken, clientAddr(r), r.UserAgent())
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.writeResult(w, result)
}

// callback handles POST /auth/sso/{org}/callback. It accepts either a SAML
// form post (SAMLResponse field) or a JSON body carrying a token plus the
// state minted on the redirect leg. The JSON leg requires the state and the
// validated claims must match the email it was bound to.
func (h *Handlers) callback(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["org"]

	token := ""
	boundEmail := ""
	if err := r.ParseForm(); err == nil {
		token = r.PostFormValue("SAMLResponse")
	}
	if token == "" {
		var req struct {
			Token string `json:"token"`
			State string `json:"state"`
		}
		if httputil.ParseJSON(r, &req) == nil && req.Token != "" {
			if req.State == "" {
				httputil.WriteUnauthorized(w, "state is required")
				return
			}
			email, ok := h.auth.ConsumeState(req.State)
			if !ok {
				httputil.WriteUnauthorized(w, "unknown or expired state")
				return
			}
			boundEmail = email
			token = req.Token
		}
	}
	if token == "" {
		httputil.WriteBadRequest(w, "missing assertion or token")
		return
	}

	result, err := h.auth.AuthenticateCallback(r.Context(), orgID, token, boundEmail, clientAddr(r), r.UserAgent())
	if err != nil {
		h.writeAuthError(w, err)
		return
	}
	h.writeResult(w, result)
}

// logout handles POST /auth/logout
func (h *Handlers) logout(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.SessionID == "" {
		httputil.WriteBadRequest(w, "session_id is required")
		return
	}
	h.sessions.Invalidate(r.Context(), req.SessionID)
	httputil.WriteNoContent(w)
}

// revokeSessions handles POST /auth/sessions/revoke, ending every active
// session for a user
func (h *Handlers) revokeSessions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID string `json:"user_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.UserID == "" {
		httputil.WriteBadRequest(w, "user_id is required")
		return
	}
	revoked := h.sessions.InvalidateAll(r.Context(), req.UserID)
	httputil.WriteSuccess(w, map[string]int{"revoked": revoked})
}

// getSession handles GET /auth/sessions/{id}. It doubles as the validation
// endpoint: present sessions have their activity refreshed, absent or expired
// ones return 401.
func (h *Handlers) getSession(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.Validate(r.Context(), mux.Vars(r)["id"])
	if session == nil {
		httputil.WriteUnauthorized(w, "session not found or expired")
		return
	}
	httputil.WriteSuccess(w, session)
}

// metadata handles GET /sso/metadata/{org}, serving the SAML service
// provider descriptor
func (h *Handlers) metadata(w http.ResponseWriter, r *http.Request) {
	orgID := mux.Vars(r)["org"]

	cfg, err := h.configs.Get(r.Context(), orgID)
	if errors.Is(err, ErrConfigurationMissing) {
		httputil.WriteNotFoundError(w, "organization has no federation config")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if cfg.Provider != ProviderSAML {
		httputil.WriteBadRequest(w, "organization is not configured for SAML")
		return
	}

	validator, err := h.configs.Validator(r.Context(), cfg)
	if err != nil {
		httputil.WriteServiceUnavailable(w, "federation unavailable")
		return
	}
	sv, ok := validator.(*SAMLValidator)
	if !ok {
		httputil.WriteInternalError(w, errors.New("validator does not serve metadata"))
		return
	}

	xml, err := sv.Metadata()
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/samlmetadata+xml")
	w.Write(xml)
}

// getConfig handles GET /orgs/{org}/auth-config. Secrets never serialize.
func (h *Handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.configs.Get(r.Context(), mux.Vars(r)["org"])
	if errors.Is(err, ErrConfigurationMissing) {
		httputil.WriteNotFoundError(w, "organization has no federation config")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, cfg)
}

// updateConfig handles PUT /orgs/{org}/auth-config with a partial update
func (h *Handlers) updateConfig(w http.ResponseWriter, r *http.Request) {
	var patch ConfigPatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}

	cfg, err := h.configs.Update(r.Context(), mux.Vars(r)["org"], &patch)
	if errors.Is(err, ErrConfigurationMissing) {
		httputil.WriteNotFoundError(w, "organization has no federation config")
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, cfg)
}

func (h *Handlers) writeResult(w http.ResponseWriter, result *Result) {
	status := http.StatusOK
	if result.Status == StatusFailed {
		status = http.StatusUnauthorized
	}
	httputil.WriteJSON(w, status, result)
}

func (h *Handlers) writeAuthError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrProtocolInit) {
		httputil.WriteServiceUnavailable(w, "federation unavailable")
		return
	}
	h.logger.WithError(err).Error("authentication request failed")
	httputil.WriteInternalError(w, err)
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return fwd
	}
	return r.RemoteAddr
}
