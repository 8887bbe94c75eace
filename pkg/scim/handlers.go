package scim

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/lockhaven/fedgate/pkg/httputil"
	"github.com/lockhaven/fedgate/pkg/observability"
	"github.com/lockhaven/fedgate/pkg/sso"
)

// Gateway serves the SCIM 2.0 user provisioning surface for organizations
// that enabled directory sync
type Gateway struct {
	configs     *sso.ConfigStore
	store       sso.Store
	provisioner *sso.UserProvisioner
	logger      *observability.Logger
	metrics     *observability.Metrics
}

// NewGateway creates the SCIM gateway
func NewGateway(configs *sso.ConfigStore, store sso.Store, provisioner *sso.UserProvisioner, logger *observability.Logger, metrics *observability.Metrics) *Gateway {
	return &Gateway{
		configs:     configs,
		store:       store,
		provisioner: provisioner,
		logger:      logger.WithField("component", "scim_gateway"),
		metrics:     metrics,
	}
}

// RegisterRoutes registers SCIM routes
func (g *Gateway) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/scim/v2/{org}/Users", g.listUsers).Methods("GET")
	router.HandleFunc("/scim/v2/{org}/Users", g.createUser).Methods("POST")
	router.HandleFunc("/scim/v2/{org}/Users/{externalId}", g.getUser).Methods("GET")
	router.HandleFunc("/scim/v2/{org}/Users/{externalId}", g.notImplemented("replace")).Methods("PUT")
	router.HandleFunc("/scim/v2/{org}/Users/{externalId}", g.notImplemented("patch")).Methods("PATCH")
	router.HandleFunc("/scim/v2/{org}/Users/{externalId}", g.notImplemented("delete")).Methods("DELETE")
}

// authorize loads the org config and checks the bearer token against the
// org's provisioning credential. Every failed precondition, including an
// unknown org and disabled provisioning, rejects with 401 so the surface
// does not leak which organizations exist. Returns nil when rejected.
func (g *Gateway) authorize(w http.ResponseWriter, r *http.Request, operation string) *sso.AuthConfig {
	orgID := mux.Vars(r)["org"]

	cfg, err := g.configs.Get(r.Context(), orgID)
	if errors.Is(err, sso.ErrConfigurationMissing) {
		g.writeError(w, http.StatusUnauthorized, "", "provisioning is not enabled for this organization", operation)
		return nil
	}
	if err != nil {
		g.writeError(w, http.StatusInternalServerError, "", "configuration lookup failed", operation)
		return nil
	}
	if cfg.SCIMConfig == nil || !cfg.SCIMConfig.Enabled {
		g.writeError(w, http.StatusUnauthorized, "", "provisioning is not enabled for this organization", operation)
		return nil
	}

	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(cfg.SCIMConfig.BearerToken)) != 1 {
		g.writeError(w, http.StatusUnauthorized, "", "invalid bearer token", operation)
		return nil
	}
	return cfg
}

// listUsers handles GET /scim/v2/{org}/Users
func (g *Gateway) listUsers(w http.ResponseWriter, r *http.Request) {
	cfg := g.authorize(w, r, "list")
	if cfg == nil {
		return
	}

	users, err := g.store.ListActiveUsers(r.Context(), cfg.OrganizationID)
	if err != nil {
		g.logger.WithError(err).Error("failed to list users")
		g.writeError(w, http.StatusInternalServerError, "", "failed to list users", "list")
		return
	}

	resources := make([]*UserResource, 0, len(users))
	for _, u := range users {
		resources = append(resources, toResource(u))
	}
	g.metrics.SCIMRequestsTotal.WithLabelValues("list", "200").Inc()
	httputil.WriteJSON(w, http.StatusOK, &ListResponse{
		Schemas:      []string{ListResponseSchema},
		TotalResults: len(resources),
		ItemsPerPage: len(resources),
		StartIndex:   1,
		Resources:    resources,
	})
}

// getUser handles GET /scim/v2/{org}/Users/{externalId}
func (g *Gateway) getUser(w http.ResponseWriter, r *http.Request) {
	cfg := g.authorize(w, r, "get")
	if cfg == nil {
		return
	}

	externalID := mux.Vars(r)["externalId"]
	user, err := g.store.UserByExternalID(r.Context(), cfg.OrganizationID, cfg.Provider, externalID)
	if errors.Is(err, sso.ErrNotFound) {
		g.writeError(w, http.StatusNotFound, "", fmt.Sprintf("user %s not found", externalID), "get")
		return
	}
	if err != nil {
		g.logger.WithError(err).Error("failed to load user")
		g.writeError(w, http.StatusInternalServerError, "", "failed to load user", "get")
		return
	}
	g.metrics.SCIMRequestsTotal.WithLabelValues("get", "200").Inc()
	httputil.WriteJSON(w, http.StatusOK, toResource(user))
}

// createUser handles POST /scim/v2/{org}/Users. Creation through this surface
// is authoritative: it never consults the just-in-time provisioning flag.
func (g *Gateway) createUser(w http.ResponseWriter, r *http.Request) {
	cfg := g.authorize(w, r, "create")
	if cfg == nil {
		return
	}

	var res UserResource
	if err := httputil.ParseJSON(r, &res); err != nil {
		g.writeError(w, http.StatusBadRequest, "invalidSyntax", "malformed user resource", "create")
		return
	}
	email := res.PrimaryEmail()
	if email == "" || !strings.Contains(email, "@") {
		g.writeError(w, http.StatusBadRequest, "invalidValue", "a valid email is required", "create")
		return
	}

	var givenName, familyName string
	if res.Name != nil {
		givenName = res.Name.GivenName
		familyName = res.Name.FamilyName
	}
	groups := make([]string, 0, len(res.Groups))
	for _, ref := range res.Groups {
		if ref.Display != "" {
			groups = append(groups, ref.Display)
		} else if ref.Value != "" {
			groups = append(groups, ref.Value)
		}
	}
	active := res.Active == nil || *res.Active

	user, err := g.provisioner.CreateFromDirectory(r.Context(), cfg, res.ExternalID, email, givenName, familyName, groups, active)
	if errors.Is(err, sso.ErrUserExists) {
		g.writeError(w, http.StatusConflict, "uniqueness", "user already exists", "create")
		return
	}
	if err != nil {
		g.logger.WithError(err).Error("failed to create user")
		g.writeError(w, http.StatusInternalServerError, "", "failed to create user", "create")
		return
	}

	g.metrics.SCIMRequestsTotal.WithLabelValues("create", "201").Inc()
	httputil.WriteJSON(w, http.StatusCreated, toResource(user))
}

// notImplemented rejects the SCIM mutations this gateway does not support.
// Deactivation and attribute changes flow through token claims at login.
func (g *Gateway) notImplemented(operation string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg := g.authorize(w, r, operation); cfg == nil {
			return
		}
		g.writeError(w, http.StatusNotImplemented, "notImplemented",
			fmt.Sprintf("%s is not supported; user updates flow through sign-in claims", operation), operation)
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, status int, scimType, detail, operation string) {
	g.metrics.SCIMRequestsTotal.WithLabelValues(operation, strconv.Itoa(status)).Inc()
	httputil.WriteJSON(w, status, &Error{
		Schemas:  []string{ErrorSchema},
		ScimType: scimType,
		Detail:   detail,
		Status:   strconv.Itoa(status),
	})
}

// toResource maps an enterprise user onto the wire shape
func toResource(u *sso.User) *UserResource {
	groups := make([]GroupRef, 0, len(u.Groups))
	for _, gname := range u.Groups {
		groups = append(groups, GroupRef{Value: gname, Display: gname})
	}
	active := u.IsActive
	created := u.CreatedAt
	modified := u.UpdatedAt
	return &UserResource{
		Schemas:    []string{UserSchema},
		ID:         u.ID,
		ExternalID: u.ExternalID,
		UserName:   u.Email,
		Name:       &Name{GivenName: u.FirstName, FamilyName: u.LastName},
		Emails:     []Email{{Value: u.Email, Primary: true}},
		Active:     &active,
		Groups:     groups,
		Meta: &Meta{
			ResourceType: "User",
			Created:      &created,
			LastModified: &modified,
		},
	}
}
