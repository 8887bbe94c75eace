package scim

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lockhaven/fedgate/pkg/observability"
	"github.com/lockhaven/fedgate/pkg/sso"
)

const testBearer = "scim-secret-token"

func newTestGateway(t *testing.T, cfg *sso.AuthConfig) (*mux.Router, sso.Store) {
	t.Helper()

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	metrics := observability.NewMetrics(nil)

	store := sso.NewMemoryStore()
	factory := sso.NewValidatorFactory("https://fedgate.example", nil)
	configs := sso.NewConfigStore(store, factory, logger)
	if cfg != nil {
		require.NoError(t, configs.Install(context.Background(), cfg))
	}
	provisioner := sso.NewUserProvisioner(store, logger, metrics)

	router := mux.NewRouter()
	NewGateway(configs, store, provisioner, logger, metrics).RegisterRoutes(router)
	return router, store
}

func scimOrgConfig() *sso.AuthConfig {
	return &sso.AuthConfig{
		OrganizationID: "org-1",
		Domain:         "acme.example",
		Provider:       sso.ProviderOIDC,
		OIDCConfig: &sso.OIDCConfig{
			ClientID:  "client-1",
			IssuerURL: "https://idp.example",
		},
		JITProvisioning: false,
		SCIMConfig: &sso.SCIMConfig{
			Enabled:     true,
			BearerToken: testBearer,
		},
	}
}

func scimRequest(t *testing.T, router *mux.Router, method, path, bearer string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/scim+json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func newUserResource(externalID, email string, groups ...string) *UserResource {
	refs := make([]GroupRef, 0, len(groups))
	for _, g := range groups {
		refs = append(refs, GroupRef{Display: g})
	}
	return &UserResource{
		Schemas:    []string{UserSchema},
		ExternalID: externalID,
		UserName:   email,
		Name:       &Name{GivenName: "Ada", FamilyName: "Lovelace"},
		Emails:     []Email{{Value: email, Primary: true}},
		Groups:     refs,
	}
}

func TestGatewayRejectsUnknownOrg(t *testing.T) {
	router, _ := newTestGateway(t, nil)

	rec := scimRequest(t, router, http.MethodGet, "/scim/v2/ghost/Users", testBearer, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var scimErr Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scimErr))
	assert.Equal(t, []string{ErrorSchema}, scimErr.Schemas)
	assert.Equal(t, "401", scimErr.Status)
}

func TestGatewayRejectsDisabledProvisioning(t *testing.T) {
	cfg := scimOrgConfig()
	cfg.SCIMConfig.Enabled = false
	router, _ := newTestGateway(t, cfg)

	// Even with the correct bearer the precondition fails closed
	rec := scimRequest(t, router, http.MethodGet, "/scim/v2/org-1/Users", testBearer, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var scimErr Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scimErr))
	assert.Equal(t, "401", scimErr.Status)
}

func TestGatewayRejectsBadBearer(t *testing.T) {
	router, _ := newTestGateway(t, scimOrgConfig())

	tests := []struct {
		name   string
		bearer string
	}{
		{name: "wrong token", bearer: "not-the-token"},
		{name: "missing header", bearer: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := scimRequest(t, router, http.MethodGet, "/scim/v2/org-1/Users", tt.bearer, nil)
			require.Equal(t, http.StatusUnauthorized, rec.Code)

			var scimErr Error
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scimErr))
			assert.Equal(t, []string{ErrorSchema}, scimErr.Schemas)
			assert.Equal(t, "401", scimErr.Status)
		})
	}
}

func TestCreateUser(t *testing.T) {
	router, store := newTestGateway(t, scimOrgConfig())

	rec := scimRequest(t, router, http.MethodPost, "/scim/v2/org-1/Users", testBearer,
		newUserResource("dir-42", "ada@acme.example", "engineering"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created UserResource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "dir-42", created.ExternalID)
	assert.Equal(t, "ada@acme.example", created.UserName)
	require.NotNil(t, created.Active)
	assert.True(t, *created.Active)

	user, err := store.UserByExternalID(context.Background(), "org-1", sso.ProviderOIDC, "dir-42")
	require.NoError(t, err)
	assert.Equal(t, "ada@acme.example", user.Email)
	assert.Equal(t, []string{"engineering"}, user.Groups)
	assert.Nil(t, user.LastLogin)
}

func TestCreateUserIgnoresJITFlag(t *testing.T) {
	// JIT provisioning is off in scimOrgConfig; directory pushes are
	// authoritative and are accepted regardless.
	router, _ := newTestGateway(t, scimOrgConfig())

	rec := scimRequest(t, router, http.MethodPost, "/scim/v2/org-1/Users", testBearer,
		newUserResource("dir-1", "user@acme.example"))
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateUserConflict(t *testing.T) {
	router, _ := newTestGateway(t, scimOrgConfig())

	first := scimRequest(t, router, http.MethodPost, "/scim/v2/org-1/Users", testBearer,
		newUserResource("dir-1", "user@acme.example"))
	require.Equal(t, http.StatusCreated, first.Code)

	second := scimRequest(t, router, http.MethodPost, "/scim/v2/org-1/Users", testBearer,
		newUserResource("dir-1", "user@acme.example"))
	require.Equal(t, http.StatusConflict, second.Code)

	var scimErr Error
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &scimErr))
	assert.Equal(t, "uniqueness", scimErr.ScimType)
}

func TestCreateUserRequiresEmail(t *testing.T) {
	router, _ := newTestGateway(t, scimOrgConfig())

	res := newUserResource("dir-1", "user@acme.example")
	res.Emails = nil
	res.UserName = "not-an-email"

	rec := scimRequest(t, router, http.MethodPost, "/scim/v2/org-1/Users", testBearer, res)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var scimErr Error
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scimErr))
	assert.Equal(t, "invalidValue", scimErr.ScimType)
}

func TestCreateUserInactive(t *testing.T) {
	router, store := newTestGateway(t, scimOrgConfig())

	res := newUserResource("dir-9", "gone@acme.example")
	inactive := false
	res.Active = &inactive

	rec := scimRequest(t, router, http.MethodPost, "/scim/v2/org-1/Users", testBearer, res)
	require.Equal(t, http.StatusCreated, rec.Code)

	user, err := store.UserByExternalID(context.Background(), "org-1", sso.ProviderOIDC, "dir-9")
	require.NoError(t, err)
	assert.False(t, user.IsActive)
}

func TestListUsers(t *testing.T) {
	router, _ := newTestGateway(t, scimOrgConfig())

	for _, u := range []*UserResource{
		newUserResource("dir-1", "a@acme.example"),
		newUserResource("dir-2", "b@acme.example"),
	} {
		rec := scimRequest(t, router, http.MethodPost, "/scim/v2/org-1/Users", testBearer, u)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := scimRequest(t, router, http.MethodGet, "/scim/v2/org-1/Users", testBearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var list ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, []string{ListResponseSchema}, list.Schemas)
	assert.Equal(t, 2, list.TotalResults)
	assert.Len(t, list.Resources, 2)
	assert.Equal(t, 1, list.StartIndex)
}

func TestGetUser(t *testing.T) {
	router, _ := newTestGateway(t, scimOrgConfig())

	created := scimRequest(t, router, http.MethodPost, "/scim/v2/org-1/Users", testBearer,
		newUserResource("dir-7", "c@acme.example", "engineering"))
	require.Equal(t, http.StatusCreated, created.Code)

	rec := scimRequest(t, router, http.MethodGet, "/scim/v2/org-1/Users/dir-7", testBearer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var res UserResource
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal(t, "dir-7", res.ExternalID)
	require.NotNil(t, res.Meta)
	assert.Equal(t, "User", res.Meta.ResourceType)
	assert.WithinDuration(t, time.Now(), *res.Meta.Created, time.Minute)
}

func TestGetUserNotFound(t *testing.T) {
	router, _ := newTestGateway(t, scimOrgConfig())
	rec := scimRequest(t, router, http.MethodGet, "/scim/v2/org-1/Users/dir-404", testBearer, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMutationsNotImplemented(t *testing.T) {
	router, _ := newTestGateway(t, scimOrgConfig())

	for _, method := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete} {
		t.Run(method, func(t *testing.T) {
			rec := scimRequest(t, router, method, "/scim/v2/org-1/Users/dir-1", testBearer, nil)
			require.Equal(t, http.StatusNotImplemented, rec.Code)

			var scimErr Error
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &scimErr))
			assert.Equal(t, "notImplemented", scimErr.ScimType)
		})
	}
}

func TestMutationsStillRequireAuth(t *testing.T) {
	router, _ := newTestGateway(t, scimOrgConfig())
	rec := scimRequest(t, router, http.MethodDelete, "/scim/v2/org-1/Users/dir-1", "wrong", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
