package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtPattern = `^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`

func TestRegister(t *testing.T) {
	api := newTestAPI(t)

	rec := api.postJSON(t, "/api/register", CredentialsRequest{Username: "alice", Password: "pw1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"message":"User registered"}`, rec.Body.String())

	rec = api.postJSON(t, "/api/register", CredentialsRequest{Username: "alice", Password: "other"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Username already exists"}`, rec.Body.String())
}

func TestRegisterRejectsInvalidInput(t *testing.T) {
	api := newTestAPI(t)

	rec := api.postJSON(t, "/api/register", CredentialsRequest{Username: "  ", Password: "pw"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid input"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/api/register", strings.NewReader("{"))
	rec = api.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated, api.postJSON(t, "/api/register", CredentialsRequest{Username: "alice", Password: "pw1"}).Code)

	rec := api.postJSON(t, "/api/login", CredentialsRequest{Username: "alice", Password: "pw1"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[LoginResponse](t, rec)
	assert.True(t, resp.Success)
	assert.Regexp(t, jwtPattern, resp.Token)

	identity, err := api.tokens.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.Username)
	assert.Equal(t, "user", identity.Role)
}

func TestLoginInvalidCredentials(t *testing.T) {
	api := newTestAPI(t)
	require.Equal(t, http.StatusCreated, api.postJSON(t, "/api/register", CredentialsRequest{Username: "alice", Password: "pw1"}).Code)

	for _, creds := range []CredentialsRequest{
		{Username: "alice", Password: "wrong"},
		{Username: "nobody", Password: "pw1"},
		{Username: "alice"},
	} {
		rec := api.postJSON(t, "/api/login", creds)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.JSONEq(t, `{"success":false,"message":"Invalid credentials"}`, rec.Body.String())
		assert.NotContains(t, rec.Body.String(), "token")
	}
}

func TestRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	rec := api.authed(http.MethodGet, "/api/orders", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, http.StatusUnauthorized, api.do(req).Code)

	rec = api.authed(http.MethodGet, "/api/orders", "not.a.token")
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMe(t *testing.T) {
	api := newTestAPI(t)
	user, token := api.createUser(t, "alice", "user")

	rec := api.authed(http.MethodGet, "/api/me", token)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, float64(user.ID), body["id"])
	assert.NotContains(t, body, "password")
}
