package login

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lambdawarden/lambdawarden/internal/accounts"
	"github.com/lambdawarden/lambdawarden/internal/apperr"
	"github.com/lambdawarden/lambdawarden/internal/logging"
)

func newTokenApp(e *env) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: apperr.Handler(logging.Discard())})
	app.Post("/identity/connect/token", NewHandler(e.dispatch).Token)
	return app
}

func postForm(t *testing.T, app *fiber.App, form url.Values, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/identity/connect/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func loginForm() url.Values {
	return url.Values{
		"grant_type":       {"password"},
		"username":         {"a@b.com"},
		"password":         {"H"},
		"scope":            {"api offline_access"},
		"client_id":        {"x"},
		"deviceIdentifier": {"dev-1"},
		"deviceName":       {"chrome"},
	}
}

func TestTokenEndpointPasswordGrant(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "a@b.com", "H")
	app := newTokenApp(e)

	resp, body := postForm(t, app, loginForm(), map[string]string{"Device-Type": "3"})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var out map[string]any
	require.NoError(t, json.Unmarshal(body, &out))
	assert.NotEmpty(t, out["access_token"])
	assert.NotEmpty(t, out["refresh_token"])
	assert.Equal(t, "Bearer", out["token_type"])
	assert.Equal(t, float64(3600), out["expires_in"])
	assert.Equal(t, float64(0), out["Kdf"])
	assert.Equal(t, false, out["ResetMasterPassword"])
	assert.Contains(t, out, "PrivateKey")

	device, err := e.store.DeviceByID(context.Background(), "dev-1")
	require.NoError(t, err)
	assert.Equal(t, 3, device.Type, "string header value is coerced")
	assert.Equal(t, "chrome", device.Name)
}

func TestTokenEndpointAcceptsJSON(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "a@b.com", "H")
	app := newTokenApp(e)

	payload := `{"grant_type":"password","Username":"a@b.com","Password":"H","Scope":"api offline_access","Client_Id":"x"}`
	req := httptest.NewRequest(http.MethodPost, "/identity/connect/token", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTokenEndpointTwoFactorBody(t *testing.T) {
	e := newEnv(t)
	user := e.addUser(t, "a@b.com", "H")
	_, err := e.store.UpdateUser(context.Background(), user.ID, accounts.UserPatch{TOTPSecret: accounts.Set(accounts.Ptr("JBSWY3DPEHPK3PXP"))})
	require.NoError(t, err)

	resp, body := postForm(t, newTokenApp(e), loginForm(), nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t,
		`{"error":"invalid_grant","error_description":"Two factor required.","TwoFactorProviders":[0],"TwoFactorProviders2":{"0":null}}`,
		string(body))

	device, err := e.store.DeviceByID(context.Background(), "dev-1")
	if err == nil {
		assert.False(t, device.HasRefreshToken())
	}
}

func TestTokenEndpointFailuresAreValidationBodies(t *testing.T) {
	e := newEnv(t)
	e.addUser(t, "a@b.com", "H")
	app := newTokenApp(e)

	wrong := loginForm()
	wrong.Set("password", "nope")
	badScope := loginForm()
	badScope.Set("scope", "api")

	cases := map[string]struct {
		form url.Values
		want string
	}{
		"bad password":  {wrong, "Invalid username or password"},
		"bad scope":     {badScope, "Scope not supported"},
		"bad refresh":   {url.Values{"grant_type": {"refresh_token"}, "refresh_token": {"nope"}}, "Invalid refresh token"},
		"unknown grant": {url.Values{"grant_type": {"implicit"}}, "Unsupported grant type"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			resp, body := postForm(t, app, tc.form, nil)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			var out apperr.ValidationBody
			require.NoError(t, json.Unmarshal(body, &out))
			assert.Equal(t, "error", out.Object)
			assert.Equal(t, []string{tc.want}, out.ValidationErrors[""])
		})
	}
}

func TestTokenEndpointMissingBody(t *testing.T) {
	e := newEnv(t)
	req := httptest.NewRequest(http.MethodPost, "/identity/connect/token", nil)
	resp, err := newTokenApp(e).Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
