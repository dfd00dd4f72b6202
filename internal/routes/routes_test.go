package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lambdawarden/lambdawarden/internal/accounts"
	"github.com/lambdawarden/lambdawarden/internal/apperr"
	"github.com/lambdawarden/lambdawarden/internal/config"
	"github.com/lambdawarden/lambdawarden/internal/credentials"
	"github.com/lambdawarden/lambdawarden/internal/kdf"
	"github.com/lambdawarden/lambdawarden/internal/logging"
	"github.com/lambdawarden/lambdawarden/internal/notify"
)

func testConfig() config.Config {
	return config.Config{
		AppName:         "lambdawarden-test",
		AppEnv:          "test",
		AccessTokenTTL:  time.Hour,
		AccessTokenSkew: 2 * time.Minute,
		TOTPIssuer:      "lambdawarden",
		AdminToken:      "ops",
	}
}

func newTestApp(t *testing.T, cfg config.Config) (*fiber.App, *accounts.MemoryStore) {
	t.Helper()
	store := accounts.NewMemoryStore()
	app := fiber.New(fiber.Config{ErrorHandler: apperr.Handler(logging.Discard())})
	require.NoError(t, Setup(app, Deps{Cfg: cfg, Logger: logging.Discard(), Store: store, Notifier: notify.Nop{}}))
	return app, store
}

type call struct {
	method, path, contentType, body string
	headers                         map[string]string
}

func send(t *testing.T, app *fiber.App, c call) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if c.body != "" {
		reader = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.path, reader)
	if c.contentType != "" {
		req.Header.Set("Content-Type", c.contentType)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func register(t *testing.T, app *fiber.App, email, hash string) {
	t.Helper()
	status, body := send(t, app, call{
		method: http.MethodPost, path: "/api/accounts/register", contentType: "application/json",
		body: `{"email":"` + email + `","masterPasswordHash":"` + hash + `","key":"0.iv|ct"}`,
	})
	require.Equal(t, http.StatusOK, status, string(body))
}

func passwordLogin(t *testing.T, app *fiber.App, email, hash, device, code string) (int, []byte) {
	t.Helper()
	form := url.Values{
		"grant_type":       {"password"},
		"username":         {email},
		"password":         {hash},
		"scope":            {"api offline_access"},
		"client_id":        {"browser"},
		"deviceIdentifier": {device},
		"deviceName":       {"firefox"},
		"deviceType":       {"3"},
	}
	if code != "" {
		form.Set("twoFactorToken", code)
	}
	return send(t, app, call{
		method: http.MethodPost, path: "/identity/connect/token",
		contentType: "application/x-www-form-urlencoded", body: form.Encode(),
	})
}

type tokenBody struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

func TestLoginFlowEndToEnd(t *testing.T) {
	app, _ := newTestApp(t, testConfig())
	hash, err := kdf.MasterPasswordHash("correct horse", "a@b.com", accounts.DefaultKdfIterations)
	require.NoError(t, err)
	register(t, app, "a@b.com", hash)

	status, body := send(t, app, call{method: http.MethodPost, path: "/api/accounts/prelogin", contentType: "application/json", body: `{"email":"A@B.com"}`})
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `{"Kdf":0,"KdfIterations":5000}`, string(body))

	status, body = passwordLogin(t, app, "a@b.com", hash, "dev-1", "")
	require.Equal(t, http.StatusOK, status, string(body))
	var tok tokenBody
	require.NoError(t, json.Unmarshal(body, &tok))
	assert.Equal(t, int64(3600), tok.ExpiresIn)

	bearer := map[string]string{"Authorization": "Bearer " + tok.AccessToken}
	status, body = send(t, app, call{method: http.MethodGet, path: "/api/accounts/profile", headers: bearer})
	require.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"Email":"a@b.com"`)

	status, body = send(t, app, call{
		method: http.MethodPost, path: "/identity/connect/token", contentType: "application/x-www-form-urlencoded",
		body: url.Values{"grant_type": {"refresh_token"}, "refresh_token": {tok.RefreshToken}}.Encode(),
	})
	require.Equal(t, http.StatusOK, status, string(body))
	var refreshed tokenBody
	require.NoError(t, json.Unmarshal(body, &refreshed))
	assert.Equal(t, tok.RefreshToken, refreshed.RefreshToken)

	status, _ = send(t, app, call{method: http.MethodGet, path: "/api/accounts/profile"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestTwoFactorEnrollmentThroughAdminRoutes(t *testing.T) {
	app, store := newTestApp(t, testConfig())
	register(t, app, "a@b.com", "H")

	status, body := passwordLogin(t, app, "a@b.com", "H", "dev-1", "")
	require.Equal(t, http.StatusOK, status)
	var before tokenBody
	require.NoError(t, json.Unmarshal(body, &before))

	admin := map[string]string{"X-Admin-Token": "ops"}
	status, body = send(t, app, call{method: http.MethodPost, path: "/admin/two-factor/setup", contentType: "application/json", body: `{"email":"a@b.com"}`, headers: admin})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.True(t, strings.HasPrefix(string(body), "data:image/png;base64,"))

	status, _ = send(t, app, call{method: http.MethodPost, path: "/admin/two-factor/setup", contentType: "application/json", body: `{"email":"a@b.com"}`})
	assert.Equal(t, http.StatusUnauthorized, status)

	pending, err := store.UserByEmail(context.Background(), "a@b.com")
	require.NoError(t, err)
	code, err := credentials.CodeAt(*pending.TOTPSecretTemp, time.Now())
	require.NoError(t, err)

	status, body = send(t, app, call{method: http.MethodPost, path: "/admin/two-factor/complete", contentType: "application/json", body: `{"email":"a@b.com","code":"` + code + `"}`, headers: admin})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "OK, 2FA setup.", string(body))

	status, _ = send(t, app, call{method: http.MethodGet, path: "/api/accounts/profile", headers: map[string]string{"Authorization": "Bearer " + before.AccessToken}})
	assert.Equal(t, http.StatusUnauthorized, status, "enrollment rotates the stamp")

	status, body = passwordLogin(t, app, "a@b.com", "H", "dev-1", "")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"error":"invalid_grant","error_description":"Two factor required.","TwoFactorProviders":[0],"TwoFactorProviders2":{"0":null}}`, string(body))

	code, err = credentials.CodeAt(*pending.TOTPSecretTemp, time.Now())
	require.NoError(t, err)
	status, body = passwordLogin(t, app, "a@b.com", "H", "dev-1", code)
	assert.Equal(t, http.StatusOK, status, string(body))
}

func TestAdminRoutesAbsentWithoutToken(t *testing.T) {
	cfg := testConfig()
	cfg.AdminToken = ""
	app, _ := newTestApp(t, cfg)

	status, body := send(t, app, call{method: http.MethodPost, path: "/admin/two-factor/setup", contentType: "application/json", body: `{"email":"a@b.com"}`})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Not Found", string(body))
}

func TestRegistrationCanBeDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.DisableRegistration = true
	app, _ := newTestApp(t, cfg)

	status, body := send(t, app, call{
		method: http.MethodPost, path: "/api/accounts/register", contentType: "application/json",
		body: `{"email":"a@b.com","masterPasswordHash":"H","key":"0.iv|ct"}`,
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.JSONEq(t, `{"ValidationErrors":{"":["Signups are not permitted"]},"Object":"error"}`, string(body))
}

func TestHealthAndFallback(t *testing.T) {
	app, _ := newTestApp(t, testConfig())

	status, body := send(t, app, call{method: http.MethodGet, path: "/healthz"})
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, string(body), `"postgres":"memory"`)
	assert.Contains(t, string(body), `"redis":"disabled"`)

	status, _ = send(t, app, call{method: http.MethodGet, path: "/api/ciphers"})
	assert.Equal(t, http.StatusNotFound, status)
}

func TestSetupRequiresDatabaseOutsideDev(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = "production"
	err := Setup(fiber.New(), Deps{Cfg: cfg})
	require.Error(t, err)
}
