package login

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lambdawarden/lambdawarden/internal/accounts"
	"github.com/lambdawarden/lambdawarden/internal/apperr"
	"github.com/lambdawarden/lambdawarden/internal/credentials"
	"github.com/lambdawarden/lambdawarden/internal/notify"
	"github.com/lambdawarden/lambdawarden/internal/tokens"
)

const (
	GrantPassword     = "password"
	GrantRefreshToken = "refresh_token"

	requiredScope = "api offline_access"

	// providerAuthenticator is the only second factor on offer.
	providerAuthenticator = 0
)

const (
	msgInvalidCredentials = "Invalid username or password"
	msgInvalidRefresh     = "Invalid refresh token"
)

// Request is a token request after body and header normalization.
type Request struct {
	GrantType        string
	ClientID         string
	Username         string
	Password         string
	Scope            string
	RefreshToken     string
	TwoFactorToken   string
	DeviceIdentifier string
	Device           DeviceMetadata
}

// TokenResponse is the 200 body of the token endpoint.
type TokenResponse struct {
	AccessToken         string  `json:"access_token"`
	ExpiresIn           int64   `json:"expires_in"`
	TokenType           string  `json:"token_type"`
	RefreshToken        string  `json:"refresh_token"`
	Key                 string  `json:"Key"`
	PrivateKey          *string `json:"PrivateKey"`
	Kdf                 int     `json:"Kdf"`
	KdfIterations       int     `json:"KdfIterations"`
	ResetMasterPassword bool    `json:"ResetMasterPassword"`
}

// Dispatcher runs the login flow for each supported grant.
type Dispatcher struct {
	store    accounts.Store
	binder   *Binder
	issuer   *tokens.Issuer
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewDispatcher wires a Dispatcher. A nil notifier disables notifications.
func NewDispatcher(store accounts.Store, issuer *tokens.Issuer, notifier notify.Notifier, logger *slog.Logger) *Dispatcher {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Dispatcher{
		store:    store,
		binder:   NewBinder(store),
		issuer:   issuer,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Login authenticates req and returns fresh tokens. Failures are *apperr.Error
// values; a two-factor challenge is returned as KindTwoFactorRequired.
func (d *Dispatcher) Login(ctx context.Context, req Request) (TokenResponse, error) {
	var (
		user      accounts.User
		device    accounts.Device
		newDevice bool
		err       error
	)

	switch req.GrantType {
	case GrantPassword:
		user, device, err = d.passwordGrant(ctx, req)
		// A device that never received a refresh token has never completed a
		// login, whether it was just created or just taken over.
		newDevice = err == nil && !device.HasRefreshToken()
	case GrantRefreshToken:
		user, device, err = d.refreshGrant(ctx, req)
	default:
		err = apperr.Validation("Unsupported grant type")
	}
	if err != nil {
		return TokenResponse{}, err
	}

	issued, err := d.issuer.Issue(user, device, d.now())
	if err != nil {
		return TokenResponse{}, apperr.Server(err)
	}

	patch := req.Device.Patch()
	if req.GrantType != GrantPassword {
		patch = accounts.DevicePatch{}
	}
	patch.RefreshToken = accounts.Set(accounts.Ptr(issued.RefreshToken))
	device, err = d.store.UpsertDevice(ctx, device.ID, patch)
	if err != nil {
		return TokenResponse{}, apperr.Server(err)
	}

	if newDevice {
		notify.Deliver(ctx, d.notifier, d.logger, notify.Message{
			Kind:        notify.KindNewDeviceLogin,
			Destination: user.Email,
			DeviceName:  device.Name,
			DeviceType:  device.Type,
			OccurredAt:  issued.IssuedAt,
		})
	}

	return TokenResponse{
		AccessToken:   issued.AccessToken,
		ExpiresIn:     issued.ExpiresIn(),
		TokenType:     "Bearer",
		RefreshToken:  issued.RefreshToken,
		Key:           user.Key,
		PrivateKey:    user.PrivateKey,
		Kdf:           accounts.KdfPBKDF2,
		KdfIterations: user.Iterations(),
	}, nil
}

func (d *Dispatcher) passwordGrant(ctx context.Context, req Request) (accounts.User, accounts.Device, error) {
	required := []struct{ name, value string }{
		{"client_id", req.ClientID},
		{"grant_type", req.GrantType},
		{"password", req.Password},
		{"scope", req.Scope},
		{"username", req.Username},
	}
	for _, f := range required {
		if f.value == "" {
			return accounts.User{}, accounts.Device{}, apperr.Validation(f.name + " must be supplied")
		}
	}
	if req.Scope != requiredScope {
		return accounts.User{}, accounts.Device{}, apperr.Validation("Scope not supported")
	}

	user, err := d.store.UserByEmail(ctx, strings.ToLower(req.Username))
	if errors.Is(err, accounts.ErrNotFound) {
		return accounts.User{}, accounts.Device{}, apperr.Authentication(msgInvalidCredentials)
	}
	if err != nil {
		return accounts.User{}, accounts.Device{}, apperr.Server(err)
	}
	if !credentials.PasswordsMatch(user.PasswordHash, req.Password) {
		return accounts.User{}, accounts.Device{}, apperr.Authentication(msgInvalidCredentials)
	}

	if user.TwoFactorEnabled() && !credentials.VerifyOneTimeCode(*user.TOTPSecret, req.TwoFactorToken, d.now()) {
		return accounts.User{}, accounts.Device{}, apperr.TwoFactorRequired(providerAuthenticator)
	}

	identifier := req.DeviceIdentifier
	if identifier == "" {
		identifier = uuid.NewString()
	}
	device, _, err := d.binder.Bind(ctx, identifier, user, req.Device)
	if err != nil {
		return accounts.User{}, accounts.Device{}, apperr.Server(err)
	}
	return user, device, nil
}

func (d *Dispatcher) refreshGrant(ctx context.Context, req Request) (accounts.User, accounts.Device, error) {
	if req.RefreshToken == "" {
		return accounts.User{}, accounts.Device{}, apperr.Validation("Refresh token must be supplied")
	}

	device, err := d.store.DeviceByRefreshToken(ctx, req.RefreshToken)
	if errors.Is(err, accounts.ErrNotFound) {
		return accounts.User{}, accounts.Device{}, apperr.Authentication(msgInvalidRefresh)
	}
	if err != nil {
		return accounts.User{}, accounts.Device{}, apperr.Server(err)
	}
	if device.UserID == nil {
		return accounts.User{}, accounts.Device{}, apperr.Authentication(msgInvalidRefresh)
	}

	user, err := d.store.UserByID(ctx, *device.UserID)
	if errors.Is(err, accounts.ErrNotFound) {
		return accounts.User{}, accounts.Device{}, apperr.Authentication(msgInvalidRefresh)
	}
	if err != nil {
		return accounts.User{}, accounts.Device{}, apperr.Server(err)
	}
	return user, device, nil
}
