// Package twofactor enrolls users in time-based one-time codes.
package twofactor

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/lambdawarden/lambdawarden/internal/accounts"
	"github.com/lambdawarden/lambdawarden/internal/apperr"
	"github.com/lambdawarden/lambdawarden/internal/credentials"
	"github.com/lambdawarden/lambdawarden/internal/notify"
)

// State is where a user stands in enrollment.
type State int

const (
	Disabled State = iota
	PendingSetup
	Enabled
)

func (s State) String() string {
	switch s {
	case PendingSetup:
		return "pending_setup"
	case Enabled:
		return "enabled"
	default:
		return "disabled"
	}
}

// StateOf derives the enrollment state from the stored secrets. A confirmed
// secret wins over a pending one, so re-enrollment keeps the old factor
// active until the new one is confirmed.
func StateOf(user accounts.User) State {
	switch {
	case user.TwoFactorEnabled():
		return Enabled
	case user.TOTPSecretTemp != nil && *user.TOTPSecretTemp != "":
		return PendingSetup
	default:
		return Disabled
	}
}

const (
	qrSize = 256

	// CompletedMessage is returned once a code confirms the pending secret.
	CompletedMessage = "OK, 2FA setup."
)

// Provisioning is what an authenticator app needs to add the account.
type Provisioning struct {
	URL    string
	QRCode string
	Secret string
}

// Service drives enrollment.
type Service struct {
	store    accounts.Store
	issuer   string
	notifier notify.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs an enrollment service. issuer is the label shown in
// authenticator apps.
func NewService(store accounts.Store, issuer string, notifier notify.Notifier, logger *slog.Logger) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{store: store, issuer: issuer, notifier: notifier, logger: logger, now: time.Now}
}

// Setup stores a fresh pending secret for email and returns its provisioning
// data. Calling it again replaces the pending secret.
func (s *Service) Setup(ctx context.Context, email string) (Provisioning, error) {
	user, err := s.lookup(ctx, email)
	if err != nil {
		return Provisioning{}, err
	}

	key, err := credentials.NewOneTimeSecret(s.issuer, user.Email)
	if err != nil {
		return Provisioning{}, apperr.Server(err)
	}
	img, err := key.Image(qrSize, qrSize)
	if err != nil {
		return Provisioning{}, apperr.Server(fmt.Errorf("render qr code: %w", err))
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return Provisioning{}, apperr.Server(fmt.Errorf("encode qr code: %w", err))
	}

	secret := key.Secret()
	if _, err := s.store.UpdateUser(ctx, user.ID, accounts.UserPatch{TOTPSecretTemp: accounts.Set(&secret)}); err != nil {
		return Provisioning{}, apperr.Server(err)
	}

	return Provisioning{
		URL:    key.URL(),
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		Secret: secret,
	}, nil
}

// Complete confirms the pending secret with code. On success the secret
// becomes active and the security stamp is replaced, which signs out every
// existing session.
func (s *Service) Complete(ctx context.Context, email, code string) error {
	if strings.TrimSpace(code) == "" {
		return apperr.Validation("Verification code must be supplied")
	}
	user, err := s.lookup(ctx, email)
	if err != nil {
		return err
	}
	if user.TOTPSecretTemp == nil || *user.TOTPSecretTemp == "" {
		return apperr.Validation("Two-factor setup has not been started")
	}
	if !credentials.VerifyOneTimeCode(*user.TOTPSecretTemp, code, s.now()) {
		return apperr.Validation("Could not verify supplied code, please try again.")
	}

	pending := *user.TOTPSecretTemp
	_, err = s.store.UpdateUser(ctx, user.ID, accounts.UserPatch{
		TOTPSecret:     accounts.Set(&pending),
		TOTPSecretTemp: accounts.Set[*string](nil),
		SecurityStamp:  accounts.Set(accounts.NewSecurityStamp()),
	})
	if err != nil {
		return apperr.Server(err)
	}

	notify.Deliver(ctx, s.notifier, s.logger, notify.Message{
		Kind:        notify.KindTwoFactorEnabled,
		Destination: user.Email,
		OccurredAt:  s.now().UTC(),
	})
	return nil
}

func (s *Service) lookup(ctx context.Context, email string) (accounts.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return accounts.User{}, apperr.Validation("E-mail must be supplied")
	}
	user, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, accounts.ErrNotFound) {
		return accounts.User{}, apperr.Validation("User not found")
	}
	if err != nil {
		return accounts.User{}, apperr.Server(err)
	}
	return user, nil
}
