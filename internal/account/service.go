// Package account serves the /api/accounts endpoints: prelogin, registration,
// key-pair submission and the profile.
package account

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lambdawarden/lambdawarden/internal/accounts"
	"github.com/lambdawarden/lambdawarden/internal/apperr"
	"github.com/lambdawarden/lambdawarden/internal/tokens"
)

const defaultCulture = "en-US"

var (
	emailPattern      = regexp.MustCompile(`^.+@.+\..+$`)
	keyPattern        = regexp.MustCompile(`^\d\..+\|.+`)
	privateKeyPattern = regexp.MustCompile(`^2\..+\|.+`)
)

// Prelogin tells a client how to derive the master key.
type Prelogin struct {
	Kdf           int `json:"Kdf"`
	KdfIterations int `json:"KdfIterations"`
}

// Registration is a signup request.
type Registration struct {
	Email              string
	MasterPasswordHash string
	MasterPasswordHint string
	Key                string
	KdfIterations      int
	Name               string
	EncryptedPrivate   string
	PublicKey          string
}

// Profile is the client's view of a user.
type Profile struct {
	ID                 uuid.UUID `json:"Id"`
	Name               *string   `json:"Name"`
	Email              string    `json:"Email"`
	EmailVerified      bool      `json:"EmailVerified"`
	Premium            bool      `json:"Premium"`
	MasterPasswordHint *string   `json:"MasterPasswordHint"`
	Culture            string    `json:"Culture"`
	TwoFactorEnabled   bool      `json:"TwoFactorEnabled"`
	Key                string    `json:"Key"`
	PrivateKey         *string   `json:"PrivateKey"`
	SecurityStamp      string    `json:"SecurityStamp"`
	Organizations      []any     `json:"Organizations"`
	Object             string    `json:"Object"`
}

// KeysResponse is returned after a key pair is stored: fresh tokens plus the
// updated profile.
type KeysResponse struct {
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	Profile
}

// Service implements the account operations.
type Service struct {
	store               accounts.Store
	issuer              *tokens.Issuer
	registrationEnabled bool
	now                 func() time.Time
}

// NewService constructs the account service.
func NewService(store accounts.Store, issuer *tokens.Issuer, registrationEnabled bool) *Service {
	return &Service{store: store, issuer: issuer, registrationEnabled: registrationEnabled, now: time.Now}
}

// Prelogin returns the KDF parameters for email.
func (s *Service) Prelogin(ctx context.Context, email string) (Prelogin, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Prelogin{}, apperr.Validation("email must be supplied")
	}
	user, err := s.store.UserByEmail(ctx, email)
	if errors.Is(err, accounts.ErrNotFound) {
		return Prelogin{}, apperr.Validation("Unknown username")
	}
	if err != nil {
		return Prelogin{}, apperr.Server(err)
	}
	return Prelogin{Kdf: accounts.KdfPBKDF2, KdfIterations: user.Iterations()}, nil
}

// Register creates a user. New accounts are premium and pre-verified since
// there is no mail or billing flow behind them.
func (s *Service) Register(ctx context.Context, r Registration) (accounts.User, error) {
	if !s.registrationEnabled {
		return accounts.User{}, apperr.Validation("Signups are not permitted")
	}
	if r.MasterPasswordHash == "" {
		return accounts.User{}, apperr.Validation("masterPasswordHash cannot be blank")
	}
	if !emailPattern.MatchString(r.Email) {
		return accounts.User{}, apperr.Validation("supply a valid e-mail")
	}
	if !keyPattern.MatchString(r.Key) {
		return accounts.User{}, apperr.Validation("supply a valid key")
	}

	secret, err := accounts.NewSigningSecret()
	if err != nil {
		return accounts.User{}, apperr.Server(err)
	}
	iterations := r.KdfIterations
	if iterations <= 0 {
		iterations = accounts.DefaultKdfIterations
	}

	user := accounts.User{
		ID:            uuid.New(),
		Email:         strings.ToLower(r.Email),
		EmailVerified: true,
		Premium:       true,
		PasswordHash:  r.MasterPasswordHash,
		Key:           r.Key,
		JWTSecret:     secret,
		SecurityStamp: accounts.NewSecurityStamp(),
		Culture:       defaultCulture,
		KdfIterations: iterations,
		CreatedAt:     s.now().UTC(),
	}
	if r.Name != "" {
		user.Name = accounts.Ptr(r.Name)
	}
	if r.MasterPasswordHint != "" {
		user.PasswordHint = accounts.Ptr(r.MasterPasswordHint)
	}
	if r.EncryptedPrivate != "" {
		user.PrivateKey = accounts.Ptr(r.EncryptedPrivate)
	}
	if r.PublicKey != "" {
		user.PublicKey = accounts.Ptr(r.PublicKey)
	}

	switch err := s.store.CreateUser(ctx, user); {
	case errors.Is(err, accounts.ErrEmailTaken):
		return accounts.User{}, apperr.Validation("E-mail already taken")
	case err != nil:
		return accounts.User{}, apperr.Server(err)
	}
	return user, nil
}

// SubmitKeys stores the user's key pair and issues fresh tokens for the
// current device.
func (s *Service) SubmitKeys(ctx context.Context, user accounts.User, device accounts.Device, encryptedPrivateKey, publicKey string) (KeysResponse, error) {
	if !privateKeyPattern.MatchString(encryptedPrivateKey) {
		return KeysResponse{}, apperr.Validation("Invalid key")
	}

	var public *string
	if publicKey != "" {
		public = accounts.Ptr(publicKey)
	}
	user, err := s.store.UpdateUser(ctx, user.ID, accounts.UserPatch{
		PrivateKey: accounts.Set(accounts.Ptr(encryptedPrivateKey)),
		PublicKey:  accounts.Set(public),
	})
	if err != nil {
		return KeysResponse{}, apperr.Server(err)
	}

	issued, err := s.issuer.Issue(user, device, s.now())
	if err != nil {
		return KeysResponse{}, apperr.Server(err)
	}
	if _, err := s.store.UpsertDevice(ctx, device.ID, accounts.DevicePatch{
		RefreshToken: accounts.Set(accounts.Ptr(issued.RefreshToken)),
	}); err != nil {
		return KeysResponse{}, apperr.Server(err)
	}

	return KeysResponse{
		AccessToken:  issued.AccessToken,
		ExpiresIn:    issued.ExpiresIn(),
		TokenType:    "Bearer",
		RefreshToken: issued.RefreshToken,
		Profile:      ProfileOf(user),
	}, nil
}

// ProfileOf maps a user to its profile.
func ProfileOf(user accounts.User) Profile {
	return Profile{
		ID:                 user.ID,
		Name:               user.Name,
		Email:              user.Email,
		EmailVerified:      user.EmailVerified,
		Premium:            user.Premium,
		MasterPasswordHint: user.PasswordHint,
		Culture:            user.Culture,
		TwoFactorEnabled:   user.TwoFactorEnabled(),
		Key:                user.Key,
		PrivateKey:         user.PrivateKey,
		SecurityStamp:      user.SecurityStamp,
		Organizations:      []any{},
		Object:             "profile",
	}
}
