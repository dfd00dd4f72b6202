// Package tokens mints access/refresh tokens and resolves bearer tokens back
// to the user and device they were issued for.
package tokens

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/lambdawarden/lambdawarden/internal/accounts"
)

const (
	// DefaultValidity is the access token lifetime.
	DefaultValidity = time.Hour
	// DefaultSkew backdates nbf to tolerate client clock drift.
	DefaultSkew = 2 * time.Minute

	issuerName        = "/identity"
	refreshTokenBytes = 64
)

var signingMethod = jwt.SigningMethodHS256

// Claims is the access token payload.
type Claims struct {
	Premium       bool     `json:"premium"`
	Name          string   `json:"name,omitempty"`
	Email         string   `json:"email"`
	EmailVerified bool     `json:"email_verified"`
	SecurityStamp string   `json:"sstamp"`
	Device        string   `json:"device"`
	Scope         []string `json:"scope"`
	AMR           []string `json:"amr"`
	jwt.RegisteredClaims
}

// Tokens is the result of Issue.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// ExpiresIn is the access token lifetime in whole seconds.
func (t Tokens) ExpiresIn() int64 {
	return int64(t.ExpiresAt.Sub(t.IssuedAt) / time.Second)
}

// Issuer mints tokens. It is immutable and safe for concurrent use.
type Issuer struct {
	validity time.Duration
	skew     time.Duration
}

// NewIssuer builds an Issuer; non-positive durations fall back to the defaults.
func NewIssuer(validity, skew time.Duration) *Issuer {
	if validity <= 0 {
		validity = DefaultValidity
	}
	if skew < 0 {
		skew = DefaultSkew
	}
	return &Issuer{validity: validity, skew: skew}
}

// Validity returns the configured access token lifetime.
func (i *Issuer) Validity() time.Duration { return i.validity }

// Issue signs an access token for user on device with the user's own secret.
// The device's refresh token is reused when present; otherwise a new one is
// generated. The caller persists it.
func (i *Issuer) Issue(user accounts.User, device accounts.Device, now time.Time) (Tokens, error) {
	now = now.UTC().Truncate(time.Second)
	expires := now.Add(i.validity)

	refresh := ""
	if device.HasRefreshToken() {
		refresh = *device.RefreshToken
	} else {
		var err error
		if refresh, err = NewRefreshToken(); err != nil {
			return Tokens{}, err
		}
	}

	claims := Claims{
		Premium:       user.Premium,
		Email:         user.Email,
		EmailVerified: user.EmailVerified,
		SecurityStamp: user.SecurityStamp,
		Device:        device.ID,
		Scope:         []string{"api", "offline_access"},
		AMR:           []string{"Application"},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now.Add(-i.skew)),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	if user.Name != nil {
		claims.Name = *user.Name
	}

	access, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(user.JWTSecret))
	if err != nil {
		return Tokens{}, fmt.Errorf("sign access token: %w", err)
	}

	return Tokens{AccessToken: access, RefreshToken: refresh, IssuedAt: now, ExpiresAt: expires}, nil
}

// NewRefreshToken returns 64 random bytes, base64url encoded without padding.
func NewRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
