package accounts

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DefaultKdfIterations is used when a user record carries no iteration count.
const DefaultKdfIterations = 5000

// KdfPBKDF2 is the only key-derivation function the clients are told to use.
const KdfPBKDF2 = 0

// User is a vault owner. Pointer fields are nullable columns.
type User struct {
	ID             uuid.UUID
	Email          string
	Name           *string
	EmailVerified  bool
	Premium        bool
	PasswordHash   string
	PasswordHint   *string
	Key            string
	JWTSecret      string
	PrivateKey     *string
	PublicKey      *string
	TOTPSecret     *string
	TOTPSecretTemp *string
	SecurityStamp  string
	Culture        string
	KdfIterations  int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Iterations returns the configured iteration count, falling back to the default.
func (u User) Iterations() int {
	if u.KdfIterations > 0 {
		return u.KdfIterations
	}
	return DefaultKdfIterations
}

// TwoFactorEnabled reports whether a confirmed one-time secret exists.
func (u User) TwoFactorEnabled() bool {
	return u.TOTPSecret != nil && *u.TOTPSecret != ""
}

// Device is a client installation. ID is chosen by the client; UserID stays
// nil until a login binds it.
type Device struct {
	ID           string
	UserID       *uuid.UUID
	Name         string
	Type         int
	PushToken    *string
	RefreshToken *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// OwnedBy reports whether the device is bound to the given user.
func (d Device) OwnedBy(userID uuid.UUID) bool {
	return d.UserID != nil && *d.UserID == userID
}

// HasRefreshToken reports whether a refresh token is persisted on the device.
func (d Device) HasRefreshToken() bool {
	return d.RefreshToken != nil && *d.RefreshToken != ""
}

// Field is a slot in a partial update. The zero value is absent and is never
// written. A set Field whose value is a nil pointer writes NULL.
type Field[T any] struct {
	value T
	set   bool
}

// Set returns a present Field holding v.
func Set[T any](v T) Field[T] {
	return Field[T]{value: v, set: true}
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.set
}

// IsSet reports whether the field is present.
func (f Field[T]) IsSet() bool { return f.set }

// UserPatch lists the user columns a caller wants to change.
type UserPatch struct {
	Name           Field[*string]
	PasswordHash   Field[string]
	PasswordHint   Field[*string]
	Key            Field[string]
	PrivateKey     Field[*string]
	PublicKey      Field[*string]
	TOTPSecret     Field[*string]
	TOTPSecretTemp Field[*string]
	SecurityStamp  Field[string]
	KdfIterations  Field[int]
	Culture        Field[string]
}

// Apply copies every present field onto u.
func (p UserPatch) Apply(u *User) {
	if v, ok := p.Name.Get(); ok {
		u.Name = v
	}
	if v, ok := p.PasswordHash.Get(); ok {
		u.PasswordHash = v
	}
	if v, ok := p.PasswordHint.Get(); ok {
		u.PasswordHint = v
	}
	if v, ok := p.Key.Get(); ok {
		u.Key = v
	}
	if v, ok := p.PrivateKey.Get(); ok {
		u.PrivateKey = v
	}
	if v, ok := p.PublicKey.Get(); ok {
		u.PublicKey = v
	}
	if v, ok := p.TOTPSecret.Get(); ok {
		u.TOTPSecret = v
	}
	if v, ok := p.TOTPSecretTemp.Get(); ok {
		u.TOTPSecretTemp = v
	}
	if v, ok := p.SecurityStamp.Get(); ok {
		u.SecurityStamp = v
	}
	if v, ok := p.KdfIterations.Get(); ok {
		u.KdfIterations = v
	}
	if v, ok := p.Culture.Get(); ok {
		u.Culture = v
	}
}

// DevicePatch lists the device columns a caller wants to change.
type DevicePatch struct {
	UserID       Field[*uuid.UUID]
	Name         Field[string]
	Type         Field[int]
	PushToken    Field[*string]
	RefreshToken Field[*string]
}

// Apply copies every present field onto d.
func (p DevicePatch) Apply(d *Device) {
	if v, ok := p.UserID.Get(); ok {
		d.UserID = v
	}
	if v, ok := p.Name.Get(); ok {
		d.Name = v
	}
	if v, ok := p.Type.Get(); ok {
		d.Type = v
	}
	if v, ok := p.PushToken.Get(); ok {
		d.PushToken = v
	}
	if v, ok := p.RefreshToken.Get(); ok {
		d.RefreshToken = v
	}
}

// NewSecurityStamp returns a fresh random stamp. Assigning it to a user
// invalidates every access token issued before.
func NewSecurityStamp() string {
	return uuid.NewString()
}

// NewSigningSecret returns a per-user HMAC secret.
func NewSigningSecret() (string, error) {
	buf := make([]byte, 64)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate signing secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Ptr returns a pointer to v. Handy for nullable fields.
func Ptr[T any](v T) *T { return &v }
