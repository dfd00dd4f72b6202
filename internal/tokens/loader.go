package tokens

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/lambdawarden/lambdawarden/internal/accounts"
	"github.com/lambdawarden/lambdawarden/internal/apperr"
)

const bearerScheme = "bearer"

var errStampMismatch = errors.New("security stamp changed")

// Loader resolves bearer tokens to the user and device they were issued for.
type Loader struct {
	store  accounts.Store
	logger *slog.Logger
	now    func() time.Time
}

// NewLoader builds a Loader reading users and devices from store.
func NewLoader(store accounts.Store, logger *slog.Logger) *Loader {
	return &Loader{store: store, logger: logger, now: time.Now}
}

// Resolve validates an Authorization header value. Every failure yields the
// same authentication error; the cause is only logged at debug level.
func (l *Loader) Resolve(ctx context.Context, header string) (accounts.User, accounts.Device, error) {
	user, device, err := l.resolve(ctx, header)
	if err != nil {
		if l.logger != nil {
			l.logger.DebugContext(ctx, "bearer token rejected", slog.Any("error", err))
		}
		if apperr.IsKind(err, apperr.KindServer) && !isLookupMiss(err) {
			return accounts.User{}, accounts.Device{}, apperr.Server(err)
		}
		return accounts.User{}, accounts.Device{}, apperr.Authentication("")
	}
	return user, device, nil
}

func (l *Loader) resolve(ctx context.Context, header string) (accounts.User, accounts.Device, error) {
	raw, err := bearerToken(header)
	if err != nil {
		return accounts.User{}, accounts.Device{}, apperr.Authentication(err.Error())
	}

	// Unverified read: only used to pick the user whose secret verifies the
	// token. Nothing below trusts these values until ParseWithClaims passes.
	var hint Claims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &hint); err != nil {
		return accounts.User{}, accounts.Device{}, apperr.Authentication("malformed token")
	}
	userID, err := uuid.Parse(hint.Subject)
	if err != nil || hint.Device == "" {
		return accounts.User{}, accounts.Device{}, apperr.Authentication("token missing subject or device")
	}

	user, err := l.store.UserByID(ctx, userID)
	if err != nil {
		return accounts.User{}, accounts.Device{}, fmt.Errorf("load user: %w", err)
	}
	device, err := l.store.DeviceByID(ctx, hint.Device)
	if err != nil {
		return accounts.User{}, accounts.Device{}, fmt.Errorf("load device: %w", err)
	}

	claims, err := Verify(raw, user.JWTSecret, l.now())
	if err != nil {
		return accounts.User{}, accounts.Device{}, apperr.Authentication(err.Error())
	}
	if claims.Subject != user.ID.String() || claims.Device != device.ID || !device.OwnedBy(user.ID) {
		return accounts.User{}, accounts.Device{}, apperr.Authentication("device not bound to subject")
	}
	if subtle.ConstantTimeCompare([]byte(claims.SecurityStamp), []byte(user.SecurityStamp)) != 1 {
		return accounts.User{}, accounts.Device{}, apperr.Authentication(errStampMismatch.Error())
	}

	return user, device, nil
}

// Verify checks the signature with secret, pinned to HS256, and the time
// claims against now. Tokens signed with any other algorithm, including
// "none", are rejected.
func Verify(raw, secret string, now time.Time) (*Claims, error) {
	if secret == "" {
		return nil, errors.New("empty signing secret")
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	claims := &Claims{}
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok || t.Method.Alg() != signingMethod.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func bearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing authorization header")
	}
	if len(header) >= len(bearerScheme) && strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		header = header[len(bearerScheme):]
	}
	token := strings.TrimSpace(header)
	if token == "" {
		return "", errors.New("empty bearer token")
	}
	return token, nil
}

func isLookupMiss(err error) bool {
	return errors.Is(err, accounts.ErrNotFound)
}
