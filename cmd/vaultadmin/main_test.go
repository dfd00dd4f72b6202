package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lambdawarden/lambdawarden/internal/accounts"
	"github.com/lambdawarden/lambdawarden/internal/config"
	"github.com/lambdawarden/lambdawarden/internal/credentials"
	"github.com/lambdawarden/lambdawarden/internal/kdf"
	"github.com/lambdawarden/lambdawarden/internal/logging"
)

func testEnv(store accounts.Store) (*env, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	return &env{
		stdout: &stdout,
		stderr: &stderr,
		logger: logging.Discard(),
		cfg:    config.Config{TOTPIssuer: "lambdawarden"},
		openStore: func(context.Context) (accounts.Store, func(), error) {
			if store == nil {
				return nil, nil, errors.New("DATABASE_URL must be set")
			}
			return store, func() {}, nil
		},
		migrate: func(context.Context) error { return nil },
	}, &stdout, &stderr
}

func TestHashCommand(t *testing.T) {
	e, stdout, _ := testEnv(nil)
	code := run(context.Background(), e, []string{"hash", "-email", "a@b.com", "-password", "pw"})
	require.Equal(t, 0, code)

	want, err := kdf.MasterPasswordHash("pw", "a@b.com", accounts.DefaultKdfIterations)
	require.NoError(t, err)
	assert.Equal(t, want+"\n", stdout.String())
}

func TestUsageErrors(t *testing.T) {
	e, _, stderr := testEnv(nil)
	assert.Equal(t, 2, run(context.Background(), e, nil))
	assert.Equal(t, 2, run(context.Background(), e, []string{"frobnicate"}))
	assert.Equal(t, 2, run(context.Background(), e, []string{"hash", "-email", "a@b.com"}))
	assert.Contains(t, stderr.String(), "usage: vaultadmin")
}

func TestTwoFactorCommands(t *testing.T) {
	ctx := context.Background()
	store := accounts.NewMemoryStore()
	user := accounts.User{ID: uuid.New(), Email: "a@b.com", JWTSecret: "s", SecurityStamp: "stamp"}
	require.NoError(t, store.CreateUser(ctx, user))

	e, stdout, stderr := testEnv(store)
	require.Equal(t, 0, run(ctx, e, []string{"2fa-setup", "-email", "a@b.com"}), stderr.String())
	assert.Contains(t, stdout.String(), "url: otpauth://totp/")

	var secret string
	for _, line := range strings.Split(stdout.String(), "\n") {
		if s, ok := strings.CutPrefix(line, "secret: "); ok {
			secret = s
		}
	}
	require.NotEmpty(t, secret)

	assert.Equal(t, 1, run(ctx, e, []string{"2fa-complete", "-email", "a@b.com"}))

	code, err := credentials.CodeAt(secret, time.Now())
	require.NoError(t, err)
	stdout.Reset()
	require.Equal(t, 0, run(ctx, e, []string{"2fa-complete", "-email", "a@b.com", "-code", code}))
	assert.Equal(t, "OK, 2FA setup.\n", stdout.String())

	done, err := store.UserByID(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, done.TwoFactorEnabled())
	assert.NotEqual(t, "stamp", done.SecurityStamp)
}

func TestCommandsNeedDatabase(t *testing.T) {
	e, _, stderr := testEnv(nil)
	assert.Equal(t, 1, run(context.Background(), e, []string{"2fa-setup", "-email", "a@b.com"}))
	assert.Contains(t, stderr.String(), "DATABASE_URL")
}
