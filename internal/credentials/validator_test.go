package credentials

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordsMatch(t *testing.T) {
	cases := []struct {
		name     string
		stored   string
		supplied string
		want     bool
	}{
		{"equal", "r5HqZ8bQ==", "r5HqZ8bQ==", true},
		{"different content", "r5HqZ8bQ==", "r5HqZ8bX==", false},
		{"prefix", "r5HqZ8bQ==", "r5Hq", false},
		{"empty stored", "", "x", false},
		{"empty supplied", "x", "", false},
		{"both empty", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, PasswordsMatch(tc.stored, tc.supplied))
		})
	}
}

func TestVerifyOneTimeCodeWindow(t *testing.T) {
	key, err := NewOneTimeSecret("lambdawarden", "a@b.com")
	require.NoError(t, err)
	secret := key.Secret()
	now := time.Unix(1_700_000_000, 0)

	code, err := CodeAt(secret, now)
	require.NoError(t, err)
	assert.True(t, VerifyOneTimeCode(secret, code, now))
	assert.True(t, VerifyOneTimeCode(secret, " "+code+" ", now))

	previous, err := CodeAt(secret, now.Add(-30*time.Second))
	require.NoError(t, err)
	assert.True(t, VerifyOneTimeCode(secret, previous, now), "one step of skew is tolerated")

	stale, err := CodeAt(secret, now.Add(-5*time.Minute))
	require.NoError(t, err)
	if stale != code && stale != previous {
		assert.False(t, VerifyOneTimeCode(secret, stale, now))
	}
}

func TestVerifyOneTimeCodeRejectsMalformed(t *testing.T) {
	key, err := NewOneTimeSecret("lambdawarden", "a@b.com")
	require.NoError(t, err)
	now := time.Now()

	assert.False(t, VerifyOneTimeCode(key.Secret(), "", now))
	assert.False(t, VerifyOneTimeCode(key.Secret(), "12345", now))
	assert.False(t, VerifyOneTimeCode(key.Secret(), "abcdef", now))
	assert.False(t, VerifyOneTimeCode("", "123456", now))
	assert.False(t, VerifyOneTimeCode("not base32 !!", "123456", now))
}

func TestNewOneTimeSecretProvisioningURL(t *testing.T) {
	key, err := NewOneTimeSecret("lambdawarden", "a@b.com")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(key.URL(), "otpauth://totp/"))
	assert.Contains(t, key.URL(), "secret="+key.Secret())
	assert.Equal(t, "lambdawarden", key.Issuer())
}
