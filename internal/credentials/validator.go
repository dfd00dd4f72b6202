// Package credentials compares master-password hashes and verifies
// time-based one-time codes.
package credentials

import (
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	codePeriod = 30
	codeSkew   = 1
)

var validateOpts = totp.ValidateOpts{
	Period:    codePeriod,
	Skew:      codeSkew,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// PasswordsMatch reports whether supplied equals stored. Both sides are
// hashed first so the comparison takes the same time whatever their lengths.
func PasswordsMatch(stored, supplied string) bool {
	if stored == "" || supplied == "" {
		return false
	}
	a := sha256.Sum256([]byte(stored))
	b := sha256.Sum256([]byte(supplied))
	return subtle.ConstantTimeCompare(a[:], b[:]) == 1
}

// VerifyOneTimeCode checks a six digit code against a base32 secret,
// accepting one 30s step either side of now.
func VerifyOneTimeCode(secret, code string, now time.Time) bool {
	secret = strings.TrimSpace(secret)
	code = strings.TrimSpace(code)
	if secret == "" || len(code) != int(otp.DigitsSix) {
		return false
	}
	ok, err := totp.ValidateCustom(code, secret, now.UTC(), validateOpts)
	return err == nil && ok
}

// NewOneTimeSecret generates a fresh secret and provisioning URL for account.
func NewOneTimeSecret(issuer, account string) (*otp.Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      codePeriod,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("generate one-time secret: %w", err)
	}
	return key, nil
}

// CodeAt returns the code valid at t. Used by the admin CLI and tests.
func CodeAt(secret string, t time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, t.UTC(), totp.ValidateOpts{
		Period:    codePeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}
