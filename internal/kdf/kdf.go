// Package kdf derives the master key and master-password hash exactly as the
// clients do, so operators and tests can produce a hash without a client.
package kdf

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const keyLen = 32

// ErrIterations is returned for a non-positive iteration count.
var ErrIterations = errors.New("kdf: iterations must be positive")

// MasterKey stretches password with the lower-cased e-mail as salt.
func MasterKey(password, email string, iterations int) ([]byte, error) {
	if iterations <= 0 {
		return nil, ErrIterations
	}
	salt := []byte(strings.ToLower(strings.TrimSpace(email)))
	return pbkdf2.Key([]byte(password), salt, iterations, keyLen, sha256.New), nil
}

// MasterPasswordHash is what a client sends as the password on login: one
// more PBKDF2 round over the master key, salted with the password.
func MasterPasswordHash(password, email string, iterations int) (string, error) {
	key, err := MasterKey(password, email, iterations)
	if err != nil {
		return "", err
	}
	hash := pbkdf2.Key(key, []byte(password), 1, keyLen, sha256.New)
	return base64.StdEncoding.EncodeToString(hash), nil
}
