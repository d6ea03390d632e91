// Package crypto provides cryptographic utilities for cinelog.
package crypto

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/crypto/bcrypt"
)

// digestLength is the fixed length of a bcrypt digest ("$2b$10$" + 53 chars).
const digestLength = 60

var (
	// ErrEmptyPassword indicates a blank plaintext was given to HashPassword.
	ErrEmptyPassword = errors.New("password must not be empty")

	// ErrNilDigest indicates VerifyPassword was called without a digest.
	ErrNilDigest = errors.New("password digest must not be empty")
)

var passwordCost atomic.Int32

func init() {
	passwordCost.Store(int32(bcrypt.DefaultCost))
}

// SetPasswordCost sets the bcrypt work factor used by HashPassword.
// It is meant to be called once during start-up.
func SetPasswordCost(cost int) error {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be between %d and %d, got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	passwordCost.Store(int32(cost))
	return nil
}

// PasswordCost returns the configured bcrypt work factor.
func PasswordCost() int {
	return int(passwordCost.Load())
}

// HashPassword returns a salted bcrypt digest of plain.
func HashPassword(plain string) (string, error) {
	if strings.TrimSpace(plain) == "" {
		return "", ErrEmptyPassword
	}
	digest, err := bcrypt.GenerateFromPassword([]byte(plain), PasswordCost())
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(digest), nil
}

// VerifyPassword reports whether plain matches digest.
// A malformed digest or an empty plaintext never matches.
func VerifyPassword(plain, digest string) (bool, error) {
	if digest == "" {
		return false, ErrNilDigest
	}
	if plain == "" {
		return false, nil
	}
	if err := bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)); err != nil {
		return false, nil
	}
	return true, nil
}

// LooksLikeDigest reports whether s has the shape of a bcrypt digest.
func LooksLikeDigest(s string) bool {
	if len(s) != digestLength || !strings.HasPrefix(s, "$2") {
		return false
	}
	if _, err := bcrypt.Cost([]byte(s)); err != nil {
		return false
	}
	for _, c := range s[7:] {
		if !isBcryptBase64(c) {
			return false
		}
	}
	return true
}

func isBcryptBase64(c rune) bool {
	return c == '.' || c == '/' ||
		(c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9')
}
