package domain

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/prn-tf/cinelog/internal/pkg/crypto"
)

const (
	// UsernameMinLength is the minimum username length in characters.
	UsernameMinLength = 3

	// UsernameMaxLength is the maximum username length in characters.
	UsernameMaxLength = 50

	// PasswordMinLength is the minimum plaintext password length.
	PasswordMinLength = 6
)

// User represents an account of the journal.
// Users own reviews and authenticate with a username or email.
type User struct {
	// ID is the unique identifier for the user (assigned by the store).
	ID int64 `json:"id" yaml:"id"`

	// Username is the unique username for login and display.
	// Constraints: 3-50 characters, unique regardless of case.
	Username string `json:"username" yaml:"username"`

	// Email is the unique email address for the user.
	Email string `json:"email" yaml:"email"`

	// Password holds the bcrypt digest once the user is registered.
	// Before registration it may carry the plaintext typed by the user.
	Password string `json:"-" yaml:"-"`

	// CreatedAt is the timestamp when the user was constructed.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`

	// LastLogin is the time of the last successful login, nil if never.
	LastLogin *time.Time `json:"last_login,omitempty" yaml:"last_login,omitempty"`

	// IsActive indicates whether the account may authenticate.
	// Deactivated accounts keep their rows.
	IsActive bool `json:"is_active" yaml:"is_active"`
}

// NewUser creates a new active User holding a plaintext password.
func NewUser(username, email, password string) *User {
	return &User{
		Username:  username,
		Email:     email,
		Password:  password,
		CreatedAt: time.Now().UTC(),
		IsActive:  true,
	}
}

// SetPlainTextPassword hashes plain and stores the digest.
func (u *User) SetPlainTextPassword(plain string) error {
	digest, err := crypto.HashPassword(plain)
	if err != nil {
		return err
	}
	u.Password = digest
	return nil
}

// HasDigest reports whether the password field already holds a digest.
func (u *User) HasDigest() bool {
	return crypto.LooksLikeDigest(u.Password)
}

// VerifyPassword reports whether plain matches the stored digest.
func (u *User) VerifyPassword(plain string) bool {
	ok, err := crypto.VerifyPassword(plain, u.Password)
	return err == nil && ok
}

// UpdateLastLogin stamps the current time as the last login.
func (u *User) UpdateLastLogin() {
	now := time.Now().UTC()
	u.LastLogin = &now
}

// Activate marks the account active. Callers persist the change.
func (u *User) Activate() {
	u.IsActive = true
}

// Deactivate marks the account inactive. Callers persist the change.
func (u *User) Deactivate() {
	u.IsActive = false
}

// CanAuthenticate returns true if the user is allowed to authenticate.
func (u *User) CanAuthenticate() bool {
	return u.IsActive
}

// Validate returns the first field that fails validation.
func (u *User) Validate() error {
	if !ValidUsername(u.Username) {
		return ErrInvalidUsername
	}
	if !ValidEmail(u.Email) {
		return ErrInvalidEmail
	}
	if !ValidPassword(u.Password) {
		return ErrInvalidPassword
	}
	return nil
}

// IsValid reports whether username, email and password are all valid.
func (u *User) IsValid() bool {
	return u != nil && u.Validate() == nil
}

// ValidUsername reports whether s is a non-blank username of 3 to 50 characters.
func ValidUsername(s string) bool {
	s = strings.TrimSpace(s)
	n := utf8.RuneCountInString(s)
	return n >= UsernameMinLength && n <= UsernameMaxLength
}

// ValidEmail reports whether s has exactly one "@" followed by a domain
// containing a "." that is neither its first nor its last character.
func ValidEmail(s string) bool {
	if s == "" || strings.IndexFunc(s, unicode.IsSpace) >= 0 {
		return false
	}
	local, host, ok := strings.Cut(s, "@")
	if !ok || local == "" || strings.Contains(host, "@") {
		return false
	}
	dot := strings.LastIndex(host, ".")
	return dot > 0 && dot < len(host)-1 && !strings.HasPrefix(host, ".")
}

// ValidPassword reports whether s is long enough to be accepted.
// Digests are accepted as-is.
func ValidPassword(s string) bool {
	if crypto.LooksLikeDigest(s) {
		return true
	}
	return strings.TrimSpace(s) != "" && utf8.RuneCountInString(s) >= PasswordMinLength
}
