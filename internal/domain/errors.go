// Package domain contains the core business entities for the cinelog journal.
package domain

import (
	"errors"
	"fmt"
)

// Domain errors - these represent business rule violations.
// They are distinct from infrastructure errors (database, network, etc.).

var (
	// ===========================================
	// User Errors
	// ===========================================

	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrUserAlreadyExists indicates a user with the same username/email exists.
	ErrUserAlreadyExists = errors.New("user already exists")

	// ErrUserInactive indicates the user account is deactivated.
	ErrUserInactive = errors.New("user account is inactive")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidUsername indicates the username is blank or outside 3-50 characters.
	ErrInvalidUsername = errors.New("username must be between 3 and 50 characters")

	// ErrInvalidEmail indicates the email address is malformed.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrInvalidPassword indicates the password is shorter than 6 characters.
	ErrInvalidPassword = errors.New("password must be at least 6 characters")

	// ===========================================
	// Review Errors
	// ===========================================

	// ErrReviewNotFound indicates no review matched the id and owner.
	ErrReviewNotFound = errors.New("review not found")

	// ErrReviewAlreadyExists indicates the owner already reviewed this title by this director.
	ErrReviewAlreadyExists = errors.New("review already exists")

	// ErrOwnerNotFound indicates the review references a user row that does not exist.
	ErrOwnerNotFound = errors.New("review owner not found")

	// ===========================================
	// Ticket Image Errors
	// ===========================================

	// ErrTicketNotFound indicates the stored ticket image does not exist.
	ErrTicketNotFound = errors.New("ticket image not found")
)

// DomainError wraps a domain error with additional context.
type DomainError struct {
	// Err is the underlying domain error.
	Err error

	// Message provides additional context.
	Message string

	// Resource identifies the affected resource (e.g., username, review id).
	Resource string
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Resource != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Err.Error(), e.Message, e.Resource)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/errors.As.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new DomainError with context.
func NewDomainError(err error, message, resource string) *DomainError {
	return &DomainError{
		Err:      err,
		Message:  message,
		Resource: resource,
	}
}
