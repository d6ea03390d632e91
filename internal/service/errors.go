// Package service provides the user directory and the review ledger of cinelog.
//
// Public methods never return store errors. Failures are logged, counted and
// turned into false, nil, zero or an empty slice. The unexported helpers
// return the errors below so the reason reaches the log.
package service

import "errors"

// Reasons a call was rejected.
var (
	// ErrInvalidInput indicates missing or malformed arguments.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLockBusy indicates another registration holds the username or email.
	ErrLockBusy = errors.New("username or email is locked by another request")

	// ErrNoTicketStorage indicates the ledger was built without a ticket backend.
	ErrNoTicketStorage = errors.New("ticket storage is not configured")
)
