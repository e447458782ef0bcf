package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication errors. All three collapse to the same generic message
	// at the HTTP boundary to prevent account enumeration.
	ErrNoSuchAccount      = errors.New("no such account")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotEligible        = errors.New("account not eligible for this login")

	// Second-factor errors
	ErrChallengeInvalid = errors.New("invalid or expired code")
	ErrDeliveryFailed   = errors.New("code delivery failed")
	ErrNoPendingLogin   = errors.New("no pending login")

	// ErrSessionNotPending reports a live session in the wrong state for a
	// second-factor operation. It wraps ErrNoPendingLogin so generic
	// handling still applies, but callers can tell the session exists and
	// must not discard its cookie.
	ErrSessionNotPending = fmt.Errorf("%w: session is not pending", ErrNoPendingLogin)
)

// LockedError reports a lockout gate rejection. It carries the number of
// seconds until the lock expires so callers can surface a retry hint.
type LockedError struct {
	RemainingSeconds int
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked, retry in %d seconds", e.RemainingSeconds)
}
