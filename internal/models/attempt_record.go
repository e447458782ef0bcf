package models

import "time"

// AttemptKey identifies a failed-login counter. Identifier is the account
// email for per-account gates and empty for source-wide (IP) gates.
type AttemptKey struct {
	Flow       string // "staff" or "student"
	SourceIP   string
	Identifier string
}

// AttemptRecord is a failed-login counter row. Locked with a nil LockedUntil
// is a soft lock that rides the rolling window (last failure + window);
// a non-nil LockedUntil is a timed lock. Both are cleared lazily the next
// time the record is read.
type AttemptRecord struct {
	Key           AttemptKey
	FailureCount  int
	LastFailureAt time.Time
	Locked        bool
	LockedUntil   *time.Time
}

// LockState is the answer to a lock check.
type LockState struct {
	Locked           bool
	RemainingSeconds int
}
