package models

import "time"

// Session states. A pending session is created once credentials pass and a
// challenge has been issued; it carries no authority beyond the right to
// submit a code. Elevation replaces it with an authenticated session under
// a freshly generated identifier.
const (
	SessionPending       = "pending"
	SessionAuthenticated = "authenticated"
)

type Session struct {
	ID        string `json:"-"` // opaque identifier, carried in an httpOnly cookie
	AccountID string
	Email     string
	Name      string
	Role      string
	Flow      string
	State     string
	CreatedAt time.Time
	ExpiresAt time.Time
	LoginAt   *time.Time // set at elevation
}

// IsExpired reports whether the session is past its expiry.
func (s *Session) IsExpired() bool {
	return !time.Now().Before(s.ExpiresAt)
}
