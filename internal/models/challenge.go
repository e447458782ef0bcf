package models

import "time"

// Challenge is a single-use login code bound to an account. At most one
// live challenge exists per account; re-issuance replaces the previous one.
type Challenge struct {
	AccountID string
	Code      string `json:"-"` // 6 ASCII digits, never serialized
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// IsExpired reports whether the challenge is past its expiry.
func (c *Challenge) IsExpired() bool {
	return !time.Now().Before(c.ExpiresAt)
}
