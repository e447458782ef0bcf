package models

import (
	"time"
)

// Account roles. Admin-class roles sign in through the staff flow,
// students through the student flow.
const (
	RoleStudent    = "student"
	RoleStaff      = "staff"
	RoleAdmin      = "admin"
	RoleSuperAdmin = "superadmin"
)

type Account struct {
	ID            string
	Email         string
	PasswordHash  string
	Name          string
	Role          string // "student", "staff", "admin", "superadmin"
	EmailVerified bool
	Status        string // "active", "suspended", "disabled"
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// IsActive reports whether the account may attempt to authenticate at all.
func (a *Account) IsActive() bool {
	return a.Status == "active"
}
