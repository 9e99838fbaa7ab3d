package domain

import (
	"strings"
	"time"
)

// User models an end user of the booking application.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	Name          *string   `json:"name"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// UserUpdate lists the fields a store should overwrite. Nil fields are kept,
// so a profile edit can never write back a stale password hash.
type UserUpdate struct {
	PasswordHash *string
	Name         *string
	ClearName    bool
	UpdatedAt    time.Time
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
