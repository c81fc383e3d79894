package auth

import (
	"errors"
	"time"
)

// User is an account that can sign in.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Validate checks account invariants.
func (u User) Validate() error {
	if u.Email == "" {
		return errors.New("user: empty email")
	}
	if _, ok := NormalizeRole(string(u.Role)); !ok {
		return errors.New("user: invalid role")
	}
	return nil
}

// ResetToken is a single-use password-reset token. Tokens expire; expiry is
// enforced in the database, not recomputed from issue time.
type ResetToken struct {
	Token     string
	Email     string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Usable reports whether the token can still reset a password.
func (t ResetToken) Usable(now time.Time) bool {
	if t.UsedAt != nil {
		return false
	}
	return now.Before(t.ExpiresAt)
}
