// Package auth implements user accounts and redis backed bearer tokens.
package auth

import (
	"errors"
	"time"
)

// User represents an authenticated user account.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	FullName     string    `json:"full_name"`
	PasswordHash string    `json:"-"`
	IsStaff      bool      `json:"is_staff"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

var (
	// ErrNotFound indicates a missing user record.
	ErrNotFound = errors.New("auth: user not found")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("auth: invalid input")
	// ErrInvalidCredentials covers unknown email, bad password and
	// deactivated accounts alike. Callers must not learn which.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrDuplicateEmail indicates the email is already registered.
	ErrDuplicateEmail = errors.New("auth: email already registered")
	// ErrTokenInvalid indicates a missing, expired or revoked token.
	ErrTokenInvalid = errors.New("auth: token invalid")
)
