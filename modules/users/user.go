// Package users manages staff accounts. Accounts live in the public schema
// and reference the center they belong to; they are shared infrastructure,
// not tenant data.
package users

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role determines what a user may do within their center.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleUser   Role = "user"
	RoleViewer Role = "viewer"
)

// Valid reports whether the role is one of the known values.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RoleViewer:
		return true
	}
	return false
}

var (
	// ErrNotFound is returned when no active user matches.
	ErrNotFound = errors.New("user not found")

	// ErrEmailTaken is returned when the email is already registered.
	ErrEmailTaken = errors.New("email already taken")

	// ErrInvalidEmail is returned when the email fails validation.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrInvalidUsername is returned when the username fails validation.
	ErrInvalidUsername = errors.New("invalid username")

	// ErrInvalidRole is returned when the role is not a known value.
	ErrInvalidRole = errors.New("invalid role")
)

var (
	emailRe    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	usernameRe = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{2,49}$`)
)

// User is a staff account belonging to a center.
type User struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name,omitempty"`
	LastName  string    `json:"last_name,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	CenterID  uuid.UUID `json:"center_id"`
	Role      Role      `json:"role"`
	Active    bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateParams carries the caller-supplied fields for a new user.
type CreateParams struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Phone     string    `json:"phone"`
	CenterID  uuid.UUID `json:"center_id"`
	Role      Role      `json:"role"`
}

// Normalize lowercases and trims the identity fields. Applied before
// validation so "User@Example.COM" and "user@example.com" collide.
func (p *CreateParams) Normalize() {
	p.Username = strings.ToLower(strings.TrimSpace(p.Username))
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Role == "" {
		p.Role = RoleUser
	}
}

// Validate checks the normalized fields.
func (p CreateParams) Validate() error {
	if !usernameRe.MatchString(p.Username) {
		return ErrInvalidUsername
	}
	if !emailRe.MatchString(p.Email) {
		return ErrInvalidEmail
	}
	if !p.Role.Valid() {
		return ErrInvalidRole
	}
	return nil
}

// Summary aggregates account counts across the whole installation. Role and
// center breakdowns count active users only.
type Summary struct {
	TotalUsers    int            `json:"total_users"`
	ActiveUsers   int            `json:"active_users"`
	InactiveUsers int            `json:"inactive_users"`
	UsersByRole   map[string]int `json:"users_by_role"`
	UsersByCenter map[string]int `json:"users_by_center"`
}

// UpdateParams carries the mutable fields of a user.
type UpdateParams struct {
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	Role      *Role   `json:"role,omitempty"`
}
