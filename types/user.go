package types

import "time"

const (
	RoleAdmin      = "admin"
	RoleSupervisor = "supervisor"
)

// User represents an account in the credential store.
type User struct {
	// ID is the unique identifier of the user.
	ID int `json:"id" db:"id"`

	// Name is the unique login name.
	Name string `json:"name" db:"name"`

	// Role is either RoleAdmin or RoleSupervisor.
	Role string `json:"role" db:"role"`

	// PasswordHash stores the bcrypt hash of the user's password.
	// This field is never exposed in API responses.
	PasswordHash string `json:"-" db:"password_hash"`

	// CreatedAt is the timestamp when the account was created.
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleSupervisor
}

// Session is the identity carried by the session cookie.
type Session struct {
	Username   string `json:"username"`
	Role       string `json:"role"`
	IsLoggedIn bool   `json:"isLoggedIn"`
}
