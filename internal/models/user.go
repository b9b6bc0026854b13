package models

import "time"

// UserRole controls what a user may do with the planning data.
type UserRole string

const (
	// RoleAdmin manages accounts and has full access.
	RoleAdmin UserRole = "ADMIN"
	// RolePlanner edits configurations, courses and schedules.
	RolePlanner UserRole = "PLANNER"
	// RoleViewer has read-only access.
	RoleViewer UserRole = "VIEWER"
)

// CanEdit reports whether the role may mutate planning data.
func (r UserRole) CanEdit() bool {
	return r == RoleAdmin || r == RolePlanner
}

// User represents an application user stored in the users table.
type User struct {
	ID           string     `db:"id" json:"id"`
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	FullName     string     `db:"full_name" json:"full_name"`
	Role         UserRole   `db:"role" json:"role"`
	Active       bool       `db:"active" json:"active"`
	LastLogin    *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// UserFilter captures filtering criteria for listing users.
type UserFilter struct {
	Role      *UserRole
	Active    *bool
	Search    string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
