package models

import "time"

// UserRole represents the available roles for the RBAC system.
type UserRole string

const (
	RoleSuperAdmin       UserRole = "SUPERADMIN"
	RoleAdmin            UserRole = "ADMIN"
	RoleEditor           UserRole = "EDITOR"
	RoleConferenceEditor UserRole = "CONFERENCE_EDITOR"
	RoleAuthor           UserRole = "AUTHOR"
)

// IsReviewer reports whether users with this role can be assigned to review abstracts.
func (r UserRole) IsReviewer() bool {
	return r == RoleEditor || r == RoleConferenceEditor
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

// Reviewer is an active editor or conference editor available for assignment.
type Reviewer struct {
	ID    string   `db:"id" json:"id"`
	Name  string   `db:"full_name" json:"name"`
	Email string   `db:"email" json:"email"`
	Role  UserRole `db:"role" json:"role"`
}

// UserFilter narrows reviewer listings.
type UserFilter struct {
	Role   *UserRole
	Active *bool
	Search string
}
