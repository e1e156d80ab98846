package models

import "time"

// UserRole represents the available roles for route authorization.
type UserRole string

const (
	RoleQualityAdmin UserRole = "QUALITY_ADMIN"
	RoleRegulatory   UserRole = "REGULATORY"
	RoleReviewer     UserRole = "REVIEWER"
	RoleAuthor       UserRole = "AUTHOR"
)

// User represents an application user stored in the users table.
type User struct {
	ID             string     `db:"id" json:"id"`
	OrganizationID string     `db:"organization_id" json:"organization_id"`
	Email          string     `db:"email" json:"email"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	FullName       string     `db:"full_name" json:"full_name"`
	Role           UserRole   `db:"role" json:"role"`
	Active         bool       `db:"active" json:"active"`
	LastLogin      *time.Time `db:"last_login" json:"last_login,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}
