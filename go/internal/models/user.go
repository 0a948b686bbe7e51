package models

import (
	"time"

	"github.com/google/uuid"
)

// Role defines what a user may do in an exam.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// IsAuthority reports whether the role may issue timer commands.
func (r Role) IsAuthority() bool {
	return r == RoleAdmin || r == RoleInstructor
}

// User represents a user in the system
type User struct {
	ID          uuid.UUID `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Email       string    `json:"email"`
	Role        Role      `json:"role"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}
