package models

import "time"

// User is the minimal identity row backing authentication and the default
// membership lookup (role/department holders, manager chains).
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	ManagerID    *string   `json:"manager_id,omitempty"`
	RoleID       *string   `json:"role_id,omitempty"`
	DepartmentID *string   `json:"department_id,omitempty"`
	IsAdmin      bool      `json:"is_admin"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// UserSession is the authenticated caller identity passed through services.
type UserSession struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        *string `json:"email,omitempty"`
	RoleID       *string `json:"role_id,omitempty"`
	DepartmentID *string `json:"department_id,omitempty"`
	IsAdmin      bool    `json:"is_admin"`
}
