package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents the roles the identity service issues.
type UserRole string

const (
	RoleAdmin   UserRole = "ADMIN"
	RoleTeacher UserRole = "TEACHER"
	RoleStaff   UserRole = "STAFF"
)

// UserInfo describes the authenticated user.
type UserInfo struct {
	ID       string   `json:"id"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role"`
}

// SessionClaims are the access token claims issued by the identity service.
type SessionClaims struct {
	UserID   string   `json:"sub_id"`
	Email    string   `json:"email"`
	FullName string   `json:"name"`
	Role     UserRole `json:"role"`
	jwt.RegisteredClaims
}

// User returns the user described by the claims.
func (c *SessionClaims) User() UserInfo {
	id := c.UserID
	if id == "" {
		id = c.Subject
	}
	return UserInfo{ID: id, Email: c.Email, FullName: c.FullName, Role: c.Role}
}
