package models

import "github.com/golang-jwt/jwt/v5"

// UserRole scopes API access.
type UserRole string

const (
	RoleAdmin    UserRole = "admin"
	RoleOperator UserRole = "operator"
)

// JWTClaims represents the JWT payload for access tokens. Tokens are issued
// by the organisation's identity provider; this service only validates them.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}
