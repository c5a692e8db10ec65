// internal/pkg/jwt/claims.go
package jwt

import (
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

const (
	PurposeAccess = "access"

	RoleAdmin = "admin"
)

// Claims represents the JWT claims issued by the auth service
type Claims struct {
	IdentityID     int64    `json:"identity_id"`
	Email          string   `json:"email,omitempty"`
	Roles          []string `json:"roles,omitempty"`
	SessionPurpose string   `json:"session_purpose"`
	jwt.RegisteredClaims
}

// HasRole checks if the claims contain a specific role
func (c *Claims) HasRole(role string) bool {
	return slices.Contains(c.Roles, role)
}

// IsAdmin checks if user is an admin (including super admin)
func (c *Claims) IsAdmin() bool {
	return c.HasRole(RoleAdmin) || c.HasRole("super_admin")
}

// VerifyAudience checks if the expected audience is listed in the claims.
func (c *Claims) VerifyAudience(audience string, required bool) bool {
	if len(c.Audience) == 0 {
		return !required
	}
	return slices.Contains(c.Audience, audience)
}
