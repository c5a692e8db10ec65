// internal/middleware/auth_middleware.go
package middleware

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"

	"vowlist-service/internal/pkg/jwt"
	"vowlist-service/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// TokenValidator verifies a bearer token and returns its claims
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*jwt.Claims, error)
}

type AuthMiddleware struct {
	validator TokenValidator
}

func NewAuthMiddleware(validator TokenValidator) *AuthMiddleware {
	return &AuthMiddleware{
		validator: validator,
	}
}

// Auth validates the bearer token and stores the caller identity on the context
func (m *AuthMiddleware) Auth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ExtractToken(c)
		if token == "" {
			response.Error(c, http.StatusUnauthorized, "missing authorization token", nil)
			return
		}

		claims, err := m.validator.ValidateToken(c.Request.Context(), token)
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "invalid or expired token", err)
			return
		}

		c.Set("identity_id", claims.IdentityID)
		c.Set("jti", claims.ID)
		c.Set("roles", claims.Roles)
		c.Set("email", claims.Email)

		c.Next()
	}
}

// RequireRole requires at least one of roles. MUST be used after Auth().
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRoles := GetRoles(c)
		if len(userRoles) == 0 {
			response.Error(c, http.StatusForbidden, "no roles found - authentication required", nil)
			return
		}

		for _, role := range roles {
			if slices.Contains(userRoles, role) {
				c.Next()
				return
			}
		}

		response.Error(c, http.StatusForbidden, "insufficient permissions",
			errors.New("user does not have required role"),
			map[string]interface{}{
				"required_roles": roles,
			})
	}
}

// AdminOnly returns middlewares for admin-only routes (Auth + RequireRole)
func (m *AuthMiddleware) AdminOnly() []gin.HandlerFunc {
	return []gin.HandlerFunc{
		m.Auth(),
		m.RequireRole(jwt.RoleAdmin, "super_admin"),
	}
}

// ExtractToken extracts the Bearer token from the Authorization header,
// falling back to the token query param used by websocket clients.
func ExtractToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.Split(authHeader, " ")
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}

	return c.Query("token")
}

// GetIdentityID gets the authenticated identity ID from context
func GetIdentityID(c *gin.Context) (int64, bool) {
	identityID, exists := c.Get("identity_id")
	if !exists {
		return 0, false
	}

	id, ok := identityID.(int64)
	return id, ok
}

// HasRole checks if the authenticated user has role
func HasRole(c *gin.Context, role string) bool {
	return slices.Contains(GetRoles(c), role)
}
