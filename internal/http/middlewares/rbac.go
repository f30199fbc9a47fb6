package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRoleAccepted must run after RequireAuth and before any RequireRole:
// an unaccepted identity never reaches role-gated logic, whatever its role.
func (m *AuthMiddleware) RequireRoleAccepted() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)

		if !ok {
			abortUnauthenticated(c, "Missing identity context")
			return
		}

		if !u.RoleAccepted {
			// requiresRoleAcceptance lets clients route to the acceptance flow.
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success":                false,
				"code":                   "role_not_accepted",
				"message":                "Access denied. Please accept your role first to access this resource.",
				"requiresRoleAcceptance": true,
			})
			return
		}

		c.Next()
	}
}

func (m *AuthMiddleware) RequireRole(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)

		if !ok {
			abortUnauthenticated(c, "Missing identity context")
			return
		}

		if u.Role != required {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"code":    "forbidden",
				"message": "Access denied. " + required + " privileges required.",
			})
			return
		}
		c.Next()
	}
}
