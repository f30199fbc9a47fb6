package middlewares

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quorumlabs/pollhub/internal/auth"
	"github.com/quorumlabs/pollhub/internal/domain/user"
)

// TokenCookieName is where login stores the access token. The cookie takes
// priority over the Authorization header when both are present.
const TokenCookieName = "token"

// Keep these interfaces small so tests can fake them easily.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*auth.Claims, error)
}

type IdentityResolver interface {
	GetByID(ctx context.Context, id string) (user.User, error)
}

type AuthMiddleware struct {
	jwt   TokenVerifier
	users IdentityResolver
}

func NewAuthMiddleware(jwt TokenVerifier, users IdentityResolver) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt, users: users}
}

// RequireAuth resolves the caller's identity. A valid token whose user has
// since been deleted is still unauthenticated: tokens are bearer proofs, the
// identity store is the source of truth.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := extractToken(c)

		if raw == "" {
			abortUnauthenticated(c, "Not authorized, no token provided")
			return
		}

		claims, err := m.jwt.VerifyAccessToken(raw)
		if err != nil {
			abortUnauthenticated(c, "Not authorized, token failed")
			return
		}

		u, err := m.users.GetByID(c.Request.Context(), claims.UserID)
		if err != nil {
			abortUnauthenticated(c, "User not found")
			return
		}

		c.Set(CtxUser, u)

		c.Next()
	}
}

func extractToken(c *gin.Context) string {
	if cookie, err := c.Cookie(TokenCookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")

	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	}

	return ""
}

func abortUnauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"code":    "unauthenticated",
		"message": message,
	})
}

// CurrentUser returns the identity stashed by RequireAuth.
func CurrentUser(c *gin.Context) (user.User, bool) {
	v, ok := c.Get(CtxUser)
	if !ok {
		return user.User{}, false
	}
	u, ok := v.(user.User)
	return u, ok
}
