package auth

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/LoGGGG2402/computer-management-system-sub002/internal/apperrors"
)

const (
	ContextUserID   = "userID"
	ContextUsername = "username"
	ContextRole     = "role"
)

// RequireAccessToken validates the Authorization: Bearer <token> header
// against jwtManager and places the claims in gin context for downstream
// handlers. This is the authentication step for user-facing HTTP
// requests; agent HTTP endpoints use middleware.AgentAuth instead, and
// WebSocket upgrades are authenticated separately at admission (C5).
func RequireAccessToken(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
			apperrors.AbortWithError(c, apperrors.InvalidCredential("missing or malformed Authorization header"))
			return
		}

		claims, err := jwtManager.ValidateAccessToken(parts[1])
		if err != nil {
			apperrors.AbortWithError(c, apperrors.InvalidCredential("invalid or expired access token"))
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUsername, claims.Username)
		c.Set(ContextRole, claims.Role)
		c.Next()
	}
}

// RequireRole aborts with AccessDenied unless the authenticated
// principal's role matches one of allowed.
func RequireRole(allowed ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, _ := c.Get(ContextRole)
		roleStr, _ := role.(string)

		for _, r := range allowed {
			if roleStr == r {
				c.Next()
				return
			}
		}
		apperrors.AbortWithError(c, apperrors.AccessDenied("insufficient role"))
	}
}

// UserID reads the authenticated user_id placed by RequireAccessToken.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(ContextUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

// Role reads the authenticated role placed by RequireAccessToken.
func Role(c *gin.Context) string {
	v, _ := c.Get(ContextRole)
	role, _ := v.(string)
	return role
}

// IsAdmin reports whether the authenticated principal is an admin.
func IsAdmin(c *gin.Context) bool {
	return Role(c) == "admin"
}
