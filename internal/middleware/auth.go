package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campuslink/portal/internal/auth/jwt"
	"github.com/campuslink/portal/internal/principal"
)

// Auth validates the bearer token and stashes the principal triple on the
// request context. Every route behind it can assume an authenticated caller.
func Auth(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization header"})
			return
		}

		claims, err := manager.ValidateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := principal.WithPrincipal(c.Request.Context(), principal.Principal{
			ID:   claims.UserID,
			Name: claims.Name,
			Role: claims.Role,
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}
