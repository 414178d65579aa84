package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sessionstory/sessionstory-go/internal/infrastructure/security"
	"github.com/sessionstory/sessionstory-go/pkg/config"
)

const ownerContextKey = "ownerId"

// AuthMiddleware validates the dashboard bearer token and stores the
// owner id on the request context.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			c.Abort()
			return
		}

		claims, err := security.ValidateJWT(strings.TrimPrefix(header, "Bearer "), config.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			c.Abort()
			return
		}

		ownerID, ok := security.OwnerFromClaims(claims)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "token carries no owner"})
			c.Abort()
			return
		}

		c.Set(ownerContextKey, ownerID)
		c.Next()
	}
}

// GetOwnerID returns the authenticated owner id set by AuthMiddleware.
func GetOwnerID(c *gin.Context) (string, bool) {
	ownerID, exists := c.Get(ownerContextKey)
	if !exists {
		return "", false
	}
	id, ok := ownerID.(string)
	return id, ok && id != ""
}
