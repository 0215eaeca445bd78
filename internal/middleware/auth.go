package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/identity"
)

// UserIDKey is the gin context key holding the authenticated user id (int64).
const UserIDKey = "userID"

// AuthMiddleware validates the bearer credential in the Authorization header against the identity provider.
func AuthMiddleware(provider identity.Provider) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthenticated(c, "missing authorization")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			abortUnauthenticated(c, "invalid authorization header")
			return
		}

		id, err := identity.Resolve(c.Request.Context(), provider, strings.TrimSpace(parts[1]))
		if err != nil {
			abortUnauthenticated(c, "invalid token")
			return
		}

		c.Set(UserIDKey, id.UserID)
		c.Next()
	}
}

func abortUnauthenticated(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"kind": "unauthenticated", "message": message}})
}
