package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const userContextKey = "casetrail.user"

// Middleware authenticates every request from either the X-API-Key header or
// an Authorization bearer token and binds the user into the request context.
func Middleware(a *Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		bearer := ""
		if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
			bearer = strings.TrimPrefix(h, "Bearer ")
		}

		u, err := a.Authenticate(c.Request.Context(), apiKey, bearer)
		if err != nil {
			status := http.StatusUnauthorized
			msg := "authentication required"
			if _, ok := err.(*AuthenticationError); !ok {
				status = http.StatusInternalServerError
				msg = "credential lookup failed"
			}
			c.AbortWithStatusJSON(status, gin.H{"error": msg})
			return
		}
		c.Set(userContextKey, u)
		c.Next()
	}
}

// RequirePerms rejects authenticated callers whose role lacks any of the
// required permissions.
func RequirePerms(perms ...Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, ok := CurrentUser(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if err := Authorize(u, perms...); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient permissions"})
			return
		}
		c.Next()
	}
}

func CurrentUser(c *gin.Context) (User, bool) {
	v, ok := c.Get(userContextKey)
	if !ok {
		return User{}, false
	}
	u, ok := v.(User)
	return u, ok
}
