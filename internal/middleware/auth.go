package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ParseTokenFunc validates a session bearer token and returns the session
// id and tenant it names. services.SessionService provides one.
type ParseTokenFunc func(tokenStr string) (sessionID, tenant string, err error)

// public endpoints that do not require a session token
func isPublicPath(path string) bool {
	if path == "/signup/session" {
		return true
	}
	return strings.HasPrefix(path, "/swagger") ||
		strings.HasPrefix(path, "/healthz")
}

func SessionAuthMiddleware(parse ParseTokenFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}
		if isPublicPath(c.Request.URL.Path) {
			c.Next()
			return
		}

		authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}

		sessionID, tenant, err := parse(strings.TrimSpace(parts[1]))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session token"})
			return
		}

		c.Set("session_id", sessionID)
		c.Set("tenant", tenant)
		c.Next()
	}
}
