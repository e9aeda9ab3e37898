package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	userIDContextKey   = "auth_user_id"
	identitySourceKey  = "auth_identity_source"
	SourceToken        = "token"
	SourceFingerprint  = "fingerprint"
	forwardedForHeader = "X-Forwarded-For"
)

// Middleware resolves the caller identity and stores it in the context.
// Requests carrying an invalid bearer token are rejected.
func (s *Service) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := s.extractToken(c); token != "" && s.TokensEnabled() {
			userID, err := s.ValidateToken(token)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid authorization token"})
				return
			}
			c.Set(userIDContextKey, userID)
			c.Set(identitySourceKey, SourceToken)
			c.Next()
			return
		}

		addr := c.GetHeader(forwardedForHeader)
		if addr == "" {
			addr = c.ClientIP()
		}
		c.Set(userIDContextKey, Fingerprint(c.Request.UserAgent(), addr))
		c.Set(identitySourceKey, SourceFingerprint)
		c.Next()
	}
}

// RequireAdmin guards operational routes with the configured admin token.
func (s *Service) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.adminToken == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"success": false, "error": "admin access disabled"})
			return
		}
		got := c.GetHeader(s.adminHeaderName)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.adminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "error": "admin authorization required"})
			return
		}
		c.Next()
	}
}

// UserIDFromContext retrieves the caller's user id from the gin context.
func UserIDFromContext(c *gin.Context) (string, bool) {
	val, ok := c.Get(userIDContextKey)
	if !ok {
		return "", false
	}
	userID, ok := val.(string)
	return userID, ok && userID != ""
}

// IdentitySource reports how the user id was derived.
func IdentitySource(c *gin.Context) string {
	return c.GetString(identitySourceKey)
}

func (s *Service) extractToken(c *gin.Context) string {
	authHeader := c.GetHeader(s.headerName)
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}
