package auth

import (
	"net/http"
	"strings"
	"time"

	"calllog-dashboard/internal/audit"

	"github.com/gin-gonic/gin"
)

const authorizationHeader = "Authorization"
const bearerPrefix = "Bearer "

// tokenQueryParam carries the access token for clients that cannot set headers (browser WebSocket).
const tokenQueryParam = "token"

// RequireAccessToken verifies an access token and injects identity into request context.
// It does not perform developer checks; those belong to internal/rbac.
func RequireAccessToken(m *Manager) gin.HandlerFunc {
	return requireToken(m, bearerToken)
}

// RequireAccessTokenOrQuery also accepts the token as ?token=, for the push channel upgrade.
func RequireAccessTokenOrQuery(m *Manager) gin.HandlerFunc {
	return requireToken(m, func(c *gin.Context) string {
		if tok := bearerToken(c); tok != "" {
			return tok
		}
		return strings.TrimSpace(c.Query(tokenQueryParam))
	})
}

func bearerToken(c *gin.Context) string {
	raw := strings.TrimSpace(c.GetHeader(authorizationHeader))
	if raw == "" || !strings.HasPrefix(raw, bearerPrefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(raw, bearerPrefix))
}

func requireToken(m *Manager, extract func(*gin.Context) string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tok := extract(c)
		if tok == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Access token required"})
			return
		}

		claims, err := m.Verify(tok, TokenTypeAccess, time.Now())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		ctx := WithIdentity(c.Request.Context(), claims.Identity())
		ctx = audit.WithOrigin(ctx, audit.Origin{
			IP:        c.ClientIP(),
			RequestID: c.Writer.Header().Get("X-Request-Id"),
		})
		c.Request = c.Request.WithContext(ctx)

		// Also store on gin context for handler convenience.
		c.Set("username", claims.Username)

		c.Next()
	}
}
